package cmd

import "fmt"

const bannerText = `
  _   _  ____ _   _
 | | | |/ ___| | | |
 | |_| | |   | |_| |
 |  _  | |___|  _  |
 |_| |_|\____|_| |_|

      Humans Consulting HCH
`

// Banner returns the CLI banner string shown above the root command's long
// description.
func Banner() string {
	return fmt.Sprintf("%s\n  Version: %s\n", bannerText, Version())
}
