package main

import (
	"github.com/kiosk404/hchbench/internal/hchbench/cmd"
)

func main() {
	cmd.Execute(cmd.NewDefaultHCHCommand())
}
