// Package config splits command-line surface from validated runtime state:
// a flag-bound Options struct plus a thin Config wrapper, so the cmd
// package's cobra tree stays a pure presentation layer over a value viper
// and pflag can both populate.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Options are every flag hchbench accepts, matching the §6 CLI surface
// plus the --log-level and --replay-log ambient knobs the distillation
// itself is silent on.
type Options struct {
	DB         string `json:"db" mapstructure:"db"`
	Question   string `json:"question" mapstructure:"question"`
	LogLevel   string `json:"log-level" mapstructure:"log-level"`
	ReplayLog  string `json:"replay-log" mapstructure:"replay-log"`
}

// NewOptions returns Options populated with their defaults.
func NewOptions() *Options {
	return &Options{
		LogLevel: "info",
	}
}

// AddFlags registers every option onto fs using the StringVar-onto-the-
// live-field pattern so viper.BindPFlags and cobra see
// the same storage.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.DB, "db", o.DB, "Path to a boltdb file to restore state from and persist to on exit. Empty runs purely in memory.")
	fs.StringVar(&o.Question, "question", o.Question, "Root question text, in the \"[ … ]\"/\"$<id>\" hypertext grammar. Required unless --db resumes a saved session.")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Logging level: debug, info, warn, or error.")
	fs.StringVar(&o.ReplayLog, "replay-log", o.ReplayLog, "Path to a recorded rendering/action transcript to replay instead of prompting a human driver.")
}

// Validate reports every problem found with o, collected rather than
// returned on the first failure so a driver sees every problem at once.
func (o *Options) Validate() []error {
	var errs []error
	switch o.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q, must be one of debug, info, warn, error", o.LogLevel))
	}
	if o.Question == "" && o.ReplayLog == "" && o.DB == "" {
		errs = append(errs, fmt.Errorf("one of --question, --replay-log, or --db (to resume a prior run) is required"))
	}
	return errs
}

// Config is the running configuration handed to the scheduler wiring code.
type Config struct {
	*Options
}

// CreateConfigFromOptions validates opts and wraps them as a Config.
func CreateConfigFromOptions(opts *Options) (*Config, error) {
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid options: %v", errs)
	}
	return &Config{opts}, nil
}
