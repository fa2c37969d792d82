package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptionsDefaults(t *testing.T) {
	o := NewOptions()
	assert.Equal(t, "info", o.LogLevel)
	assert.Empty(t, o.DB)
	assert.Empty(t, o.Question)
	assert.Empty(t, o.ReplayLog)
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	o := NewOptions()
	o.Question = "q?"
	o.LogLevel = "verbose"
	errs := o.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "invalid log level")
}

func TestValidateRequiresOneOfQuestionReplayOrDB(t *testing.T) {
	o := NewOptions()
	errs := o.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "one of --question")
}

func TestValidateAcceptsReplayLogAlone(t *testing.T) {
	o := NewOptions()
	o.ReplayLog = "./transcript.jsonl"
	assert.Empty(t, o.Validate())
}

func TestValidateAcceptsDBAlone(t *testing.T) {
	o := NewOptions()
	o.DB = "./session.db"
	assert.Empty(t, o.Validate())
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	o := NewOptions()
	o.LogLevel = "loud"
	errs := o.Validate()
	require.Len(t, errs, 2)
}

func TestAddFlagsBindsFieldsByReference(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--question", "what is 2+2?", "--db", "./x.db", "--log-level", "debug"}))
	assert.Equal(t, "what is 2+2?", o.Question)
	assert.Equal(t, "./x.db", o.DB)
	assert.Equal(t, "debug", o.LogLevel)
}

func TestCreateConfigFromOptionsPropagatesValidationError(t *testing.T) {
	o := NewOptions()
	o.LogLevel = "nope"
	_, err := CreateConfigFromOptions(o)
	assert.Error(t, err)
}

func TestCreateConfigFromOptionsWrapsValidOptions(t *testing.T) {
	o := NewOptions()
	o.Question = "q?"
	cfg, err := CreateConfigFromOptions(o)
	require.NoError(t, err)
	assert.Equal(t, "q?", cfg.Question)
}
