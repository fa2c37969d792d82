package repl

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptReturnsTrimmedLine(t *testing.T) {
	in := strings.NewReader("  unlock $a1  \n")
	var out, errW bytes.Buffer
	term := NewTerminal(in, &out, &errW)

	text, err := term.Prompt("Question:    what is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "unlock $a1", text)
	assert.Contains(t, out.String(), "what is 2+2?")
}

func TestPromptReturnsEOFOnExhaustedInput(t *testing.T) {
	in := strings.NewReader("")
	var out, errW bytes.Buffer
	term := NewTerminal(in, &out, &errW)

	_, err := term.Prompt("Question: q?")
	assert.ErrorIs(t, err, io.EOF)
}

func TestReportErrorWritesToErrWriter(t *testing.T) {
	var out, errW bytes.Buffer
	term := NewTerminal(strings.NewReader(""), &out, &errW)

	term.ReportError(assertableError("boom"))
	assert.Contains(t, errW.String(), "boom")
	assert.Empty(t, out.String())
}

type assertableError string

func (e assertableError) Error() string { return string(e) }

func TestDecoratePointersPreservesPointerTokens(t *testing.T) {
	out := decoratePointers("Sub 1. A: $a1   W: $w1")
	assert.Contains(t, out, "$a1")
	assert.Contains(t, out, "$w1")
}

func TestStyleFieldLeavesPlainTextUntouched(t *testing.T) {
	out := styleField("no pointers here")
	assert.Contains(t, out, "no pointers here")
}

func TestRenderMarkdownProducesNonEmptyOutput(t *testing.T) {
	out := RenderMarkdown("**bold** text", 40)
	assert.NotEmpty(t, out)
}
