// Package repl implements a terminal scheduler.Driver: it prints a
// context's rendering, reads one line of action text back, and reports
// recoverable parse errors without losing the prompt. Layout and color
// choices favor direct terminal output rather than an alt-screen app, so
// rendered text stays selectable and copyable.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mitchellh/go-wordwrap"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	styleQuestion = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	stylePointer  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	styleDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errColor      = color.New(color.FgRed, color.Bold)
	cacheColor    = color.New(color.FgYellow)
)

// Terminal is a scheduler.Driver that prompts a human over stdin/stdout.
type Terminal struct {
	in   *bufio.Scanner
	out  io.Writer
	errW io.Writer
}

// NewTerminal returns a Driver reading from in and writing renderings to out
// and error reports to errW.
func NewTerminal(in io.Reader, out, errW io.Writer) *Terminal {
	return &Terminal{in: bufio.NewScanner(in), out: out, errW: errW}
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func (t *Terminal) separator() {
	w := termWidth() - 2
	if w < 20 {
		w = 20
	}
	fmt.Fprintln(t.out, styleDim.Render(strings.Repeat("-", w)))
}

// Prompt renders one context to the terminal and blocks for one line of
// action text, returned with surrounding whitespace trimmed. At EOF on
// stdin (e.g. Ctrl+D) it returns io.EOF instead, so the scheduler can
// decide how to treat an aborted session.
func (t *Terminal) Prompt(rendering string) (string, error) {
	t.separator()
	fmt.Fprintln(t.out, styleQuestion.Render(decoratePointers(rendering)))
	t.separator()
	fmt.Fprint(t.out, stylePointer.Render("hch> "))
	if !t.in.Scan() {
		return "", io.EOF
	}
	return strings.TrimSpace(t.in.Text()), nil
}

// ReportError prints a recoverable ParseError/UnknownPointer without disturbing the pending rendering — the scheduler re-prompts the
// same context right after this returns.
func (t *Terminal) ReportError(err error) {
	errColor.Fprintf(t.errW, "error: %v\n", err)
}

// NoteAutomationReplay implements scheduler.AutomationObserver: the
// scheduler calls it whenever a rendering is answered from the automation
// cache instead of prompting, so the terminal can mention the replay.
func (t *Terminal) NoteAutomationReplay(rendering string) {
	cacheColor.Fprintf(t.out, "(automation replay)\n")
}

// decoratePointers wraps "$<id>" tokens in the pointer style and wraps long lines
// to the terminal width, wrapping before styling so ANSI codes never split
// mid-word.
func decoratePointers(rendering string) string {
	wrapped := wordwrap.WrapString(rendering, uint(termWidth()-2))
	var b strings.Builder
	for _, line := range strings.Split(wrapped, "\n") {
		b.WriteString(styleField(line))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func styleField(line string) string {
	var b strings.Builder
	i := 0
	for i < len(line) {
		if line[i] == '$' {
			j := i + 1
			for j < len(line) && (isIDRune(line[j])) {
				j++
			}
			if j > i+1 {
				b.WriteString(stylePointer.Render(line[i:j]))
				i = j
				continue
			}
		}
		b.WriteByte(line[i])
		i++
	}
	return b.String()
}

func isIDRune(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// RenderMarkdown is available to a wiring layer that wants to show a final
// answer as rendered markdown rather than raw hypertext grammar.
func RenderMarkdown(content string, width int) string {
	if width <= 0 {
		width = 76
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithColorProfile(termenv.ANSI256),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
