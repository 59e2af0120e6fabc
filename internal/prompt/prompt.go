// Package prompt asks the operator to pick one item from a list in the
// terminal, using bubbletea.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrAborted is returned when the operator quits the prompt.
var ErrAborted = errors.New("prompt: aborted")

// Terminal is a ble.Chooser backed by the controlling terminal.
type Terminal struct {
	in  io.Reader
	out io.Writer
}

// NewTerminal prompts on stdin/stdout.
func NewTerminal() *Terminal {
	return &Terminal{in: os.Stdin, out: os.Stdout}
}

// Choose shows labels with the first one highlighted and returns the index
// the operator confirms with enter.
func (t *Terminal) Choose(prompt string, labels []string) (int, error) {
	if len(labels) == 0 {
		return 0, fmt.Errorf("prompt: nothing to choose from")
	}

	p := tea.NewProgram(newModel(prompt, labels), tea.WithInput(t.in), tea.WithOutput(t.out))
	final, err := p.Run()
	if err != nil {
		return 0, fmt.Errorf("prompt: %w", err)
	}
	m := final.(model)
	if m.aborted {
		return 0, ErrAborted
	}
	return m.cursor, nil
}

type model struct {
	prompt  string
	labels  []string
	cursor  int
	done    bool
	aborted bool
}

func newModel(prompt string, labels []string) model {
	return model{prompt: prompt, labels: labels}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.labels)-1 {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = len(m.labels) - 1
	case "enter", " ":
		m.done = true
		return m, tea.Quit
	case "ctrl+c", "esc", "q":
		m.aborted = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	if m.done {
		fmt.Fprintf(&b, "? %s: %s\n", m.prompt, m.labels[m.cursor])
		return b.String()
	}
	if m.aborted {
		return ""
	}

	fmt.Fprintf(&b, "? %s\n", m.prompt)
	for i, label := range m.labels {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		b.WriteString(marker + label + "\n")
	}
	return b.String()
}
