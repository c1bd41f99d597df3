package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelect modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	cfg      *config.Config
	log      *zap.Logger
	session  *session
	result   outcome
	inputs   []textinput.Model
	history  []string
	selected int
	focusIdx int
	state    modelState
}

type openedMsg struct {
	err error
	s   *session
}

type resultMsg struct {
	err    error
	line   string
	result outcome
}

func newInteractiveModel(cfg *config.Config, log *zap.Logger) *interactiveModel {
	return &interactiveModel{cfg: cfg, log: log, state: stateSelect}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.open
}

func (m *interactiveModel) open() tea.Msg {
	s, err := openSession(m.cfg, m.log)
	return openedMsg{s: s, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit()

		case "q":
			if m.state != stateInputArgs {
				return m, m.quit()
			}

		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelect && m.selected < len(commands)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelect:
				if m.session == nil {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.runCommand
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.runCommand

			case stateShowResult:
				m.reset()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			if m.state != stateSelect {
				m.reset()
			}
		}

	case openedMsg:
		m.err = msg.err
		m.session = msg.s

	case resultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		if msg.err == nil {
			m.history = append(m.history, msg.line+" => "+format(msg.result))
		}
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) quit() tea.Cmd {
	if m.session != nil {
		if err := m.session.close(); err != nil {
			m.log.Warn("session close", zap.Error(err))
		}
		m.session = nil
	}
	return tea.Quit
}

func (m *interactiveModel) reset() {
	m.state = stateSelect
	m.inputs = nil
	m.result = outcome{}
	m.err = nil
}

func (m *interactiveModel) prepareInputs() {
	c := commands[m.selected]
	m.inputs = make([]textinput.Model, len(c.params))
	for i, p := range c.params {
		ti := textinput.New()
		ti.Placeholder = p.kind
		ti.Prompt = p.name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) runCommand() tea.Msg {
	c := commands[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = strings.TrimSpace(input.Value())
		if args[i] == "" || strings.ContainsAny(args[i], " \t") {
			return resultMsg{err: fmt.Errorf("%s must be a single word", c.params[i].name)}
		}
	}
	line := strings.Join(append([]string{c.name}, args...), " ")
	_, out, err := execute(m.session, line)
	return resultMsg{line: line, result: out, err: err}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state == stateSelect {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.session == nil {
		return "Starting session..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("safe-core"))
	fmt.Fprintf(&b, " %s policy, %d workers, vault %s\n\n",
		m.cfg.Attach.Policy, m.cfg.Native.Workers, m.cfg.Native.Vault)

	switch m.state {
	case stateSelect:
		b.WriteString("Select a request:\n\n")
		for i, c := range commands {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatCommand(c)))
			} else {
				b.WriteString("  " + formatCommand(c))
			}
			b.WriteString("\n")
		}
		if n := len(m.history); n > 0 {
			b.WriteString("\n")
			for _, h := range m.history[max(0, n-5):] {
				b.WriteString(helpStyle.Render(h))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter run • q quit"))

	case stateInputArgs:
		c := commands[m.selected]
		fmt.Fprintf(&b, "%s: %s\n\n", commandStyle.Render(c.name), c.help)
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(c.params[i].kind))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter run • esc back"))

	case stateShowResult:
		c := commands[m.selected]
		fmt.Fprintf(&b, "Result of %s:\n\n", commandStyle.Render(c.name))
		switch {
		case m.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		case m.result.failed:
			b.WriteString(errorStyle.Render(format(m.result)))
		default:
			b.WriteString(resultStyle.Render(format(m.result)))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatCommand(c command) string {
	var params []string
	for _, p := range c.params {
		params = append(params, p.name+": "+typeStyle.Render(p.kind))
	}
	return commandStyle.Render(c.name) + "(" + strings.Join(params, ", ") + ")"
}

func runInteractive(cfg *config.Config, log *zap.Logger) error {
	// Logs would corrupt the alternate screen.
	m := newInteractiveModel(cfg, zap.NewNop())
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	if m.session != nil {
		if cerr := m.session.close(); err == nil {
			err = cerr
		}
	}
	log.Info("interactive session ended", zap.Int("requests", len(m.history)))
	return err
}
