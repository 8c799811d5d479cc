package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/nativebridge/config"
	"github.com/wippyai/nativebridge/internal/demo"
	"github.com/wippyai/nativebridge/plan"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
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
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	ctx      context.Context
	cfg      *config.Config
	peer     *peer
	result   string
	methods  []*plan.Method
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

func newInteractiveModel(ctx context.Context, cfg *config.Config) *interactiveModel {
	return &interactiveModel{
		ctx:     ctx,
		cfg:     cfg,
		methods: demo.Definition().Methods(),
		state:   stateSelectFunc,
	}
}

type connectedMsg struct {
	err  error
	peer *peer
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.connect
}

func (m *interactiveModel) connect() tea.Msg {
	p, err := dialPeer(m.ctx, m.cfg)
	return connectedMsg{peer: p, err: err}
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
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.methods)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if m.peer == nil {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callMethod
				}
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				return m, m.callMethod

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case connectedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.peer = msg.peer

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		cmds := make([]tea.Cmd, len(m.inputs))
		for i := range m.inputs {
			m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *interactiveModel) quit() tea.Cmd {
	if m.peer != nil {
		m.peer.Close()
		m.peer = nil
	}
	return tea.Quit
}

func (m *interactiveModel) prepareInputs() {
	meth := m.methods[m.selected]
	m.inputs = nil
	if meth.Receiver {
		m.inputs = append(m.inputs, newInput("recv", "handle"))
	}
	for _, p := range meth.Params {
		placeholder := describePlan(p.Plan)
		if p.Plan.HasOut() && !p.Plan.HasIn() {
			placeholder = "buffer length"
		}
		m.inputs = append(m.inputs, newInput(p.Name, placeholder))
	}
	if len(m.inputs) > 0 {
		m.inputs[0].Focus()
	}
	m.focusIdx = 0
}

func newInput(name, placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = name + ": "
	ti.Width = 40
	return ti
}

func (m *interactiveModel) callMethod() tea.Msg {
	meth := m.methods[m.selected]
	fields := make([]string, 0, len(m.inputs))
	for _, in := range m.inputs {
		fields = append(fields, in.Value())
	}
	var rawRecv string
	if meth.Receiver {
		rawRecv, fields = fields[0], fields[1:]
	}

	recv, err := parseReceiver(meth, rawRecv)
	if err != nil {
		return callResultMsg{err: err}
	}
	args, err := parseArgs(meth, fields)
	if err != nil {
		return callResultMsg{err: err}
	}
	result, err := m.peer.ep.Call(m.ctx, meth, recv, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatResult(meth, args, result)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.peer == nil {
		return "Connecting to peer..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Native Bridge"))
	b.WriteString(" ")
	b.WriteString(m.cfg.Peer.Transport)
	if m.cfg.Peer.Address != "" {
		b.WriteString(" " + m.cfg.Peer.Address)
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a method to call:\n\n")
		for i, meth := range m.methods {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatMethod(meth, false)))
			} else {
				b.WriteString("  " + formatMethod(meth, true))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		st := m.peer.rt.Stats()
		b.WriteString(typeStyle.Render(fmt.Sprintf("calls %d • cached %d • failed %d", st.Calls, st.CacheHits, st.Failures)))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		meth := m.methods[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(meth.Name)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • arrays use , • enter call • esc back"))

	case stateShowResult:
		meth := m.methods[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(meth.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}
	return b.String()
}

func runInteractive(ctx context.Context, cfg *config.Config) error {
	p := tea.NewProgram(newInteractiveModel(ctx, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
