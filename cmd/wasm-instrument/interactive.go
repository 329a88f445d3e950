package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/wasm-instrument/embedder"
)

type interactiveModel struct {
	err      error
	app      *app
	session  *session
	last     *embedder.CallResult
	p        *printer
	filename string
	result   string
	funcs    []funcInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(a *app, filename string) *interactiveModel {
	return &interactiveModel{
		app:      a,
		filename: filename,
		state:    stateSelectFunc,
		p:        &printer{color: true},
	}
}

type loadedMsg struct {
	err     error
	session *session
}

type callResultMsg struct {
	err    error
	res    *embedder.CallResult
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	s, err := openSession(context.Background(), m.app, m.filename)
	return loadedMsg{session: s, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.session != nil {
				m.session.close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

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
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.reset()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.funcs = msg.session.funcs

	case callResultMsg:
		m.result = msg.result
		m.last = msg.res
		m.err = msg.err
		m.state = stateShowResult
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

func (m *interactiveModel) reset() {
	m.state = stateSelectFunc
	m.result = ""
	m.last = nil
	m.err = nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.params))
	for i, t := range f.params {
		ti := textinput.New()
		ti.Placeholder = t.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	if m.session == nil {
		return callResultMsg{err: fmt.Errorf("module not loaded")}
	}
	f := m.funcs[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = input.Value()
	}
	res, err := m.session.call(context.Background(), f, args)
	msg := callResultMsg{res: res, err: err}
	if res != nil {
		msg.result = formatResults(f.results, res.Results)
	}
	return msg
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(" wasm-instrument: " + m.filename + " "))
	b.WriteString("\n\n")

	if m.err != nil && m.session == nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n\n")
		b.WriteString(m.p.help("q: quit"))
		return b.String()
	}
	if m.session == nil {
		b.WriteString("Instrumenting...")
		return b.String()
	}

	switch m.state {
	case stateSelectFunc:
		fmt.Fprintf(&b, "Budget %s per call\n\n", typeStyle.Render(fmt.Sprint(m.session.budget)))
		if len(m.funcs) == 0 {
			b.WriteString(helpStyle.Render("No exported functions"))
			b.WriteString("\n")
		}
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f.name + " " + f.signature()))
			} else {
				b.WriteString("  " + funcStyle.Render(f.name) + " " + typeStyle.Render(f.signature()))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.p.help("↑/↓: select", "enter: call", "q: quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		fmt.Fprintf(&b, "Arguments for %s\n\n", funcStyle.Render(f.name))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.p.help("tab: next", "enter: call", "esc: back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		fmt.Fprintf(&b, "%s\n\n", funcStyle.Render(f.name))
		if m.result != "" {
			b.WriteString(resultStyle.Render("Result: " + m.result))
			b.WriteString("\n")
		}
		if m.last != nil {
			fmt.Fprintf(&b, "Instructions: %d\nRemaining:    %d\n", m.last.Instructions, m.last.Remaining)
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.p.help("enter/esc: back", "q: quit"))
	}

	return b.String()
}
