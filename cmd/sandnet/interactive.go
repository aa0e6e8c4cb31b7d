package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	sandnet "github.com/wippyai/sandnet"
	"github.com/wippyai/sandnet/config"
	"github.com/wippyai/sandnet/dial"
	"github.com/wippyai/sandnet/listen"
	"github.com/wippyai/sandnet/socket"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	sentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	recvStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type exchange struct {
	sent string
	got  string
	err  error
}

type chatModel struct {
	err   error
	cfg   *config.Config
	port  uint16
	stack *sandnet.Stack
	stop  listen.Stop
	conn  *socket.Socket
	input textinput.Model
	log   []exchange
	busy  bool
}

type connectedMsg struct {
	err   error
	stack *sandnet.Stack
	stop  listen.Stop
	conn  *socket.Socket
}

type echoMsg struct {
	sent string
	got  string
	err  error
}

func newChatModel(cfg *config.Config, port uint16) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "message"
	ti.Prompt = "> "
	ti.Width = 48
	ti.Focus()
	return &chatModel{cfg: cfg, port: port, input: ti}
}

func (m *chatModel) Init() tea.Cmd {
	return m.connect
}

// connect wires a stack over the in-memory transport and dials the
// echo listener it just started.
func (m *chatModel) connect() tea.Msg {
	stack, err := sandnet.New(m.cfg, sandnet.Options{})
	if err != nil {
		return connectedMsg{err: err}
	}

	stop, err := stack.Listeners.ListenTCP(m.cfg.LocalAddress, m.port, echo, listen.Options{})
	if err != nil {
		stack.Shutdown()
		return connectedMsg{err: err}
	}

	conn, err := stack.Dialer.Connect(m.cfg.LocalAddress, m.port, dial.Options{})
	if err != nil {
		stop(true)
		stack.Shutdown()
		return connectedMsg{err: err}
	}

	return connectedMsg{stack: stack, stop: stop, conn: conn}
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.teardown()
			return m, tea.Quit

		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy || m.conn == nil {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			return m, m.roundTrip(text)
		}

	case connectedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.stack = msg.stack
		m.stop = msg.stop
		m.conn = msg.conn

	case echoMsg:
		m.busy = false
		m.log = append(m.log, exchange{sent: msg.sent, got: msg.got, err: msg.err})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// roundTrip sends text and waits for the echo off the Update loop.
func (m *chatModel) roundTrip(text string) tea.Cmd {
	conn := m.conn
	return func() tea.Msg {
		if _, err := conn.SendAll([]byte(text)); err != nil {
			return echoMsg{sent: text, err: err}
		}
		reply, err := conn.ReceiveAll(len(text))
		return echoMsg{sent: text, got: string(reply), err: err}
	}
}

func (m *chatModel) teardown() {
	if m.conn != nil {
		m.conn.Close()
	}
	if m.stop != nil {
		m.stop(true)
	}
	if m.stack != nil {
		m.stack.Shutdown()
	}
}

func (m *chatModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress esc to quit.", m.err))
	}
	if m.conn == nil {
		return "Connecting..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("sandnet echo"))
	b.WriteString(fmt.Sprintf(" %s -> %s\n\n",
		endpointString(m.conn.LocalEndpoint()),
		endpointString(m.conn.RemoteEndpoint())))

	for _, e := range m.log {
		b.WriteString(sentStyle.Render("-> " + e.sent))
		b.WriteString("\n")
		if e.err != nil {
			b.WriteString(errorStyle.Render("   " + e.err.Error()))
		} else {
			b.WriteString(recvStyle.Render("<- " + e.got))
		}
		b.WriteString("\n")
	}
	if len(m.log) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter send • esc quit"))

	return b.String()
}

func runInteractive(cfg *config.Config, port uint16) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode requires a terminal")
	}
	p := tea.NewProgram(newChatModel(cfg, port), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
