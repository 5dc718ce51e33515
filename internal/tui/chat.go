// Package tui renders the conversation in the terminal. It is a thin layer:
// all state lives in the chat.Conversation, the TUI only draws snapshots and
// forwards input.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/clawdeck/clawdeck/internal/chat"
)

// RefreshMsg tells the TUI the conversation changed. The conversation's
// change hook posts it via Program.Send.
type RefreshMsg struct{}

// ConnStateMsg updates the connection indicator.
type ConnStateMsg struct {
	State string
}

type sendDoneMsg struct {
	err error
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	connStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	systemStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	deletedStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Model is the bubbletea model for the chat screen.
type Model struct {
	conv *chat.Conversation

	viewport  viewport.Model
	textarea  textarea.Model
	spinner   spinner.Model
	connState string
	sending   bool
	ready     bool
	width     int
	height    int
}

// New creates the chat screen over an existing conversation.
func New(conv *chat.Conversation, connState string) Model {
	ta := textarea.New()
	ta.Placeholder = "Message"
	ta.Prompt = "│ "
	ta.SetHeight(2)
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		conv:      conv,
		textarea:  ta,
		spinner:   sp,
		connState: connState,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chromeHeight := 5 // header + textarea + footer
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.textarea.SetWidth(msg.Width - 2)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.textarea.Value())
			if text == "" || m.sending {
				break
			}
			m.textarea.Reset()
			m.sending = true
			conv := m.conv
			// Handled: do not feed the Enter into the reset textarea below.
			return m, func() tea.Msg {
				return sendDoneMsg{err: conv.Send(text)}
			}
		}

	case RefreshMsg:
		m.refresh()

	case ConnStateMsg:
		m.connState = msg.State

	case sendDoneMsg:
		m.sending = false
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderMessages(m.conv.Messages(), m.viewport.Width))
	m.viewport.GotoBottom()
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	header := titleStyle.Render("clawdeck") + "  " + connStyle.Render(m.connState)
	if m.sending {
		header += "  " + m.spinner.View()
	}
	footer := ""
	if errText := m.conv.ErrorMessage(); errText != "" {
		footer = errorStyle.Render("error: " + errText)
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s", header, m.viewport.View(), m.textarea.View(), footer)
}

func renderMessages(messages []chat.Message, width int) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(renderMessage(msg, width))
		b.WriteString("\n")
	}
	return b.String()
}

func renderMessage(msg chat.Message, width int) string {
	var label string
	switch msg.Role {
	case chat.RoleUser:
		label = userStyle.Render("You")
	case chat.RoleAssistant:
		label = assistantStyle.Render("Assistant")
	case chat.RoleSystem:
		label = systemStyle.Render("System")
	default:
		label = systemStyle.Render("?")
	}

	var marker string
	switch msg.State {
	case chat.StateSending:
		marker = metaStyle.Render(" …")
	case chat.StateFailed:
		marker = errorStyle.Render(" !")
	}
	if msg.Edited && !msg.Deleted {
		marker += metaStyle.Render(" (edited)")
	}

	text := msg.Text
	if msg.Deleted {
		text = deletedStyle.Render("message deleted")
	}
	if msg.ForwardedFrom != "" && !msg.Deleted {
		text = metaStyle.Render("forwarded from "+msg.ForwardedFrom) + "\n" + text
	}
	if msg.ReplyTo != nil && !msg.Deleted {
		text = metaStyle.Render("> "+msg.ReplyTo.Text) + "\n" + text
	}

	body := lipgloss.NewStyle().Width(width - 2).Render(text)
	return fmt.Sprintf("%s%s\n%s\n", label, marker, body)
}
