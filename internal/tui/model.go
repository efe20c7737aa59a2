// Package tui is the terminal chat front end.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/models"
	"github.com/hyperjump/policyqa/internal/provider"
	"github.com/hyperjump/policyqa/internal/session"
)

// ChatPort is the TUI-facing subset of the session controller, bound to one session.
type ChatPort interface {
	Process(ctx context.Context, path string) (*models.Document, error)
	Ask(ctx context.Context, question string) (session.Reply, error)
	SelectBackend(b provider.Backend) error
	Reset()
	Transcript() []models.ChatMessage
	Backend() provider.Backend
}

// SessionPort adapts a controller and session to ChatPort.
type SessionPort struct {
	Controller *session.Controller
	Session    *session.Session
}

func (p SessionPort) Process(ctx context.Context, path string) (*models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindNoDocument, "no document uploaded")
	}
	defer f.Close()
	return p.Controller.Process(ctx, p.Session, &session.Upload{Name: filepath.Base(path), Reader: f})
}

func (p SessionPort) Ask(ctx context.Context, question string) (session.Reply, error) {
	return p.Controller.Ask(ctx, p.Session, question)
}

func (p SessionPort) SelectBackend(b provider.Backend) error {
	return p.Controller.SelectBackend(p.Session, b)
}

func (p SessionPort) Reset() { p.Controller.Reset(p.Session) }

func (p SessionPort) Transcript() []models.ChatMessage { return p.Session.Transcript() }

func (p SessionPort) Backend() provider.Backend { return p.Session.Backend() }

const helpText = "/load <file>  process a PDF or DOCX   /backend <name>  switch model   /reset  clear chat   ctrl+c  quit"

type processedMsg struct {
	doc *models.Document
	err error
}

type answeredMsg struct {
	reply session.Reply
	err   error
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	ctx      context.Context
	port     ChatPort
	input    textinput.Model
	viewport viewport.Model
	status   string
	busy     bool
	ready    bool
}

// New creates a chat model over port. ctx cancels in-flight calls.
func New(ctx context.Context, port ChatPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about a claim, or /load policy.pdf"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		port:     port,
		input:    ti,
		viewport: vp,
		status:   fmt.Sprintf("Using %s. Load a policy document to begin.", port.Backend().Label()),
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + 2 + ih + 1 // header, help, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case processedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = errorStyle.Render(apperr.UserMessage(msg.err))
		} else {
			m.status = fmt.Sprintf("Processed %s: %d pages, %d chunks.", msg.doc.Name, msg.doc.Pages, msg.doc.ChunkCount)
		}
		return m, nil
	case answeredMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.status = errorStyle.Render(apperr.UserMessage(msg.err))
		case msg.reply.Failed:
			m.status = errorStyle.Render("The answer could not be generated.")
		default:
			m.status = "Ready."
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
	}
	var cmd, vcmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.viewport, vcmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, vcmd)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return m, nil
	}
	if m.busy {
		m.status = errorStyle.Render(apperr.UserMessage(apperr.ErrBusy))
		return m, nil
	}
	m.input.SetValue("")

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/load":
		if arg == "" {
			m.status = errorStyle.Render(apperr.UserMessage(apperr.ErrNoDocument))
			return m, nil
		}
		m.busy = true
		m.status = "Processing " + filepath.Base(arg) + "..."
		ctx, port := m.ctx, m.port
		return m, func() tea.Msg {
			doc, err := port.Process(ctx, arg)
			return processedMsg{doc: doc, err: err}
		}
	case "/backend":
		b, err := provider.ParseBackend(arg)
		if err == nil {
			err = m.port.SelectBackend(b)
		}
		if err != nil {
			m.status = errorStyle.Render(apperr.UserMessage(err))
		} else {
			m.status = "Using " + b.Label() + "."
		}
		return m, nil
	case "/reset":
		m.port.Reset()
		m.status = "Conversation cleared."
		m.refresh()
		return m, nil
	}

	m.busy = true
	m.status = "Thinking..."
	ctx, port := m.ctx, m.port
	return m, func() tea.Msg {
		reply, err := port.Ask(ctx, line)
		return answeredMsg{reply: reply, err: err}
	}
}

// View renders the header, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Insurance Policy Q&A")
	help := helpStyle.Render(helpText)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	return header + "\n" + help + "\n" + transcript + "\n" + input + "\n" + statusStyle.Render(m.status)
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.port.Transcript(), m.viewport.Width))
	m.viewport.GotoBottom()
}

func renderTranscript(msgs []models.ChatMessage, width int) string {
	if len(msgs) == 0 {
		return helpStyle.Render("No messages yet.")
	}
	wrap := lipgloss.NewStyle().Width(max(20, width))
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if msg.Role == models.RoleUser {
			b.WriteString(userStyle.Render("You: "))
		} else {
			b.WriteString(assistantStyle.Render("Assistant: "))
		}
		b.WriteString(wrap.Render(msg.Content))
	}
	return b.String()
}

var (
	titleStyle         = lipgloss.NewStyle().Bold(true)
	helpStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
