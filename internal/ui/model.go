// Package ui is the terminal front end of the intake chat.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"intake-chat/internal/buttons"
	"intake-chat/internal/chat"
	"intake-chat/internal/types"
)

// DefaultTypingDelay is the minimum time the bot appears to type.
const DefaultTypingDelay = 800 * time.Millisecond

const (
	statusReady    = "Bereit."
	statusThinking = "Bot denkt nach..."
	maxOptions     = 9
)

// replyMsg carries the outcome of a pending request back to Update.
type replyMsg struct {
	pending *chat.Pending
	resp    *types.ChatResponse
	err     error
}

type Model struct {
	ctx   context.Context
	ctrl  *chat.Controller
	input textarea.Model
	view  viewport.Model
	spin  spinner.Model

	typingDelay time.Duration
	thinking    bool
	width       int
	height      int
}

type Option func(*Model)

func WithTypingDelay(d time.Duration) Option {
	return func(m *Model) { m.typingDelay = d }
}

func New(ctx context.Context, ctrl *chat.Controller, opts ...Option) Model {
	ta := textarea.New()
	ta.Placeholder = "Deine Nachricht..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(purple)

	m := Model{
		ctx:         ctx,
		ctrl:        ctrl,
		input:       ta,
		view:        viewport.New(80, 20),
		spin:        sp,
		typingDelay: DefaultTypingDelay,
		width:       80,
		height:      28,
	}
	for _, o := range opts {
		o(&m)
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case replyMsg:
		m.ctrl.Resolve(msg.pending, msg.resp, msg.err)
		m.thinking = m.ctrl.State() == chat.StateAwaitingReply
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.thinking {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "ctrl+r":
		m.ctrl.Reset()
		m.thinking = false
		m.input.Reset()
		m.refresh()
		return m, nil
	case "enter":
		text := m.input.Value()
		if strings.TrimSpace(text) == "" || m.thinking {
			return m, nil
		}
		m.input.Reset()
		return m.submit(text)
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd
	default:
		if n, ok := optionIndex(key); ok {
			opts := m.ctrl.Options()
			if n < len(opts) {
				return m.submit(opts[n])
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	p, err := m.ctrl.Begin(text)
	if err != nil {
		return m, nil
	}
	m.thinking = true
	m.refresh()
	return m, tea.Batch(m.send(p), m.spin.Tick)
}

// send performs the request off the event loop. The reply is held back
// until the typing delay has passed.
func (m Model) send(p *chat.Pending) tea.Cmd {
	ctx, ctrl, delay := m.ctx, m.ctrl, m.typingDelay
	return func() tea.Msg {
		start := time.Now()
		resp, err := ctrl.Send(ctx, p)
		if wait := delay - time.Since(start); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
		}
		return replyMsg{pending: p, resp: resp, err: err}
	}
}

// optionIndex maps alt+1 to alt+9 onto option indexes.
func optionIndex(key string) (int, bool) {
	if len(key) != len("alt+1") || !strings.HasPrefix(key, "alt+") {
		return 0, false
	}
	d := key[len(key)-1]
	if d < '1' || d > '0'+maxOptions {
		return 0, false
	}
	return int(d - '1'), true
}

func (m *Model) layout() {
	m.input.SetWidth(m.width - 2)
	reserved := m.input.Height() + 6 + lipgloss.Height(m.banner())
	h := m.height - reserved
	if h < 3 {
		h = 3
	}
	m.view.Width = m.width
	m.view.Height = h
}

func (m *Model) refresh() {
	m.view.SetContent(m.renderTurns())
	m.view.GotoBottom()
}

func (m Model) renderTurns() string {
	wrap := bodyStyle.Width(max(m.width-4, 20))
	var b strings.Builder
	for _, t := range m.ctrl.Turns() {
		label := botLabelStyle.Render("Bot")
		content := buttons.Parse(t.Content).MainText
		if t.Role == types.RoleUser {
			label = userLabelStyle.Render("Du")
			content = t.Content
		}
		fmt.Fprintf(&b, "%s %s\n%s\n\n", label, timeStyle.Render(t.Timestamp.Local().Format("15:04")), wrap.Render(content))
	}
	return b.String()
}

func (m Model) renderOptions() string {
	opts := m.ctrl.Options()
	if m.thinking || len(opts) == 0 {
		return ""
	}
	if len(opts) > maxOptions {
		opts = opts[:maxOptions]
	}
	rendered := make([]string, len(opts))
	for i, o := range opts {
		rendered[i] = optionStyle.Render(optionKeyStyle.Render(fmt.Sprintf("alt+%d", i+1)) + " " + o)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) status() string {
	switch {
	case m.thinking:
		return m.spin.View() + " " + statusStyle.Render(statusThinking)
	case m.ctrl.State() == chat.StateError:
		return errorStyle.Render("Fehler: " + m.ctrl.Err())
	}
	return statusStyle.Render(statusReady)
}

const safetyNotice = "Wichtig: Bei akuter Gefahr bitte sofort den lokalen Notruf (112) oder Hilfetelefon (z.B. 08000 116 016) kontaktieren."

func (m Model) banner() string {
	return bannerStyle.Width(m.width).Render(safetyNotice)
}

func (m Model) View() string {
	parts := []string{m.banner(), m.view.View()}
	if opts := m.renderOptions(); opts != "" {
		parts = append(parts, opts)
	}
	parts = append(parts,
		m.status(),
		m.input.View(),
		helpStyle.Render("enter senden · alt+enter neue Zeile · alt+1-9 Option · ctrl+r neu starten · ctrl+c beenden"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Run starts the full-screen program and blocks until the user quits.
func Run(ctx context.Context, ctrl *chat.Controller, opts ...Option) error {
	p := tea.NewProgram(New(ctx, ctrl, opts...), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
