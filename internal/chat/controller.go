// Package chat drives the client side of the intake chat: the persisted
// conversation, the turn-taking state machine and the facilitators' notes.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"intake-chat/internal/buttons"
	"intake-chat/internal/store"
	"intake-chat/internal/types"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingReply
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaitingReply"
	case StateError:
		return "error"
	}
	return "unknown"
}

var (
	ErrEmptyMessage = errors.New("chat: message is empty")
	ErrBusy         = errors.New("chat: a reply is still pending")
)

// Gateway sends one chat turn to the server.
type Gateway interface {
	Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error)
}

// Pending is a submitted turn waiting for its reply.
type Pending struct {
	Request types.ChatRequest
	epoch   uint64
}

type Controller struct {
	mu    sync.Mutex
	gw    Gateway
	kv    store.Store
	turns []Turn
	notes PadNotes
	state State
	err   string
	// epoch changes on Reset so late replies are dropped.
	epoch uint64
	now   func() time.Time
	log   log.FieldLogger
}

type ControllerOption func(*Controller)

func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

func WithLogger(l log.FieldLogger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// NewController restores the conversation and notes from kv, starting with
// the greeting when nothing usable is stored.
func NewController(gw Gateway, kv store.Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		gw:  gw,
		kv:  kv,
		now: time.Now,
		log: log.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	if b, err := kv.Get(ConversationKey); err == nil {
		c.turns = decodeConversation(b)
	} else if !errors.Is(err, store.ErrNotFound) {
		c.log.WithError(err).Debug("conversation not loaded")
	}
	if len(c.turns) == 0 {
		c.turns = []Turn{greetingTurn(c.now())}
	}
	if b, err := kv.Get(NotesKey); err == nil {
		if err := json.Unmarshal(b, &c.notes); err != nil {
			c.log.WithError(err).Debug("notes not loaded")
		}
	}
	return c
}

// Begin appends a user turn and moves to awaitingReply. Blank text and a
// pending reply are rejected with nothing changed.
func (c *Controller) Begin(text string) (*Pending, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateAwaitingReply {
		return nil, ErrBusy
	}
	p := &Pending{
		Request: types.ChatRequest{Message: text, History: history(c.turns)},
		epoch:   c.epoch,
	}
	c.turns = append(c.turns, newTurn(types.RoleUser, text, c.now()))
	c.state = StateAwaitingReply
	c.err = ""
	c.persistLocked()
	return p, nil
}

// Resolve applies the outcome of a pending request. It reports false when
// the conversation was reset after the request began.
func (c *Controller) Resolve(p *Pending, resp *types.ChatResponse, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p == nil || p.epoch != c.epoch || c.state != StateAwaitingReply {
		return false
	}
	if err != nil {
		c.state = StateError
		c.err = errorText(err)
		return true
	}
	reply := ""
	if resp != nil {
		reply = resp.Reply
	}
	if strings.TrimSpace(reply) == "" {
		reply = EmptyReply
	}
	c.turns = append(c.turns, newTurn(types.RoleAssistant, reply, c.now()))
	c.state = StateIdle
	c.err = ""
	c.persistLocked()
	return true
}

// Submit sends text and waits for the reply. Blank text and submissions
// while a reply is pending are rejected without any effect.
func (c *Controller) Submit(ctx context.Context, text string) error {
	p, err := c.Begin(text)
	if err != nil {
		return err
	}
	resp, err := c.gw.Chat(ctx, p.Request)
	c.Resolve(p, resp, err)
	return err
}

// SelectOption submits a quick-reply option exactly like typed text.
func (c *Controller) SelectOption(ctx context.Context, option string) error {
	return c.Submit(ctx, option)
}

// Send runs the gateway call for a pending turn. The terminal UI calls this
// off its event loop.
func (c *Controller) Send(ctx context.Context, p *Pending) (*types.ChatResponse, error) {
	return c.gw.Chat(ctx, p.Request)
}

// Reset replaces the conversation with the greeting and clears any error.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.turns = []Turn{greetingTurn(c.now())}
	c.state = StateIdle
	c.err = ""
	if err := c.kv.Delete(ConversationKey); err != nil {
		c.log.WithError(err).Debug("conversation not cleared")
		c.persistLocked()
	}
}

func (c *Controller) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.turns...)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the last request error, empty unless the state is error.
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Options returns the quick replies of the latest assistant turn. None are
// offered while a reply is pending or after a user turn.
func (c *Controller) Options() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateAwaitingReply || len(c.turns) == 0 {
		return nil
	}
	last := c.turns[len(c.turns)-1]
	if last.Role != types.RoleAssistant {
		return nil
	}
	return buttons.Parse(last.Content).Options
}

func (c *Controller) Notes() PadNotes {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notes
}

// SetNote replaces one notes field and persists the notes.
func (c *Controller) SetNote(key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.notes.field(key)
	if err != nil {
		return err
	}
	*p = text
	b, err := json.Marshal(c.notes)
	if err == nil {
		err = c.kv.Set(NotesKey, b)
	}
	if err != nil {
		c.log.WithError(err).Debug("notes not saved")
	}
	return nil
}

// ExportNotes renders the notes as Markdown.
func (c *Controller) ExportNotes() string {
	return c.Notes().Markdown()
}

// persistLocked writes the conversation snapshot. Failures only cost
// persistence, so they are logged and otherwise ignored.
func (c *Controller) persistLocked() {
	b, err := json.Marshal(c.turns)
	if err == nil {
		err = c.kv.Set(ConversationKey, b)
	}
	if err != nil {
		c.log.WithError(err).Debug("conversation not saved")
	}
}

// errorText is the one-line message shown in the status region.
func errorText(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Error()
	}
	msg, _, _ := strings.Cut(strings.TrimSpace(err.Error()), "\n")
	if msg = strings.TrimSpace(msg); msg != "" {
		return msg
	}
	return UnknownError
}
