// Package gateway brokers one chat turn between a client and the upstream
// completion service: it prepends the system instructions, forwards the
// history and new message, and guarantees the reply ends with a quick-reply
// block. It keeps no state between calls.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"intake-chat/internal/buttons"
	"intake-chat/internal/config"
	"intake-chat/internal/prompt"
	"intake-chat/internal/types"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Request is a decoded chat request. Message is nil when the client sent no
// message or a value that is not a string.
type Request struct {
	Message *string
	History []types.HistoryMessage
}

// NewRequest builds a Request from already typed values.
func NewRequest(message string, history []types.HistoryMessage) Request {
	return Request{Message: &message, History: history}
}

// DecodeRequest parses a request body. It never fails: unusable input
// leaves Message nil, and a missing or malformed history becomes empty.
func DecodeRequest(body []byte) Request {
	var raw struct {
		Message json.RawMessage `json:"message"`
		History json.RawMessage `json:"history"`
	}
	var req Request
	if err := json.Unmarshal(body, &raw); err != nil {
		return req
	}
	var msg string
	if len(raw.Message) > 0 && !bytes.Equal(raw.Message, []byte("null")) && json.Unmarshal(raw.Message, &msg) == nil {
		req.Message = &msg
	}
	var history []types.HistoryMessage
	if len(raw.History) > 0 && json.Unmarshal(raw.History, &history) == nil {
		req.History = history
	}
	return req
}

type Reply struct {
	Text  string
	Usage openai.Usage
	Model string
	// Rule names the guarantor rule that supplied the options, empty when
	// the model wrote its own block.
	Rule string
}

// UsageEvent describes one completed call. It carries counts only, never
// message content.
type UsageEvent struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Guaranteed       bool
	Rule             string
	Latency          time.Duration
	CreatedAt        time.Time
}

type UsageRecorder interface {
	RecordUsage(ctx context.Context, ev UsageEvent) error
}

type Option func(*Gateway)

// WithBaseURL points the gateway at a different OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(g *Gateway) {
		if strings.TrimSpace(u) != "" {
			g.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTransport sets the round tripper used below the bearer transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) { g.transport = rt }
}

func WithRecorder(r UsageRecorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

func WithLogger(l log.FieldLogger) Option {
	return func(g *Gateway) { g.log = l }
}

type Gateway struct {
	creds     config.CredentialProvider
	policy    *prompt.Policy
	baseURL   string
	transport http.RoundTripper
	recorder  UsageRecorder
	log       log.FieldLogger
	now       func() time.Time
}

func New(creds config.CredentialProvider, policy *prompt.Policy, opts ...Option) *Gateway {
	g := &Gateway{
		creds:     creds,
		policy:    policy,
		baseURL:   DefaultBaseURL,
		transport: http.DefaultTransport,
		log:       log.StandardLogger(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Complete runs one chat turn.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Reply, error) {
	key := g.creds.APIKey()
	if key == "" {
		return nil, &ConfigurationError{Missing: config.APIKeyEnv}
	}
	if req.Message == nil {
		return nil, &ValidationError{Field: "message", Reason: "must be a string"}
	}
	if strings.TrimSpace(*req.Message) == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}

	capture := &errorCapture{base: g.transport}
	cfg := openai.DefaultConfig("")
	cfg.BaseURL = g.baseURL
	cfg.HTTPClient = bearerClient(key, capture)
	client := openai.NewClientWithConfig(cfg)

	style := g.policy.Style
	start := g.now()
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       style.Model,
		Messages:    g.Messages(req),
		Temperature: wireTemperature(style.Temperature),
		MaxTokens:   style.MaxTokens,
	})
	if err != nil {
		if capture.status != 0 {
			g.log.WithFields(log.Fields{
				"status":   capture.status,
				"body_len": len(capture.body),
			}).Warn("upstream completion failed")
			return nil, &UpstreamError{Status: capture.status, Body: string(capture.body), Err: err}
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &UpstreamError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
		}
		g.log.WithError(err).Error("completion round trip failed")
		return nil, &InternalError{Err: err}
	}

	raw := ""
	if len(resp.Choices) > 0 {
		raw = resp.Choices[0].Message.Content
	}
	text, rule, added := buttons.GuaranteeRule(raw, g.policy.Buttons)
	reply := &Reply{Text: text, Usage: resp.Usage, Model: resp.Model}
	if added {
		reply.Rule = rule.Name
	}
	g.record(ctx, reply, g.now().Sub(start))
	return reply, nil
}

// Messages assembles the upstream message list: system instructions, the
// usable history in order, then the new user message.
func (g *Gateway) Messages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: g.policy.System})
	for _, m := range req.History {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != types.RoleUser && role != types.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msg := ""
	if req.Message != nil {
		msg = *req.Message
	}
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg})
	return out
}

func (g *Gateway) record(ctx context.Context, r *Reply, latency time.Duration) {
	fields := log.Fields{
		"model":             r.Model,
		"prompt_tokens":     r.Usage.PromptTokens,
		"completion_tokens": r.Usage.CompletionTokens,
		"latency_ms":        latency.Milliseconds(),
	}
	if r.Rule != "" {
		fields["rule"] = r.Rule
	}
	g.log.WithFields(fields).Info("completion")
	if g.recorder == nil {
		return
	}
	err := g.recorder.RecordUsage(ctx, UsageEvent{
		Model:            r.Model,
		PromptTokens:     r.Usage.PromptTokens,
		CompletionTokens: r.Usage.CompletionTokens,
		TotalTokens:      r.Usage.TotalTokens,
		Guaranteed:       r.Rule != "",
		Rule:             r.Rule,
		Latency:          latency,
		CreatedAt:        g.now(),
	})
	if err != nil {
		g.log.WithError(err).Warn("usage not recorded")
	}
}

// go-openai drops a zero temperature from the request, which the upstream then
// reads as its own default of 1.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
