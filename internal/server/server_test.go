package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-chat/internal/config"
	"intake-chat/internal/types"
)

type upstream struct {
	calls  atomic.Int32
	status int
	body   string
	reply  string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.calls.Add(1)
	if u.status != 0 {
		w.WriteHeader(u.status)
		_, _ = io.WriteString(w, u.body)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":    "chatcmpl-1",
		"model": "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": u.reply},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

func newTestServer(t *testing.T, up *upstream, key string, mutate ...func(*config.Config)) http.Handler {
	t.Helper()
	us := httptest.NewServer(up)
	t.Cleanup(us.Close)

	cfg := config.Config{
		AllowedOrigin:  "*",
		BaseURL:        us.URL + "/v1",
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	l := log.New()
	l.SetOutput(io.Discard)
	s, err := NewServer(cfg, config.StaticCredentials(key), WithLogger(l))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.Router()
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var out types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestChat_ContactReplyGetsContactOptions(t *testing.T) {
	up := &upstream{reply: "Du erreichst die Beratung per E-Mail. Die Wartezeit beträgt etwa eine Woche."}
	h := newTestServer(t, up, "sk-test")

	rec := postChat(t, h, `{"message":"Ich brauche Hilfe bei Diskriminierung","history":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out types.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, strings.HasSuffix(out.Reply, "[Buttons]:\n- Kontakt der empfohlenen Stelle anzeigen\n- Tipps für Vorbereitung"), out.Reply)
	assert.Equal(t, 1, strings.Count(out.Reply, "[Buttons]:"))
	assert.Equal(t, "gpt-4o-mini", out.Model)
	assert.NotNil(t, out.Usage)
}

func TestChat_MissingCredential(t *testing.T) {
	up := &upstream{reply: "nie"}
	h := newTestServer(t, up, "")

	rec := postChat(t, h, `{"message":"Hallo","history":[]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "OPENAI_API_KEY fehlt", decodeError(t, rec).Error)
	assert.Zero(t, up.calls.Load())
}

func TestChat_BadRequest(t *testing.T) {
	up := &upstream{reply: "nie"}
	h := newTestServer(t, up, "sk-test")

	for _, body := range []string{`{}`, `{"message":42}`, `{"message":null}`, `not json`, ``, `{"message":"   "}`} {
		rec := postChat(t, h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Feld 'message' ist erforderlich.", decodeError(t, rec).Error, body)
	}
	assert.Zero(t, up.calls.Load())
}

func TestChat_UpstreamFailureKeepsDetails(t *testing.T) {
	up := &upstream{status: http.StatusTooManyRequests, body: `{"error":{"message":"Rate limit reached","type":"requests"}}`}
	h := newTestServer(t, up, "sk-test")

	rec := postChat(t, h, `{"message":"Hallo"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	out := decodeError(t, rec)
	assert.Equal(t, "Fehler bei OpenAI", out.Error)
	assert.Contains(t, out.Details, "Rate limit reached")
}

func TestChat_RateLimited(t *testing.T) {
	up := &upstream{reply: "ok"}
	h := newTestServer(t, up, "sk-test", func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
	})

	assert.Equal(t, http.StatusOK, postChat(t, h, `{"message":"eins"}`).Code)
	assert.Equal(t, http.StatusOK, postChat(t, h, `{"message":"zwei"}`).Code)
	rec := postChat(t, h, `{"message":"drei"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Zu viele Anfragen", decodeError(t, rec).Error)
	assert.Equal(t, int32(2), up.calls.Load())
}

func postChatVia(t *testing.T, h http.Handler, remote string, forwarded ...string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"Hallo"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remote
	for _, f := range forwarded {
		req.Header.Add("X-Forwarded-For", f)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestChat_RateLimitIgnoresForwardedHeadersFromUntrustedPeer(t *testing.T) {
	up := &upstream{reply: "ok"}
	h := newTestServer(t, up, "sk-test", func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 1
	})

	limited := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"Hallo"}`))
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 49, limited)
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestChat_RateLimitBehindTrustedProxy(t *testing.T) {
	up := &upstream{reply: "ok"}
	h := newTestServer(t, up, "sk-test", func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 1
		c.TrustedProxies = []string{"10.0.0.0/8"}
	})
	proxy := "10.1.2.3:4444"

	assert.Equal(t, http.StatusOK, postChatVia(t, h, proxy, "198.51.100.1"))
	assert.Equal(t, http.StatusOK, postChatVia(t, h, proxy, "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, postChatVia(t, h, proxy, "198.51.100.1"))

	// a client-supplied left-most hop does not change the bucket
	assert.Equal(t, http.StatusTooManyRequests, postChatVia(t, h, proxy, "192.0.2.77, 198.51.100.2"))
	// trusted hops are skipped from the right
	assert.Equal(t, http.StatusOK, postChatVia(t, h, proxy, "198.51.100.3, 10.9.9.9"))
	assert.Equal(t, int32(3), up.calls.Load())
}

func TestNewServer_InvalidTrustedProxy(t *testing.T) {
	l := log.New()
	l.SetOutput(io.Discard)
	_, err := NewServer(config.Config{TrustedProxies: []string{"proxy.internal"}}, config.StaticCredentials(""), WithLogger(l))
	assert.Error(t, err)
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies, err := parseTrustedProxies([]string{"192.0.2.1", "2001:db8::/32"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    string
		real   string
		want   string
	}{
		{"untrusted peer", "198.51.100.9:1000", "203.0.113.1", "203.0.113.2", "198.51.100.9"},
		{"trusted forwarded", "192.0.2.1:1000", "203.0.113.1", "", "203.0.113.1"},
		{"trusted real ip", "192.0.2.1:1000", "", "203.0.113.2", "203.0.113.2"},
		{"trusted garbage header", "192.0.2.1:1000", "not-an-ip", "", "192.0.2.1"},
		{"trusted v6 proxy", "[2001:db8::1]:1000", "203.0.113.5", "", "203.0.113.5"},
		{"trusted without headers", "192.0.2.1:1000", "", "", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.real != "" {
				req.Header.Set("X-Real-IP", tt.real)
			}
			assert.Equal(t, tt.want, proxies.clientIP(req))
		})
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &upstream{}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUnits(t *testing.T) {
	h := newTestServer(t, &upstream{}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/units", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var org struct {
		Name  string `json:"name"`
		Units []struct {
			Key   string `json:"key"`
			Title string `json:"title"`
		} `json:"units"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &org))
	assert.Equal(t, "QueerHafen Kollektiv", org.Name)
	assert.Len(t, org.Units, 10)
}

func TestUsage_DisabledWithoutDatabase(t *testing.T) {
	h := newTestServer(t, &upstream{}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndexPage(t *testing.T) {
	h := newTestServer(t, &upstream{}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "ngo-chat-messages")
	assert.Contains(t, rec.Body.String(), "ngo-chat-padnotes")
	assert.Contains(t, rec.Body.String(), "Bei akuter Gefahr bitte sofort den lokalen Notruf (112) oder Hilfetelefon (z.B. 08000 116 016) kontaktieren.")
	assert.Less(t, strings.Index(rec.Body.String(), `id="safety"`), strings.Index(rec.Body.String(), `id="log"`))
	assert.Contains(t, rec.Body.String(), "wait(TYPING_DELAY_MS)")
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, &upstream{}, "", func(c *config.Config) { c.AllowedOrigin = "https://workshop.example" })

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://workshop.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://workshop.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIPLimiter_SweepsIdleVisitors(t *testing.T) {
	l := newIPLimiter(1, 1)
	require.NotNil(t, l)
	now := l.now()
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))

	now = now.Add(limiterIdle + time.Minute)
	assert.True(t, l.allow("10.0.0.3"))
	l.mu.Lock()
	assert.Len(t, l.visitors, 1)
	l.mu.Unlock()

	assert.Nil(t, newIPLimiter(0, 5))
}

func TestIPLimiter_CapsTrackedVisitors(t *testing.T) {
	l := newIPLimiter(1, 5)
	require.NotNil(t, l)
	l.max = 3
	now := l.now()
	l.now = func() time.Time { return now }

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		assert.True(t, l.allow(ip))
	}
	assert.False(t, l.allow("10.0.0.4"))
	assert.True(t, l.allow("10.0.0.1"))
	l.mu.Lock()
	assert.Len(t, l.visitors, 3)
	l.mu.Unlock()

	now = now.Add(limiterIdle + time.Second)
	assert.True(t, l.allow("10.0.0.4"))
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, &upstream{}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Len(t, rec.Header().Get("X-Request-Id"), 36)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-Id", "workshop-7")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "workshop-7", rec.Header().Get("X-Request-Id"))
}
