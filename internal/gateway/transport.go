package gateway

import (
	"bytes"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 64 << 10

// errorCapture remembers the status and body of a non-2xx upstream
// response and hands an identical body on to the caller. One instance
// serves exactly one call.
type errorCapture struct {
	base   http.RoundTripper
	status int
	body   []byte
}

func (c *errorCapture) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	b, rerr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	if rerr != nil {
		return nil, rerr
	}
	c.status = resp.StatusCode
	c.body = b
	resp.Body = io.NopCloser(bytes.NewReader(b))
	return resp, nil
}

// bearerClient returns an HTTP client that authenticates every request with
// key and records error responses in capture.
func bearerClient(key string, capture *errorCapture) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"}),
			Base:   capture,
		},
	}
}
