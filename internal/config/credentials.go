package config

import (
	"os"
	"strings"
)

// APIKeyEnv names the environment variable holding the upstream bearer credential.
const APIKeyEnv = "OPENAI_API_KEY"

// CredentialProvider supplies the upstream API key. Implementations are
// consulted once per request and must not cache across requests.
type CredentialProvider interface {
	APIKey() string
}

// EnvCredentials reads the key from the process environment on every call.
type EnvCredentials struct {
	Var string
}

func (e EnvCredentials) APIKey() string {
	name := e.Var
	if name == "" {
		name = APIKeyEnv
	}
	return strings.TrimSpace(os.Getenv(name))
}

// StaticCredentials always returns the same key.
type StaticCredentials string

func (s StaticCredentials) APIKey() string { return strings.TrimSpace(string(s)) }
