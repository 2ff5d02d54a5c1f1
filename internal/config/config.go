package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Port          string
	AllowedOrigin string
	// Upstream completion service
	BaseURL string
	Model   string
	// Optional path to a prompt policy YAML; the embedded default is used when empty
	PromptFile string
	// Database for the usage ledger; disabled when empty
	DatabaseURL string
	// Per-client rate limit on /api/chat
	RateLimitRPS   float64
	RateLimitBurst int
	// Peers (IPs or CIDRs) whose X-Forwarded-For / X-Real-IP headers are
	// believed; everyone else is keyed on the socket address
	TrustedProxies []string
	LogLevel       string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Port:           getEnvDefault("PORT", "8080"),
		AllowedOrigin:  getEnvDefault("ALLOWED_ORIGIN", "*"),
		BaseURL:        getEnvDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:          os.Getenv("OPENAI_MODEL"),
		PromptFile:     os.Getenv("PROMPT_FILE"),
		DatabaseURL:    os.Getenv("DB_URL"),
		RateLimitRPS:   getEnvFloatDefault("RATE_LIMIT_RPS", 1),
		RateLimitBurst: getEnvIntDefault("RATE_LIMIT_BURST", 5),
		TrustedProxies: getEnvList("TRUSTED_PROXY"),
		LogLevel:       getEnvDefault("LOG_LEVEL", "info"),
	}
	if os.Getenv(APIKeyEnv) == "" {
		log.Warnf("%s is not set; chat requests will fail until provided", APIKeyEnv)
	}
	return cfg
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvIntDefault(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warnf("ignoring invalid %s=%q", key, v)
	}
	return def
}

func getEnvFloatDefault(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warnf("ignoring invalid %s=%q", key, v)
	}
	return def
}
