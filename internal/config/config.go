// Package config loads the backend configuration from environment variables,
// with optional .env support.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	// Server configuration
	ServerHost string
	ServerPort string
	LogLevel   string

	// MCP connection
	MCPTransport string // "stdio" or "http"
	MCPRemoteURL string // remote MCP URL, used by the stdio proxy or directly by http
	MCPCommand   string // stdio proxy command
	MCPArgs      []string

	// LLM configuration
	GoogleAPIKey  string
	OpenAIKey     string
	OpenAIBaseURL string
	RouterModel   string
	FastModel     string
	SmartModel    string
	ComplexModel  string
	MaxIterations int

	// Bridge timeouts
	ReadyTimeout  time.Duration
	SubmitTimeout time.Duration
	StreamTimeout time.Duration

	// History store configuration
	HistoryBackend string // "memory", "sqlite", "redis" or "postgres"
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	PostgresURL    string
	MaxHistory     int
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is loaded first if present.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort: getEnv("SERVER_PORT", "8000"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		MCPTransport: getEnv("MCP_TRANSPORT", "stdio"),
		MCPRemoteURL: getEnv("MCP_REMOTE_URL", "https://mcp.atlassian.com/v1/sse"),
		MCPCommand:   getEnv("MCP_COMMAND", "npx"),

		GoogleAPIKey:  os.Getenv("GOOGLE_API_KEY"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		RouterModel:   getEnv("ROUTER_MODEL", "gemini-2.5-flash-lite"),
		FastModel:     getEnv("FAST_MODEL", "gemini-2.5-flash"),
		SmartModel:    getEnv("SMART_MODEL", "gpt-4.1-2025-04-14"),
		ComplexModel:  getEnv("COMPLEX_MODEL", "o4-mini-2025-04-16"),
		MaxIterations: getEnvInt("AGENT_MAX_ITERATIONS", 20),

		ReadyTimeout:  getEnvDuration("BRIDGE_READY_TIMEOUT", 30*time.Second),
		SubmitTimeout: getEnvDuration("BRIDGE_SUBMIT_TIMEOUT", 120*time.Second),
		StreamTimeout: getEnvDuration("BRIDGE_STREAM_TIMEOUT", 300*time.Second),

		HistoryBackend: getEnv("HISTORY_BACKEND", "memory"),
		SQLitePath:     getEnv("SQLITE_PATH", "atlaschat.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		PostgresURL:    os.Getenv("POSTGRES_URL"),
		MaxHistory:     getEnvInt("MAX_HISTORY", 50),
	}

	if args := os.Getenv("MCP_ARGS"); args != "" {
		cfg.MCPArgs = strings.Fields(args)
	} else {
		cfg.MCPArgs = []string{"-y", "mcp-remote", cfg.MCPRemoteURL}
	}

	return cfg
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY environment variable is required")
	}
	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}
	switch c.MCPTransport {
	case "stdio", "http":
	default:
		return fmt.Errorf("unsupported MCP_TRANSPORT %q", c.MCPTransport)
	}
	switch c.HistoryBackend {
	case "memory", "sqlite", "redis", "postgres":
	default:
		return fmt.Errorf("unsupported HISTORY_BACKEND %q", c.HistoryBackend)
	}
	if c.HistoryBackend == "postgres" && c.PostgresURL == "" {
		return fmt.Errorf("POSTGRES_URL is required when HISTORY_BACKEND is postgres")
	}
	return nil
}

// Addr returns the host:port pair for the HTTP listener.
func (c Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
