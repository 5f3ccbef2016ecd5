package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// APIBaseURL is the REST collaborator root, including the /api prefix.
	APIBaseURL string `env:"QRC_API_URL,    default=http://localhost:5000/api"`
	// SocketURL is the websocket endpoint of the push collaborator.
	SocketURL string `env:"QRC_SOCKET_URL, default=ws://localhost:5000/ws"`
	LogLevel  string `env:"LOG_LEVEL,      default=info"`

	// CredentialFile overrides where the bearer credential is persisted.
	// Empty means the per-user config directory.
	CredentialFile string `env:"QRC_CREDENTIAL_FILE"`

	HTTPTimeout time.Duration `env:"QRC_HTTP_TIMEOUT, default=10s"`

	Reconnect ReconnectConfig
}

// ReconnectConfig makes the transport channel's retry policy explicit
// rather than a hidden library default.
type ReconnectConfig struct {
	Attempts int           `env:"QRC_RECONNECT_ATTEMPTS, default=5"`
	Delay    time.Duration `env:"QRC_RECONNECT_DELAY,    default=1s"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
