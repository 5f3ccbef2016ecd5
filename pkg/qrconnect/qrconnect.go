// Package qrconnect is the public entry point of the sync client SDK. It
// composes the session facade from configuration: REST client, realtime
// channel, and credential store, all owned by the returned client and
// released by its Close.
package qrconnect

import (
	"github.com/rs/zerolog"

	"github.com/qrconnect/qrconnect-client/internal/core/service"
	"github.com/qrconnect/qrconnect-client/internal/infrastructure/credentials"
	"github.com/qrconnect/qrconnect-client/internal/infrastructure/rest"
	"github.com/qrconnect/qrconnect-client/internal/infrastructure/socket"
	"github.com/qrconnect/qrconnect-client/internal/pkg/config"
	"github.com/qrconnect/qrconnect-client/pkg/logger"
)

// Client is the session facade the host application depends on.
type Client = service.Client

// New builds a client from explicit configuration.
func New(cfg *config.Config, log zerolog.Logger) (*Client, error) {
	creds, err := credentials.NewFileStore(cfg.CredentialFile)
	if err != nil {
		return nil, err
	}

	api := rest.NewClient(rest.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.HTTPTimeout,
	}, log.With().Str("component", "rest").Logger())

	channel := socket.NewChannel(socket.Config{
		URL:      cfg.SocketURL,
		Attempts: cfg.Reconnect.Attempts,
		Delay:    cfg.Reconnect.Delay,
	}, log.With().Str("component", "socket").Logger())

	return service.NewClient(api, creds, channel, log), nil
}

// NewFromEnv builds a client from environment configuration and initialises
// the process logger at the configured level.
func NewFromEnv() (*Client, error) {
	cfg := config.Load()
	log := logger.Init(logger.Options{Level: cfg.LogLevel})
	return New(cfg, log)
}
