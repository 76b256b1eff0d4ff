// Package messenger carries the transport contract the engine needs
// from the outbound provider: send text to a channel, get a provider
// message id back.
package messenger

import (
	"context"
	"fmt"
)

type Messenger interface {
	// Send delivers text to chatID using botToken's identity and
	// returns the provider's message id.
	Send(ctx context.Context, botToken, chatID, text string) (string, error)
}

// Config selects and parameterizes the provider.
type Config struct {
	Provider string // "telegram" or "slack"
}

func New(cfg Config) (Messenger, error) {
	switch cfg.Provider {
	case "", "telegram":
		return NewTelegram(), nil
	case "slack":
		return NewSlack(), nil
	default:
		return nil, fmt.Errorf("unknown messenger provider %q", cfg.Provider)
	}
}
