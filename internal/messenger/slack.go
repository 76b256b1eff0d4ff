package messenger

import (
	"context"
	"fmt"
	"sync"

	"github.com/slack-go/slack"
)

// Slack maps the contract onto chat.postMessage: botToken is the API
// token, chatID the channel, the returned timestamp the message id.
type Slack struct {
	mu      sync.Mutex
	clients map[string]*slack.Client
}

func NewSlack() *Slack {
	return &Slack{clients: make(map[string]*slack.Client)}
}

func (s *Slack) client(token string) *slack.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[token]; ok {
		return c
	}
	c := slack.New(token)
	s.clients[token] = c
	return c
}

func (s *Slack) Send(ctx context.Context, botToken, chatID, text string) (string, error) {
	if botToken == "" {
		return "", fmt.Errorf("no API token configured")
	}
	_, ts, err := s.client(botToken).PostMessageContext(ctx, chatID,
		slack.MsgOptionText(text, false))
	if err != nil {
		return "", err
	}
	return ts, nil
}
