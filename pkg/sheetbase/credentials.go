package sheetbase

import (
	"context"
	"sync"

	"github.com/sheetbase/sheetbase/pkg/errors"
)

// credentials resolves the token sent with each call. A fixed token never
// changes; a refresh function is asked once up front and again after a
// rejection.
type credentials struct {
	mu      sync.Mutex
	token   string
	refresh func(ctx context.Context) (string, error)
	apiKey  string
}

func (c *credentials) canWrite() bool {
	return c.token != "" || c.refresh != nil
}

// current returns the token to send, fetching one on first use. An empty
// token means the call goes out with the api key.
func (c *credentials) current(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" || c.refresh == nil {
		return c.token, nil
	}
	return c.fetch(ctx)
}

// renew replaces a rejected token. When another caller already replaced
// stale, the newer token is returned without asking again.
func (c *credentials) renew(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.token != stale {
		return c.token, nil
	}
	return c.fetch(ctx)
}

func (c *credentials) fetch(ctx context.Context) (string, error) {
	token, err := c.refresh(ctx)
	if err != nil {
		return "", errors.NewCredentialError("credential refresh failed", err)
	}
	if token == "" {
		return "", errors.NewCredentialError("credential refresh returned an empty token", nil)
	}
	c.token = token
	return token, nil
}
