package trading

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashimhashmi02/Exness-be/internal/domain"
)

// Authenticator resolves an inbound credential to an account identity
// before any position or balance operation runs. Session issuance and
// transport wiring live outside the core; this is the boundary they call
// through.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (accountID string, err error)
}

// StaticAuthenticator maps opaque tokens to account ids in memory. The
// simulator seeds it with the demo account at bootstrap.
type StaticAuthenticator struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{tokens: make(map[string]string)}
}

// Grant registers a token for an account.
func (a *StaticAuthenticator) Grant(token, accountID string) {
	a.mu.Lock()
	a.tokens[token] = accountID
	a.mu.Unlock()
}

// Authenticate resolves a token; unknown tokens are indistinguishable from
// absent accounts.
func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	a.mu.RLock()
	id, ok := a.tokens[token]
	a.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("token: %w", domain.ErrNotFound)
	}
	return id, nil
}
