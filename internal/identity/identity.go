// Package identity resolves the user that owns conversion history.
package identity

import (
	"context"
	"errors"
	"os"
	"os/user"
	"strings"
)

// ErrNoIdentity means no user is signed in; history is not recorded.
var ErrNoIdentity = errors.New("no user identity available")

// Provider returns the current user's id.
type Provider interface {
	CurrentUser(ctx context.Context) (string, error)
}

// Static is a provider with a fixed user id. An empty id means signed out.
type Static struct {
	UserID string
}

// CurrentUser returns the configured id or ErrNoIdentity.
func (s Static) CurrentUser(ctx context.Context) (string, error) {
	id := strings.TrimSpace(s.UserID)
	if id == "" {
		return "", ErrNoIdentity
	}
	return id, nil
}

// FromConfig returns a provider for the configured user id. When allowOS is
// set and no id is configured, the operating system account name is used.
func FromConfig(userID string, allowOS bool) Provider {
	if strings.TrimSpace(userID) != "" || !allowOS {
		return Static{UserID: userID}
	}
	return Static{UserID: osUser()}
}

func osUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
