// Package store provides per-user persistence for portfolios, access
// tokens, and chat history.
package store

import (
	"context"

	"vizbot/internal/models"
)

// UserData is the full persisted state for one chat user.
type UserData struct {
	Portfolio   models.Portfolio `json:"portfolio"`
	AccessToken string           `json:"accessToken,omitempty"`
	Messages    []models.Message `json:"messages,omitempty"`
}

// UserDataPatch is a partial update. Nil fields are left untouched so a
// chat turn only writes what it changed.
type UserDataPatch struct {
	Portfolio   *models.Portfolio
	AccessToken *string
	Messages    []models.Message
}

// UserStore persists user state keyed by user ID.
type UserStore interface {
	// Get loads a user's state. Returns ok=false when the user is unknown.
	Get(ctx context.Context, userID string) (UserData, bool, error)

	// Save applies a patch to a user's state, creating the row if needed.
	// The base is what Get returned for unknown users: callers seed new
	// users by passing a full patch.
	Save(ctx context.Context, userID string, patch UserDataPatch) error

	// Delete removes all state for a user.
	Delete(ctx context.Context, userID string) error

	Close() error
}
