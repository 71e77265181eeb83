package ports

import (
	"context"
	"time"
)

// RefreshRecordStore keeps the single valid refresh token per principal.
// Entries expire on their own; there is no sweep.
type RefreshRecordStore interface {
	// Put overwrites the record for the principal, revoking any previous token
	Put(ctx context.Context, principalID, refreshToken string, ttl time.Duration) error
	// Get returns the current token or core.ErrRefreshRecordAbsent
	Get(ctx context.Context, principalID string) (string, error)
	// Delete removes the record; deleting a missing record is not an error
	Delete(ctx context.Context, principalID string) error
	// CompareAndSwap replaces current with next only if current is still stored.
	// It returns core.ErrRefreshRecordAbsent or core.ErrRefreshTokenMismatch otherwise.
	CompareAndSwap(ctx context.Context, principalID, current, next string, ttl time.Duration) error
}

// ChallengeStore keeps case-folded challenge answers by session id
type ChallengeStore interface {
	Save(ctx context.Context, sessionID, answer string, ttl time.Duration) error
	// Consume deletes the entry and returns true only when answer matches.
	// A wrong answer leaves the entry untouched.
	Consume(ctx context.Context, sessionID, answer string) (bool, error)
	Delete(ctx context.Context, sessionID string) error
}
