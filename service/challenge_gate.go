package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/ports"
	"go.uber.org/zap"
)

const (
	DefaultChallengeTTL    = 300 * time.Second
	DefaultChallengeLength = 4
)

// ChallengeGate issues one-time challenges and verifies answers to them
type ChallengeGate struct {
	store    ports.ChallengeStore
	renderer ports.ChallengeRenderer
	logger   *zap.Logger

	ttl     time.Duration
	length  int
	now     func() time.Time
	answers func(length int) (string, error)
}

// ChallengeOption configures a ChallengeGate
type ChallengeOption func(*ChallengeGate)

// WithAnswerSource replaces the random answer generator
func WithAnswerSource(fn func(length int) (string, error)) ChallengeOption {
	return func(g *ChallengeGate) {
		g.answers = fn
	}
}

// WithChallengeLogger sets the logger used for store failures
func WithChallengeLogger(logger *zap.Logger) ChallengeOption {
	return func(g *ChallengeGate) {
		g.logger = logger
	}
}

// NewChallengeGate creates a new challenge gate
func NewChallengeGate(store ports.ChallengeStore, renderer ports.ChallengeRenderer, ttl time.Duration, length int, opts ...ChallengeOption) *ChallengeGate {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	if length <= 0 {
		length = DefaultChallengeLength
	}

	g := &ChallengeGate{
		store:    store,
		renderer: renderer,
		logger:   zap.NewNop(),
		ttl:      ttl,
		length:   length,
		now:      time.Now,
		answers:  randomAnswer,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Issue generates a new challenge, stores its case-folded answer and
// returns the rendered image
func (g *ChallengeGate) Issue(ctx context.Context) (*core.IssuedChallenge, error) {
	answer, err := g.answers(g.length)
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge answer: %w", err)
	}

	image, err := g.renderer.Render(answer)
	if err != nil {
		return nil, fmt.Errorf("failed to render challenge: %w", err)
	}

	now := g.now()
	challenge := core.Challenge{
		SessionID: uuid.NewString(),
		Answer:    foldAnswer(answer),
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}

	if err := g.store.Save(ctx, challenge.SessionID, challenge.Answer, g.ttl); err != nil {
		return nil, err
	}

	return &core.IssuedChallenge{
		SessionID: challenge.SessionID,
		Image:     image,
		ExpiresIn: int64(g.ttl / time.Second),
	}, nil
}

// Verify reports whether answer matches the stored challenge. A match
// consumes the challenge; a miss leaves it in place.
func (g *ChallengeGate) Verify(ctx context.Context, sessionID, answer string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	answer = foldAnswer(answer)
	if sessionID == "" || answer == "" {
		return false, nil
	}

	ok, err := g.store.Consume(ctx, sessionID, answer)
	if err != nil {
		g.logger.Warn("challenge verification failed", zap.String("session_id", sessionID), zap.Error(err))
		return false, err
	}
	return ok, nil
}

// Clear removes a challenge without checking its answer
func (g *ChallengeGate) Clear(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	return g.store.Delete(ctx, sessionID)
}

// Refresh clears oldSessionID when given and issues a new challenge
func (g *ChallengeGate) Refresh(ctx context.Context, oldSessionID string) (*core.IssuedChallenge, error) {
	if err := g.Clear(ctx, oldSessionID); err != nil {
		g.logger.Warn("failed to clear previous challenge", zap.String("session_id", oldSessionID), zap.Error(err))
	}
	return g.Issue(ctx)
}

func foldAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

func randomAnswer(length int) (string, error) {
	alphabet := core.ChallengeAlphabet
	size := big.NewInt(int64(len(alphabet)))

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}
