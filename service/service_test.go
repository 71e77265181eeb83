package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/gatekeeper/adapters/directory"
	"github.com/layer-3/gatekeeper/adapters/store"
	"github.com/layer-3/gatekeeper/adapters/tokenizer"
	"github.com/layer-3/gatekeeper/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubRenderer struct{}

func (stubRenderer) Render(answer string) (string, error) {
	return "data:image/png;base64," + answer, nil
}

type recordedEvent struct {
	topic       string
	principalID string
	reason      core.Reason
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) PublishLogout(_ context.Context, principalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{topic: "logout", principalID: principalID})
	return nil
}

func (r *recordingEvents) PublishRefreshRejected(_ context.Context, principalID string, reason core.Reason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{topic: "refresh_rejected", principalID: principalID, reason: reason})
	return nil
}

func (r *recordingEvents) All() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

var alice = core.Principal{
	ID:          "p-1",
	AccountName: "alice",
	Email:       "alice@example.com",
	Scopes:      []string{"read", "write"},
}

type fixture struct {
	clock     *testClock
	records   *store.MemoryRefreshStore
	directory *directory.MemoryDirectory
	events    *recordingEvents
	gate      *ChallengeGate
	issuer    *TokenIssuer
	svc       *AuthService
	answer    string
}

func newFixture(t *testing.T, rotate bool) *fixture {
	t.Helper()

	f := &fixture{
		clock:  newTestClock(),
		events: &recordingEvents{},
		answer: "7gH2",
	}

	tok, err := tokenizer.NewJWTTokenizer([]byte("access-secret"), []byte("refresh-secret"), tokenizer.WithClock(f.clock.Now))
	require.NoError(t, err)

	f.records = store.NewMemoryRefreshStore(f.clock.Now)
	f.directory = directory.NewMemoryDirectory(bcrypt.MinCost)
	require.NoError(t, f.directory.Add(alice, "correct horse"))

	f.gate = NewChallengeGate(
		store.NewMemoryChallengeStore(f.clock.Now),
		stubRenderer{},
		DefaultChallengeTTL,
		DefaultChallengeLength,
		WithAnswerSource(func(int) (string, error) { return f.answer, nil }),
	)
	f.gate.now = f.clock.Now

	f.issuer = NewTokenIssuer(tok, f.records, TokenLifetimes{}, f.clock.Now)
	f.svc = NewAuthService(f.gate, f.issuer, f.records, f.directory, Options{
		RotateRefreshTokens: rotate,
		Events:              f.events,
	})
	return f
}

func (f *fixture) login(t *testing.T) core.TokenPair {
	t.Helper()
	ch, err := f.gate.Issue(context.Background())
	require.NoError(t, err)

	pair, err := f.svc.Login(context.Background(), LoginInput{
		AccountName:     "alice",
		Password:        "correct horse",
		ChallengeAnswer: f.answer,
		SessionID:       ch.SessionID,
	})
	require.NoError(t, err)
	return pair
}

func TestChallengeAnswerIsCaseInsensitiveAndSingleUse(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	ch, err := f.gate.Issue(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, ch.SessionID)
	assert.Equal(t, int64(300), ch.ExpiresIn)
	assert.True(t, strings.HasPrefix(ch.Image, "data:image/"))

	ok, err := f.gate.Verify(ctx, ch.SessionID, "7gh2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.gate.Verify(ctx, ch.SessionID, "7gh2")
	require.NoError(t, err)
	assert.False(t, ok, "a challenge verifies at most once")
}

func TestChallengeWrongAnswerKeepsChallenge(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	ch, err := f.gate.Issue(ctx)
	require.NoError(t, err)

	ok, err := f.gate.Verify(ctx, ch.SessionID, "zzzz")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.gate.Verify(ctx, ch.SessionID, " 7GH2 ")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChallengeEmptyInputs(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	ch, err := f.gate.Issue(ctx)
	require.NoError(t, err)

	for _, tc := range []struct{ sid, answer string }{
		{"", "7gh2"},
		{ch.SessionID, ""},
		{"   ", "   "},
		{"unknown-session", "7gh2"},
	} {
		ok, err := f.gate.Verify(ctx, tc.sid, tc.answer)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestChallengeExpires(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	ch, err := f.gate.Issue(ctx)
	require.NoError(t, err)

	f.clock.Advance(DefaultChallengeTTL + time.Second)
	ok, err := f.gate.Verify(ctx, ch.SessionID, f.answer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChallengeRefreshClearsPrevious(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.gate.Issue(ctx)
	require.NoError(t, err)

	second, err := f.gate.Refresh(ctx, first.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	ok, err := f.gate.Verify(ctx, first.SessionID, f.answer)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.gate.Verify(ctx, second.SessionID, f.answer)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRandomAnswerUsesUnambiguousAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		answer, err := randomAnswer(DefaultChallengeLength)
		require.NoError(t, err)
		require.Len(t, answer, DefaultChallengeLength)
		assert.NotContains(t, answer, "0")
		assert.NotContains(t, answer, "O")
		assert.NotContains(t, answer, "o")
		assert.NotContains(t, answer, "1")
		assert.NotContains(t, answer, "l")
		assert.NotContains(t, answer, "I")
		assert.NotContains(t, answer, "i")
		for _, r := range answer {
			assert.Contains(t, core.ChallengeAlphabet, string(r))
		}
	}
}

func TestAccessTokenLifetime(t *testing.T) {
	f := newFixture(t, true)

	access, err := f.issuer.IssueAccess(alice)
	require.NoError(t, err)
	assert.Equal(t, DefaultAccessTTL, access.Claims.Lifetime())
	assert.Equal(t, []string{"read", "write"}, access.Claims.Scopes)

	f.clock.Advance(time.Second)
	claims, err := f.issuer.VerifyAccess(access.Value)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.PrincipalID)
	assert.Equal(t, core.TokenKindAccess, claims.Kind)

	f.clock.Advance(DefaultAccessTTL)
	_, err = f.issuer.VerifyAccess(access.Value)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	refresh, err := f.issuer.IssueRefresh(ctx, alice)
	require.NoError(t, err)

	claims, err := f.issuer.VerifyRefreshSignature(refresh.Value)
	require.NoError(t, err)
	assert.Equal(t, refresh.Claims.ID, claims.ID)
	assert.Equal(t, refresh.Claims.PrincipalID, claims.PrincipalID)
	assert.Equal(t, refresh.Claims.Kind, claims.Kind)
	assert.True(t, refresh.Claims.IssuedAt.Equal(claims.IssuedAt))
	assert.True(t, refresh.Claims.ExpiresAt.Equal(claims.ExpiresAt))

	stored, err := f.records.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, refresh.Value, stored)
}

func TestLoginEndToEnd(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	ch, err := f.gate.Issue(ctx)
	require.NoError(t, err)

	input := LoginInput{
		AccountName:     "alice",
		Password:        "correct horse",
		ChallengeAnswer: "7GH2",
		SessionID:       ch.SessionID,
	}
	pair, err := f.svc.Login(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, int64(900), pair.ExpiresIn())

	claims, err := f.svc.ValidateAccessToken(ctx, pair.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.AccountName)

	_, err = f.svc.Login(ctx, input)
	assert.ErrorIs(t, err, core.ErrCaptchaInvalidOrExpired, "the challenge was consumed by the first login")
}

func TestLoginChecksChallengeBeforeCredentials(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	ch, err := f.gate.Issue(ctx)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginInput{
		AccountName:     "alice",
		Password:        "wrong",
		ChallengeAnswer: "nope",
		SessionID:       ch.SessionID,
	})
	assert.ErrorIs(t, err, core.ErrCaptchaInvalidOrExpired)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	for _, tc := range []struct {
		name     string
		account  string
		password string
	}{
		{"wrong password", "alice", "wrong"},
		{"unknown account", "mallory", "correct horse"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ch, err := f.gate.Issue(ctx)
			require.NoError(t, err)

			_, err = f.svc.Login(ctx, LoginInput{
				AccountName:     tc.account,
				Password:        tc.password,
				ChallengeAnswer: f.answer,
				SessionID:       ch.SessionID,
			})
			assert.ErrorIs(t, err, core.ErrInvalidCredentials)
		})
	}

	_, err := f.records.Get(ctx, alice.ID)
	assert.ErrorIs(t, err, core.ErrRefreshRecordAbsent)
}

func TestRefreshRotates(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	pair := f.login(t)

	f.clock.Advance(time.Second)
	next, err := f.svc.Refresh(ctx, pair.Refresh.Value)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Refresh.Value, next.Refresh.Value)
	assert.NotEqual(t, pair.Access.Value, next.Access.Value)

	_, err = f.svc.Refresh(ctx, pair.Refresh.Value)
	assert.ErrorIs(t, err, core.ErrRefreshTokenMismatch)

	_, err = f.svc.Refresh(ctx, next.Refresh.Value)
	require.NoError(t, err)
}

func TestRefreshWithoutRotationReturnsSameToken(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	pair := f.login(t)

	next, err := f.svc.Refresh(ctx, pair.Refresh.Value)
	require.NoError(t, err)
	assert.Equal(t, pair.Refresh.Value, next.Refresh.Value)

	again, err := f.svc.Refresh(ctx, pair.Refresh.Value)
	require.NoError(t, err)
	assert.Equal(t, pair.Refresh.Value, again.Refresh.Value)
}

func TestRefreshMismatchAfterNewLogin(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	first := f.login(t)
	f.clock.Advance(time.Second)
	f.login(t)

	_, err := f.svc.Refresh(ctx, first.Refresh.Value)
	assert.ErrorIs(t, err, core.ErrRefreshTokenMismatch)

	events := f.events.All()
	require.Len(t, events, 1)
	assert.Equal(t, "refresh_rejected", events[0].topic)
	assert.Equal(t, core.ReasonRefreshTokenMismatch, events[0].reason)
}

func TestLogoutRevokesRefresh(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	pair := f.login(t)

	require.NoError(t, f.svc.Logout(ctx, alice.ID))
	require.NoError(t, f.svc.Logout(ctx, alice.ID))

	_, err := f.svc.Refresh(ctx, pair.Refresh.Value)
	assert.ErrorIs(t, err, core.ErrRefreshRecordAbsent)

	_, err = f.svc.RecoverAccess(ctx, pair.Refresh.Value)
	assert.ErrorIs(t, err, core.ErrRefreshRecordAbsent)

	events := f.events.All()
	require.Len(t, events, 4)
	assert.Equal(t, "logout", events[0].topic)
	assert.Equal(t, "logout", events[1].topic)
	assert.Equal(t, core.ReasonRefreshRecordAbsent, events[2].reason)
}

func TestRefreshExpired(t *testing.T) {
	f := newFixture(t, true)
	pair := f.login(t)

	f.clock.Advance(DefaultRefreshTTL + time.Second)
	_, err := f.svc.Refresh(context.Background(), pair.Refresh.Value)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t, true)
	pair := f.login(t)

	_, err := f.svc.Refresh(context.Background(), pair.Access.Value)
	assert.ErrorIs(t, err, core.ErrTokenSignatureInvalid)
}

func TestRefreshForRemovedPrincipal(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	pair := f.login(t)

	f.directory.Remove(alice.ID)

	_, err := f.svc.Refresh(ctx, pair.Refresh.Value)
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)

	_, err = f.records.Get(ctx, alice.ID)
	assert.ErrorIs(t, err, core.ErrRefreshRecordAbsent)
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	pair := f.login(t)

	const workers = 10
	var (
		mu        sync.Mutex
		successes int
		mismatch  int
	)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := f.svc.Refresh(ctx, pair.Refresh.Value)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case core.ReasonOf(err) == core.ReasonRefreshTokenMismatch:
				mismatch++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, mismatch)
}

func TestRecoverAccessDoesNotRotate(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	pair := f.login(t)

	f.clock.Advance(DefaultAccessTTL + time.Second)

	access, err := f.svc.RecoverAccess(ctx, pair.Refresh.Value)
	require.NoError(t, err)

	claims, err := f.svc.ValidateAccessToken(ctx, access.Value)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.PrincipalID)

	stored, err := f.records.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, pair.Refresh.Value, stored)
}
