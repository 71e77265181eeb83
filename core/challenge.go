package core

import "time"

// Challenge is a one-time text puzzle bound to a session id
type Challenge struct {
	SessionID string    // Opaque id handed to the client
	Answer    string    // Expected answer, case-folded
	CreatedAt time.Time // When the challenge was issued
	ExpiresAt time.Time // When the stored answer disappears
}

// IssuedChallenge is what the client receives for a new challenge
type IssuedChallenge struct {
	SessionID string
	Image     string // Rendered challenge, a data URI
	ExpiresIn int64  // Seconds until the challenge expires
}

// ChallengeAlphabet is the answer character set. Characters that are easy
// to misread (0/O/o, 1/l/I/i) are left out.
const ChallengeAlphabet = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
