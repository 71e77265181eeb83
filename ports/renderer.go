package ports

// ChallengeRenderer turns a challenge answer into something only a human reads
type ChallengeRenderer interface {
	Render(answer string) (string, error)
}
