package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// challengeMarker is the title signature of the registry's interstitial
// bot-verification page.
const challengeMarker = "just a moment"

// IsChallenge reports whether a page title looks like the anti-bot
// interstitial rather than real content.
func IsChallenge(title string) bool {
	return strings.Contains(strings.ToLower(title), challengeMarker)
}

// TitleProbe re-reads the current page title.
type TitleProbe func(ctx context.Context) (string, error)

// AwaitChallengeClear polls the title probe until the challenge signature
// disappears or maxWait elapses. Poll intervals are randomized rather than
// fixed so the polling itself has no detectable periodicity.
//
// Returns whether the challenge cleared; the caller decides whether a
// timeout fails the run or degrades the record.
func AwaitChallengeClear(ctx context.Context, probe TitleProbe, maxWait time.Duration) bool {
	deadline := time.Now().Add(maxWait)

	for time.Now().Before(deadline) {
		if !sleepJitter(ctx, 500*time.Millisecond, time.Second) {
			return false
		}
		title, err := probe(ctx)
		if err != nil {
			// The surface may be gone mid-challenge; proceed with what we have.
			slog.Debug("challenge probe failed, proceeding", "error", err)
			return false
		}
		if !IsChallenge(title) {
			return true
		}
	}

	slog.Warn("challenge did not clear within wait budget", "max_wait", maxWait)
	return false
}

// sleepJitter sleeps for a uniformly random duration in [min, max].
// Returns false if the context was canceled first.
func sleepJitter(ctx context.Context, min, max time.Duration) bool {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
