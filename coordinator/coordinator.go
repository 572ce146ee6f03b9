package coordinator

import (
	"log/slog"
	"time"

	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// Coordinator drives threshold-signing ceremonies through their rounds. It is
// safe for concurrent use by independent participant processes: every session
// mutation goes through the repository's optimistic-lock contract, and no
// call blocks waiting for other participants.
type Coordinator struct {
	repo     interfaces.SessionRepository
	registry interfaces.FederationRegistry

	publisher interfaces.PublicationAdapter
	notifier  interfaces.CompletionNotifier

	log        *slog.Logger
	now        func() time.Time
	sessionTTL time.Duration
}

// New creates a coordinator over the given repository and federation
// registry. Publication and notification are optional; configure them with
// WithPublisher and WithNotifier.
func New(repo interfaces.SessionRepository, registry interfaces.FederationRegistry, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		repo:       repo,
		registry:   registry,
		log:        log,
		now:        time.Now,
		sessionTTL: interfaces.DefaultSessionTTL,
	}
}

// WithPublisher returns a copy of the coordinator that publishes completed
// signatures through the given adapter.
func (c *Coordinator) WithPublisher(publisher interfaces.PublicationAdapter) *Coordinator {
	dup := *c
	dup.publisher = publisher
	return &dup
}

// WithNotifier returns a copy of the coordinator that emits completion
// notices through the given notifier.
func (c *Coordinator) WithNotifier(notifier interfaces.CompletionNotifier) *Coordinator {
	dup := *c
	dup.notifier = notifier
	return &dup
}

// WithClock returns a copy of the coordinator using the given time source.
// Useful for testing expiration behavior with deterministic clocks.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	dup := *c
	dup.now = now
	return &dup
}

// WithSessionTTL returns a copy of the coordinator with a different default
// ceremony deadline.
func (c *Coordinator) WithSessionTTL(ttl time.Duration) *Coordinator {
	dup := *c
	dup.sessionTTL = ttl
	return &dup
}

func (c *Coordinator) nowMillis() int64 {
	return c.now().UnixMilli()
}

// nextToken produces a strictly increasing optimistic-lock token. Two writes
// within the same millisecond must still produce distinct tokens, or a stale
// reader could pass the conditional write.
func nextToken(nowMillis, prev int64) int64 {
	if nowMillis > prev {
		return nowMillis
	}
	return prev + 1
}
