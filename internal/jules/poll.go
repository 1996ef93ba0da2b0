package jules

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"julep/internal/llm"
	"julep/internal/logging"
)

// TimeoutNotice is pushed to the sink when the iteration cap is reached
// before the session completes. A timeout is not an error: the partial
// transcript already delivered stands.
const TimeoutNotice = "\n[Timeout waiting for agent]\n"

// Defaults for the polling cadence: 600 polls at 2s is a 20 minute ceiling.
const (
	DefaultInterval = 2 * time.Second
	DefaultMaxPolls = 600
	DefaultPageSize = 100

	// DefaultMaxListFailures bounds consecutive listing failures before the
	// run is abandoned. A single flaky poll is retried on the next tick; a
	// dead endpoint is not retried for the full 20 minutes.
	DefaultMaxListFailures = 5
)

// api is the slice of Client the poller depends on, split out so tests can
// substitute a scripted implementation.
type api interface {
	CreateSession(ctx context.Context, prompt string) (string, error)
	SendMessage(ctx context.Context, sessionID, prompt string) error
	ListActivities(ctx context.Context, sessionID string, pageSize int) ([]Activity, error)
}

// Poller drives the fetch/classify/render cycle for one submission at a time.
// It is sequential by construction: one outstanding call, then a sleep, for
// up to maxPolls iterations. The registry is the only state shared across
// concurrent submissions.
type Poller struct {
	client          api
	registry        *SessionRegistry
	interval        time.Duration
	maxPolls        int
	pageSize        int
	maxListFailures int
	logger          *log.Logger
}

// PollerOptions tunes the polling cadence. Zero values select the defaults.
type PollerOptions struct {
	Interval        time.Duration
	MaxPolls        int
	PageSize        int
	MaxListFailures int
	Logger          *log.Logger
}

func NewPoller(client api, registry *SessionRegistry, opts PollerOptions) *Poller {
	if registry == nil {
		registry = NewSessionRegistry()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxListFailures := opts.MaxListFailures
	if maxListFailures <= 0 {
		maxListFailures = DefaultMaxListFailures
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Poller{
		client:          client,
		registry:        registry,
		interval:        interval,
		maxPolls:        maxPolls,
		pageSize:        pageSize,
		maxListFailures: maxListFailures,
		logger:          logger,
	}
}

// Run submits prompt for the conversation identified by key and streams the
// remote agent's progress into sink until the session completes, the
// iteration cap is reached, or ctx is cancelled.
//
// A stored session id means this is a follow-up turn: the prompt goes to the
// existing session. Otherwise a session is created and recorded. Either
// failure aborts the submission. Once polling starts, listing failures are
// transient up to maxListFailures consecutive misses: the iteration is
// skipped and the next tick retries; past the bound the run aborts.
func (p *Poller) Run(ctx context.Context, key, prompt string, sink llm.Sink) error {
	sessionID, resumed := p.registry.Get(key)
	if resumed {
		if err := p.client.SendMessage(ctx, sessionID, prompt); err != nil {
			return err
		}
		p.logger.Printf("[jules] resumed session %s for %s", sessionID, key)
	} else {
		id, err := p.client.CreateSession(ctx, prompt)
		if err != nil {
			return err
		}
		p.registry.Set(key, id)
		sessionID = id
		p.logger.Printf("[jules] new session %s for %s", sessionID, key)
	}

	processed := make(map[string]struct{})
	failures := 0
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for iteration := 0; iteration < p.maxPolls; iteration++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		timer.Reset(p.interval)

		activities, err := p.client.ListActivities(ctx, sessionID, p.pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures >= p.maxListFailures {
				return fmt.Errorf("list activities failed %d times in a row: %w", failures, err)
			}
			logging.DevLog("jules: poll %d failed, will retry: %v", iteration, err)
			continue
		}
		failures = 0

		// Pages arrive newest-first; walk them in reverse so rendering is
		// oldest-first.
		for i := len(activities) - 1; i >= 0; i-- {
			activity := activities[i]
			if _, seen := processed[activity.Name]; seen {
				continue
			}
			processed[activity.Name] = struct{}{}

			text, done := Render(activity)
			if text != "" {
				sink.PushText(text)
			}
			if done {
				sink.Done()
				return nil
			}
		}
	}

	sink.PushText(TimeoutNotice)
	return nil
}
