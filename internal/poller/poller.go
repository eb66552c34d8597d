// Package poller runs timed upstream search cycles for a hashtag set and
// hands canonical posts, oldest first, to a Sink.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/qepting91/tagstream/internal/backoff"
	"github.com/qepting91/tagstream/internal/canonical"
	"github.com/qepting91/tagstream/internal/domain"
)

// State is the lifecycle state of a Poller.
type State int

const (
	Idle State = iota
	Active
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Sink receives the output of a Poller. Publish is called once per post in
// chronological order; Fail is called once when polling stops on a
// terminal error.
type Sink interface {
	Publish(post domain.CanonicalPost)
	Fail(err error)
}

// Config tunes failure handling.
type Config struct {
	Backoff          backoff.Policy
	RateLimitDefault time.Duration
}

// DefaultConfig matches the upstream's documented limits.
func DefaultConfig() Config {
	return Config{
		Backoff:          backoff.Policy{Base: 5 * time.Second, Cap: 60 * time.Second},
		RateLimitDefault: 60 * time.Second,
	}
}

// Poller owns the poll cursor and the retry counter of the current run.
// A run lasts from Start to Stop; a restart begins with no cursor.
type Poller struct {
	searcher domain.Searcher
	sink     Sink
	cfg      Config
	log      *slog.Logger
	after    func(time.Duration) <-chan time.Time

	mu    sync.Mutex
	state State
	cur   *run
}

type run struct {
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	settings domain.FeedSettings
	query    domain.Query

	// guarded by Poller.mu
	cursor  string
	retries int
}

// New creates an idle Poller.
func New(searcher domain.Searcher, sink Sink, cfg Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Backoff.Base <= 0 || cfg.Backoff.Cap <= 0 {
		cfg.Backoff = DefaultConfig().Backoff
	}
	if cfg.RateLimitDefault <= 0 {
		cfg.RateLimitDefault = DefaultConfig().RateLimitDefault
	}
	return &Poller{
		searcher: searcher,
		sink:     sink,
		cfg:      cfg,
		log:      logger,
		after:    time.After,
		state:    Idle,
	}
}

// Start begins polling hashtags with a snapshot of settings. The first cycle
// runs immediately.
func (p *Poller) Start(hashtags []string, settings domain.FeedSettings) error {
	r, err := p.begin(hashtags, settings)
	if err != nil {
		return err
	}
	p.log.Info("poller started", "query", r.query.String(), "cadence_s", r.settings.CadenceSeconds)
	go p.loop(r)
	return nil
}

func (p *Poller) begin(hashtags []string, settings domain.FeedSettings) (*run, error) {
	if len(hashtags) == 0 {
		return nil, domain.ErrNoHashtags
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Active {
		return nil, domain.ErrAlreadyActive
	}

	snap := settings.Normalize()
	snap.Hashtags = slices.Clone(hashtags)

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		settings: snap,
		query:    domain.QueryFor(snap),
	}
	p.cur = r
	p.state = Active
	return r, nil
}

// Stop moves the Poller to Stopped and cancels any pending or in-flight
// cycle. The returned channel is closed once the run's last cycle has
// returned. Stop is idempotent.
func (p *Poller) Stop() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	wasActive := p.state == Active
	p.state = Stopped
	if p.cur == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	p.cur.cancel()
	if wasActive {
		p.log.Info("poller stopped")
	}
	return p.cur.done
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cursor returns the newest post id seen by the current run.
func (p *Poller) Cursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return ""
	}
	return p.cur.cursor
}

// Retries returns the consecutive transient failure count of the current run.
func (p *Poller) Retries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return 0
	}
	return p.cur.retries
}

func (p *Poller) loop(r *run) {
	defer close(r.done)

	var delay time.Duration
	for {
		if delay > 0 {
			select {
			case <-r.ctx.Done():
				return
			case <-p.after(delay):
			}
		}

		next, ok := p.cycle(r)
		if !ok {
			return
		}
		delay = next
	}
}

// cycle runs one search and forwards its results. It returns the delay
// before the next cycle, or ok=false when nothing must be rescheduled.
func (p *Poller) cycle(r *run) (next time.Duration, ok bool) {
	if r.ctx.Err() != nil {
		return 0, false
	}

	p.mu.Lock()
	params := domain.SearchParams{
		MaxResults: r.settings.CycleFetchLimit,
		SinceID:    r.cursor,
		Order:      domain.OrderRecency,
	}
	p.mu.Unlock()

	p.log.Debug("poll cycle", "since_id", params.SinceID)
	result, err := p.searcher.Search(r.ctx, r.query, params)
	if r.ctx.Err() != nil {
		return 0, false
	}
	if err != nil {
		return p.fail(r, err)
	}

	p.mu.Lock()
	r.retries = 0
	p.mu.Unlock()

	if !p.forward(r, result) {
		return 0, false
	}
	return time.Duration(r.settings.CadenceSeconds) * time.Second, true
}

// forward publishes the result oldest first and advances the cursor. It
// returns false if the run was stopped part way.
func (p *Poller) forward(r *run, result domain.SearchResult) bool {
	if len(result.Posts) == 0 {
		return true
	}
	p.log.Debug("poll results", "count", len(result.Posts))

	tables := canonical.NewTables(result.Users, result.Media)
	for i := len(result.Posts) - 1; i >= 0; i-- {
		if r.ctx.Err() != nil {
			return false
		}
		raw := result.Posts[i]
		post, ok := canonical.Canonicalize(raw, tables)
		if !ok {
			p.log.Warn("dropping malformed post", "id", raw.ID)
			continue
		}
		p.sink.Publish(post)
	}

	newest := result.NewestID
	if newest == "" {
		newest = result.Posts[0].ID
	}
	p.mu.Lock()
	if newest != "" {
		r.cursor = newest
	}
	p.mu.Unlock()
	return true
}

func (p *Poller) fail(r *run, err error) (time.Duration, bool) {
	switch domain.Classify(err) {
	case domain.ClassTerminal:
		p.log.Error("poller stopping on auth failure", "err", err)
		p.mu.Lock()
		if p.cur == r {
			p.state = Stopped
		}
		p.mu.Unlock()
		r.cancel()
		p.sink.Fail(err)
		return 0, false

	case domain.ClassThrottled:
		var rl *domain.RateLimitError
		delay := p.cfg.RateLimitDefault
		if errors.As(err, &rl) && rl.ResetAfter > 0 {
			delay = rl.ResetAfter
		}
		p.log.Warn("rate limited", "retry_in", delay)
		return delay, true

	default:
		p.mu.Lock()
		r.retries++
		attempt := r.retries
		p.mu.Unlock()
		delay := p.cfg.Backoff.Delay(attempt)
		p.log.Warn("poll cycle failed", "err", err, "attempt", attempt, "retry_in", delay)
		return delay, true
	}
}
