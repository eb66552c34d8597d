// Package coordinator owns the feed settings and hashtag set, and keeps the
// poller in step with them.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/qepting91/tagstream/internal/canonical"
	"github.com/qepting91/tagstream/internal/domain"
	"github.com/qepting91/tagstream/internal/ingest"
	"github.com/qepting91/tagstream/internal/poller"
	"github.com/qepting91/tagstream/internal/protocol"
	"github.com/qepting91/tagstream/internal/storage"
)

const (
	DefaultBackfill = 20
	MaxBackfill     = domain.MaxCycleFetchLimit
)

// Broadcaster is the part of the hub the coordinator drives.
type Broadcaster interface {
	SetState(status string, settings domain.FeedSettings)
	BroadcastSettings(settings domain.FeedSettings)
	BroadcastPost(post domain.CanonicalPost)
	BroadcastError(err error)
	Count() int
}

// Store persists settings. Nil disables persistence.
type Store interface {
	Load(ctx context.Context) (domain.FeedSettings, error)
	Save(ctx context.Context, settings domain.FeedSettings) error
}

type Options struct {
	// Grace bounds how long a restart waits for the in-flight cycle.
	Grace           time.Duration
	Poll            poller.Config
	DefaultHashtags []string
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Status   string              `json:"status"`
	Active   bool                `json:"isConnected"`
	State    string              `json:"state"`
	Cursor   string              `json:"cursor,omitempty"`
	Retries  int                 `json:"retries"`
	Viewers  int                 `json:"connectedClients"`
	Settings domain.FeedSettings `json:"settings"`
}

// HashtagChange is the result of a hashtag mutation. FeedReset echoes the
// caller's choice of clearing viewers' feeds.
type HashtagChange struct {
	Hashtag   string   `json:"hashtag,omitempty"`
	Hashtags  []string `json:"hashtags"`
	FeedReset bool     `json:"feedReset"`
	Restarted bool     `json:"restarted"`
}

// Coordinator is the single writer of FeedSettings. Mutations are
// serialized; each one that affects an active poller performs its own
// stop/start pair.
type Coordinator struct {
	searcher domain.Searcher
	hub      Broadcaster
	store    Store
	poller   *poller.Poller
	grace    time.Duration
	defaults []string
	log      *slog.Logger

	opMu sync.Mutex

	mu       sync.RWMutex
	settings domain.FeedSettings
}

func New(searcher domain.Searcher, hub Broadcaster, store Store, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Grace <= 0 {
		opts.Grace = 500 * time.Millisecond
	}
	defaults := ingest.CleanAll(opts.DefaultHashtags)
	if len(defaults) == 0 {
		defaults = ingest.DefaultHashtags()
	}

	settings := domain.DefaultSettings()
	settings.Hashtags = slices.Clone(defaults)

	c := &Coordinator{
		searcher: searcher,
		hub:      hub,
		store:    store,
		grace:    opts.Grace,
		defaults: defaults,
		log:      logger,
		settings: settings,
	}
	c.poller = poller.New(searcher, c, opts.Poll, logger)
	return c
}

// Load replaces the in-memory settings with the stored snapshot, if any.
func (c *Coordinator) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	loaded, err := c.store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	loaded = loaded.Normalize()
	loaded.Hashtags = ingest.CleanAll(loaded.Hashtags)
	if len(loaded.Hashtags) == 0 {
		loaded.Hashtags = slices.Clone(c.defaults)
	}

	c.mu.Lock()
	c.settings = loaded
	c.mu.Unlock()
	c.log.Info("settings loaded", "hashtags", loaded.Hashtags, "cadence_s", loaded.CadenceSeconds)
	return nil
}

// Publish implements poller.Sink.
func (c *Coordinator) Publish(post domain.CanonicalPost) {
	c.hub.BroadcastPost(post)
}

// Fail implements poller.Sink. The poller has already stopped.
func (c *Coordinator) Fail(err error) {
	c.hub.BroadcastError(err)
	c.hub.SetState(protocol.StatusStopped, c.Settings())
}

// Start begins polling with the current hashtags and settings.
func (c *Coordinator) Start() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	snap := c.Settings()
	if len(snap.Hashtags) == 0 {
		return domain.ErrNoHashtags
	}
	if c.poller.State() == poller.Active {
		return domain.ErrAlreadyActive
	}
	return c.startLocked(snap)
}

// startLocked announces the connected state before the first cycle can
// fail, so a terminal error is always the last state viewers see.
func (c *Coordinator) startLocked(snap domain.FeedSettings) error {
	c.hub.SetState(protocol.StatusConnected, snap)
	if err := c.poller.Start(snap.Hashtags, snap); err != nil {
		c.hub.SetState(protocol.StatusStopped, snap)
		return err
	}
	return nil
}

// Stop halts polling. It does not wait for an in-flight cycle.
func (c *Coordinator) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.poller.Stop()
	c.hub.SetState(protocol.StatusStopped, c.Settings())
}

// Shutdown stops polling and waits for the in-flight cycle or ctx.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	select {
	case <-c.poller.Stop():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) Status() Status {
	active := c.poller.State() == poller.Active
	status := protocol.StatusStopped
	if active {
		status = protocol.StatusConnected
	}
	return Status{
		Status:   status,
		Active:   active,
		State:    c.poller.State().String(),
		Cursor:   c.poller.Cursor(),
		Retries:  c.poller.Retries(),
		Viewers:  c.hub.Count(),
		Settings: c.Settings(),
	}
}

// Settings returns a snapshot of the current settings.
func (c *Coordinator) Settings() domain.FeedSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Clone()
}

// UpdateSettings applies patch. An active poller is restarted when the
// change affects how it polls.
func (c *Coordinator) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.FeedSettings, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	cur := c.Settings()
	next := patch.Apply(cur)
	next.Hashtags = cur.Hashtags
	if err := c.commit(ctx, next); err != nil {
		return cur, err
	}
	if !cur.PollConfigEqual(next) {
		c.restartIfActive(next)
	}
	return next, nil
}

// ResetSettings restores default settings and keeps the hashtags.
func (c *Coordinator) ResetSettings(ctx context.Context) (domain.FeedSettings, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	cur := c.Settings()
	next := domain.DefaultSettings()
	next.Hashtags = cur.Hashtags
	if err := c.commit(ctx, next); err != nil {
		return cur, err
	}
	if !cur.PollConfigEqual(next) {
		c.restartIfActive(next)
	}
	return next, nil
}

func (c *Coordinator) Hashtags() []string {
	return c.Settings().Hashtags
}

// AddHashtag cleans and appends tag. Adding a tag that is already present
// is an ErrInvalidHashtag.
func (c *Coordinator) AddHashtag(ctx context.Context, tag string, resetFeed bool) (HashtagChange, error) {
	cleaned, err := ingest.CleanHashtag(tag)
	if err != nil {
		return HashtagChange{}, err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	cur := c.Settings()
	if slices.Contains(cur.Hashtags, cleaned) {
		return HashtagChange{}, fmt.Errorf("%w: %s already exists", domain.ErrInvalidHashtag, cleaned)
	}
	change, err := c.setHashtags(ctx, append(cur.Hashtags, cleaned), resetFeed)
	change.Hashtag = cleaned
	return change, err
}

// RemoveHashtag removes tag. Removing the last tag is rejected.
func (c *Coordinator) RemoveHashtag(ctx context.Context, tag string, resetFeed bool) (HashtagChange, error) {
	cleaned, err := ingest.CleanHashtag(tag)
	if err != nil {
		return HashtagChange{}, err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	cur := c.Settings()
	i := slices.Index(cur.Hashtags, cleaned)
	if i < 0 {
		return HashtagChange{}, fmt.Errorf("%w: %s", ErrHashtagNotFound, cleaned)
	}
	change, err := c.setHashtags(ctx, slices.Delete(cur.Hashtags, i, i+1), resetFeed)
	change.Hashtag = cleaned
	return change, err
}

// SetHashtags replaces the hashtag set. Invalid entries are dropped; an
// empty result is rejected.
func (c *Coordinator) SetHashtags(ctx context.Context, tags []string, resetFeed bool) (HashtagChange, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.setHashtags(ctx, ingest.CleanAll(tags), resetFeed)
}

func (c *Coordinator) ResetHashtags(ctx context.Context, resetFeed bool) (HashtagChange, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.setHashtags(ctx, slices.Clone(c.defaults), resetFeed)
}

// ErrHashtagNotFound is returned when removing a tag that is not tracked.
var ErrHashtagNotFound = errors.New("hashtag not found")

func (c *Coordinator) setHashtags(ctx context.Context, tags []string, resetFeed bool) (HashtagChange, error) {
	if len(tags) == 0 {
		return HashtagChange{}, domain.ErrNoHashtags
	}

	next := c.Settings()
	next.Hashtags = slices.Clone(tags)
	if err := c.commit(ctx, next); err != nil {
		return HashtagChange{}, err
	}
	return HashtagChange{
		Hashtags:  slices.Clone(tags),
		FeedReset: resetFeed,
		Restarted: c.restartIfActive(next),
	}, nil
}

// commit persists next, installs it and tells viewers.
func (c *Coordinator) commit(ctx context.Context, next domain.FeedSettings) error {
	if c.store != nil {
		if err := c.store.Save(ctx, next); err != nil {
			return fmt.Errorf("persist settings: %w", err)
		}
	}
	c.mu.Lock()
	c.settings = next.Clone()
	c.mu.Unlock()

	c.hub.BroadcastSettings(next)
	return nil
}

// restartIfActive stops the poller, waits for its in-flight cycle to finish
// (at most the grace period) and starts it again with snap.
func (c *Coordinator) restartIfActive(snap domain.FeedSettings) bool {
	if c.poller.State() != poller.Active {
		return false
	}

	c.log.Info("restarting poller", "hashtags", snap.Hashtags, "cadence_s", snap.CadenceSeconds)
	select {
	case <-c.poller.Stop():
	case <-time.After(c.grace):
		c.log.Warn("in-flight cycle still running after grace period", "grace", c.grace)
	}

	if err := c.startLocked(snap); err != nil {
		c.log.Error("restart poller", "err", err)
		return false
	}
	return true
}

// Backfill fetches up to n of the most relevant recent posts, newest first.
func (c *Coordinator) Backfill(ctx context.Context, n int) ([]domain.CanonicalPost, error) {
	if n <= 0 {
		n = DefaultBackfill
	}
	if n > MaxBackfill {
		n = MaxBackfill
	}

	snap := c.Settings()
	if len(snap.Hashtags) == 0 {
		return nil, domain.ErrNoHashtags
	}
	result, err := c.searcher.Search(ctx, domain.QueryFor(snap), domain.SearchParams{
		MaxResults: n,
		Order:      domain.OrderRelevance,
	})
	if err != nil {
		return nil, fmt.Errorf("backfill: %w", err)
	}

	posts, dropped := canonical.Batch(result)
	if dropped > 0 {
		c.log.Warn("backfill dropped malformed posts", "count", dropped)
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}
