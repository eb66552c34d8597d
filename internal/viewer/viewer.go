package viewer

import (
	"log/slog"
	"sync"

	"github.com/qepting91/tagstream/internal/domain"
	"github.com/qepting91/tagstream/internal/notify"
	"github.com/qepting91/tagstream/internal/stream"
)

// Mode selects the presentation surface.
type Mode string

const (
	ModeFeed          Mode = "feed"
	ModeNotifications Mode = "notifications"
)

type EventKind int

const (
	EventState EventKind = iota
	EventConnection
	EventSettings
	EventPost
	EventError
)

// Event describes a change worth rendering.
type Event struct {
	Kind     EventKind
	State    stream.State
	Attempts int
	Status   string
	Viewers  int
	Settings domain.FeedSettings
	Post     domain.CanonicalPost
	Message  string
}

// Viewer routes stream events into the feed list and, in notification
// mode, the overlay buffer. It implements stream.Handler.
type Viewer struct {
	feed  *Feed
	notes *notify.Buffer
	log   *slog.Logger
	emit  func(Event)

	mu       sync.Mutex
	mode     Mode
	settings domain.FeedSettings
	lastErr  string
}

var _ stream.Handler = (*Viewer)(nil)

// New creates a viewer in feed mode. emit may be nil.
func New(feed *Feed, notes *notify.Buffer, emit func(Event), logger *slog.Logger) *Viewer {
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = func(Event) {}
	}
	return &Viewer{
		feed:     feed,
		notes:    notes,
		log:      logger,
		emit:     emit,
		mode:     ModeFeed,
		settings: domain.DefaultSettings(),
	}
}

func (v *Viewer) Feed() *Feed { return v.feed }

func (v *Viewer) Notifications() *notify.Buffer { return v.notes }

func (v *Viewer) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// SetMode switches surfaces. Leaving notification mode clears the overlay.
func (v *Viewer) SetMode(m Mode) {
	v.mu.Lock()
	prev := v.mode
	v.mode = m
	v.mu.Unlock()

	if prev == ModeNotifications && m != ModeNotifications {
		v.notes.Clear()
	}
}

func (v *Viewer) Settings() domain.FeedSettings {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.settings.Clone()
}

// LastError is the most recent error event, cleared on reconnect.
func (v *Viewer) LastError() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

// Reset empties both surfaces, as after a hashtag change that resets the
// feed.
func (v *Viewer) Reset() {
	v.feed.Reset()
	v.notes.Clear()
}

// Backfill seeds the list with an initial batch, newest first.
func (v *Viewer) Backfill(posts []domain.CanonicalPost) {
	v.feed.Seed(posts)
}

func (v *Viewer) OnState(state stream.State, attempts int) {
	if state == stream.Connected {
		v.mu.Lock()
		v.lastErr = ""
		v.mu.Unlock()
	}
	v.emit(Event{Kind: EventState, State: state, Attempts: attempts})
}

func (v *Viewer) OnConnection(status string, viewers int) {
	v.emit(Event{Kind: EventConnection, Status: status, Viewers: viewers})
}

func (v *Viewer) OnSettings(settings domain.FeedSettings) {
	v.mu.Lock()
	v.settings = settings.Clone()
	v.mu.Unlock()

	v.feed.SetLimit(settings.DisplayLimit)
	v.emit(Event{Kind: EventSettings, Settings: settings})
}

func (v *Viewer) OnPost(post domain.CanonicalPost) {
	if !v.feed.Add(post) {
		v.log.Debug("duplicate post ignored", "post", post.ID)
		return
	}
	if v.Mode() == ModeNotifications {
		v.notes.Add(post)
	}
	v.emit(Event{Kind: EventPost, Post: post})
}

func (v *Viewer) OnError(msg string) {
	v.mu.Lock()
	v.lastErr = msg
	v.mu.Unlock()
	v.emit(Event{Kind: EventError, Message: msg})
}
