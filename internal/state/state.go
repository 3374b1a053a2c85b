// Package state owns the directory, feed and session of one client.
package state

import (
	"context"
	"log/slog"
	"time"

	"snapgram/internal/clock"
	"snapgram/internal/directory"
	"snapgram/internal/feed"
	"snapgram/internal/observability"
	"snapgram/internal/seed"
	"snapgram/internal/session"
	"snapgram/internal/storage"
)

// Options configures a Store. Zero values fall back to defaults: the embedded
// mock world, an in-memory session and no simulated latency.
type Options struct {
	Seed          seed.World
	Session       *session.Store
	AuthLatency   time.Duration
	FetchLatency  time.Duration
	MaxMediaBytes int
	Clock         clock.Now
	NewID         func() string
	Logger        *slog.Logger
}

// Store wires one Directory and one Feed over a shared session.
type Store struct {
	world     seed.World
	session   *session.Store
	directory *directory.Directory
	feed      *feed.Feed
	logger    *slog.Logger
}

// New builds a store seeded from opts.Seed. Call Init to restore the session.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = observability.Logger()
	}
	if opts.Seed.Users == nil && opts.Seed.Posts == nil {
		opts.Seed = seed.Default()
	}
	if opts.Session == nil {
		opts.Session = session.New(storage.NewMemory(), "", opts.Logger)
	}

	world := opts.Seed.Clone()
	dir := directory.New(world.Users, directory.Options{
		Session: opts.Session,
		Latency: opts.AuthLatency,
		Clock:   opts.Clock,
		NewID:   opts.NewID,
		Logger:  opts.Logger,
	})
	posts := feed.New(world.Posts, dir, dir, feed.Options{
		Latency:       opts.FetchLatency,
		MaxMediaBytes: opts.MaxMediaBytes,
		Clock:         opts.Clock,
		NewID:         opts.NewID,
		Logger:        opts.Logger,
	})
	return &Store{
		world:     world,
		session:   opts.Session,
		directory: dir,
		feed:      posts,
		logger:    opts.Logger,
	}
}

// Init seeds both stores and restores the persisted current user.
func (s *Store) Init(ctx context.Context) error {
	s.reseed()
	if err := s.directory.Restore(ctx); err != nil {
		return err
	}
	if u, ok := s.directory.CurrentUser(); ok {
		s.logger.DebugContext(ctx, "session restored", slog.String("user_id", u.ID))
	}
	return nil
}

// Reset re-seeds both stores and forgets the current user in memory.
// Session storage is left as is.
func (s *Store) Reset(_ context.Context) error {
	s.reseed()
	return nil
}

// Dispose clears the persisted session and the current user.
func (s *Store) Dispose(ctx context.Context) error {
	return s.directory.Logout(ctx)
}

// Directory returns the user directory.
func (s *Store) Directory() *directory.Directory { return s.directory }

// Feed returns the post feed.
func (s *Store) Feed() *feed.Feed { return s.feed }

// Session returns the session store.
func (s *Store) Session() *session.Store { return s.session }

func (s *Store) reseed() {
	s.directory.Seed(s.world.Users)
	s.feed.Seed(s.world.Posts)
}
