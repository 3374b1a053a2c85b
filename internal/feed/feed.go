// Package feed holds every known post, the cached profile grid and the derived feed.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"snapgram/internal/clock"
	"snapgram/internal/models"
	"snapgram/internal/observability"
	"snapgram/internal/validation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const storeName = "feed"

// Viewer reports who is logged in.
type Viewer interface {
	CurrentUser() (models.User, bool)
}

// PostIndex records post ownership on the author's user record.
type PostIndex interface {
	AttachPost(ctx context.Context, userID, postID string) error
}

// Status is the transient state of the last feed operation.
type Status struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// CreatePostInput carries the upload form fields.
type CreatePostInput struct {
	MediaURL string `json:"mediaUrl"`
	Caption  string `json:"caption"`
}

// Options configures a Feed. Zero values fall back to defaults.
type Options struct {
	Latency       time.Duration
	MaxMediaBytes int
	Clock         clock.Now
	NewID         func() string
	Logger        *slog.Logger
}

// Feed is safe for concurrent use. It never holds its lock while calling the
// Viewer or the PostIndex.
type Feed struct {
	mu        sync.RWMutex
	seed      []models.Post
	posts     []models.Post
	userPosts []models.Post
	status    Status

	viewer   Viewer
	index    PostIndex
	latency  time.Duration
	maxMedia int
	now      clock.Now
	newID    func() string
	logger   *slog.Logger
}

// New returns a feed seeded with posts, newest first.
func New(posts []models.Post, viewer Viewer, index PostIndex, opts Options) *Feed {
	if opts.Logger == nil {
		opts.Logger = observability.Logger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.UTC
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.MaxMediaBytes <= 0 {
		opts.MaxMediaBytes = validation.DefaultMaxMediaBytes
	}
	f := &Feed{
		viewer:   viewer,
		index:    index,
		latency:  opts.Latency,
		maxMedia: opts.MaxMediaBytes,
		now:      opts.Clock,
		newID:    opts.NewID,
		logger:   opts.Logger.With(slog.String("store", storeName)),
	}
	f.Seed(posts)
	return f
}

// Seed replaces the posts and the snapshot FetchPosts reloads from.
func (f *Feed) Seed(posts []models.Post) {
	seed := clonePosts(posts)
	f.mu.Lock()
	f.seed = seed
	f.posts = clonePosts(seed)
	f.userPosts = []models.Post{}
	f.status = Status{}
	f.mu.Unlock()
}

// FetchPosts reloads the seeded posts after the simulated fetch latency.
// Posts created since seeding are dropped.
func (f *Feed) FetchPosts(ctx context.Context) error {
	span, ctx := observability.StartSpan(ctx, storeName, "fetch_posts")
	defer span.End()

	f.begin()
	err := clock.Delay(ctx, f.latency)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return f.finish(ctx, span, "fetch_posts", models.NewInternalError(err), false)
	}
	f.posts = clonePosts(f.seed)
	return f.finish(ctx, span, "fetch_posts", nil, true)
}

// FetchUserPosts caches the posts authored by userID, replacing any previously cached profile.
func (f *Feed) FetchUserPosts(ctx context.Context, userID string) ([]models.Post, error) {
	span, ctx := observability.StartSpan(ctx, storeName, "fetch_user_posts")
	defer span.End()
	span.AddAttributes(attribute.String("snapgram.user_id", userID))

	f.begin()
	err := clock.Delay(ctx, f.latency)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return nil, f.finish(ctx, span, "fetch_user_posts", models.NewInternalError(err), false)
	}
	userPosts := make([]models.Post, 0)
	for _, p := range f.posts {
		if p.UserID == userID {
			userPosts = append(userPosts, p)
		}
	}
	f.userPosts = userPosts
	return clonePosts(userPosts), f.finish(ctx, span, "fetch_user_posts", nil, true)
}

// UserPosts returns the last cached profile grid.
func (f *Feed) UserPosts() []models.Post {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return clonePosts(f.userPosts)
}

// Posts returns every post in store order.
func (f *Feed) Posts() []models.Post {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return clonePosts(f.posts)
}

// GetPost returns the post with id.
func (f *Feed) GetPost(id string) (models.Post, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	i := f.indexOf(id)
	if i < 0 {
		return models.Post{}, false
	}
	return f.posts[i].Clone(), true
}

// CreatePost publishes a post by the current user. It does nothing when nobody
// is logged in; the returned post then has an empty ID.
//
// The post is inserted here first and then attached to the author's record.
// If attaching fails the post is removed again.
func (f *Feed) CreatePost(ctx context.Context, in CreatePostInput) (models.Post, error) {
	span, ctx := observability.StartSpan(ctx, storeName, "create_post")
	defer span.End()

	me, ok := f.viewer.CurrentUser()
	if !ok {
		return models.Post{}, f.finishLocking(ctx, span, "create_post", nil, false)
	}
	if !me.IsCreator {
		return models.Post{}, f.finishLocking(ctx, span, "create_post", models.NewForbiddenError("only creators can share posts"), false)
	}
	info, err := validation.ValidateMedia(in.MediaURL, f.maxMedia)
	if err != nil {
		return models.Post{}, f.finishLocking(ctx, span, "create_post", models.NewValidationError(err.Error()), false)
	}
	span.AddAttributes(
		attribute.Bool("snapgram.media_inline", info.Inline),
		attribute.Int("snapgram.media_bytes", info.SizeBytes),
	)

	p, err := models.NewPost(f.newID(), me, in.MediaURL, in.Caption, f.now())
	if err != nil {
		return models.Post{}, f.finishLocking(ctx, span, "create_post", models.NewValidationError(err.Error()), false)
	}

	f.mu.Lock()
	f.posts = slices.Insert(f.posts, 0, p)
	f.mu.Unlock()

	if err := f.index.AttachPost(ctx, me.ID, p.ID); err != nil {
		f.mu.Lock()
		defer f.mu.Unlock()
		if i := f.indexOf(p.ID); i >= 0 {
			f.posts = slices.Delete(f.posts, i, i+1)
		}
		f.logger.WarnContext(ctx, "post removed after attach failure",
			slog.String("post_id", p.ID), slog.Any("error", err))
		var appErr *models.AppError
		if !errors.As(err, &appErr) {
			err = models.NewInternalError(err)
		}
		return models.Post{}, f.finish(ctx, span, "create_post", err, false)
	}

	f.logger.InfoContext(ctx, "post created", slog.String("post_id", p.ID), slog.String("user_id", me.ID))
	return p.Clone(), f.finishLocking(ctx, span, "create_post", nil, true)
}

// LikePost toggles the current user's like on postID, dropping any dislike.
func (f *Feed) LikePost(ctx context.Context, postID string) error {
	return f.toggle(ctx, "like_post", postID, models.Post.ToggleLike)
}

// DislikePost toggles the current user's dislike on postID, dropping any like.
func (f *Feed) DislikePost(ctx context.Context, postID string) error {
	return f.toggle(ctx, "dislike_post", postID, models.Post.ToggleDislike)
}

func (f *Feed) toggle(ctx context.Context, op, postID string, apply func(models.Post, string) models.Post) error {
	span, ctx := observability.StartSpan(ctx, storeName, op)
	defer span.End()

	me, ok := f.viewer.CurrentUser()

	f.mu.Lock()
	defer f.mu.Unlock()
	if !ok {
		return f.finish(ctx, span, op, nil, false)
	}
	i := f.indexOf(postID)
	if i < 0 {
		return f.finish(ctx, span, op, models.NewNotFoundError("Post", postID), false)
	}
	f.replace(i, apply(f.posts[i], me.ID))
	return f.finish(ctx, span, op, nil, true)
}

// AddComment appends a comment by the current user. It does nothing when
// nobody is logged in. Blank content is rejected and leaves the post unchanged.
func (f *Feed) AddComment(ctx context.Context, postID, content string) (models.Comment, error) {
	span, ctx := observability.StartSpan(ctx, storeName, "add_comment")
	defer span.End()

	me, ok := f.viewer.CurrentUser()

	f.mu.Lock()
	defer f.mu.Unlock()
	if !ok {
		return models.Comment{}, f.finish(ctx, span, "add_comment", nil, false)
	}
	i := f.indexOf(postID)
	c, err := models.NewComment(f.newID(), postID, me, content, f.now())
	if err != nil {
		return models.Comment{}, f.finish(ctx, span, "add_comment", models.NewValidationError(err.Error()), false)
	}
	if i < 0 {
		return models.Comment{}, f.finish(ctx, span, "add_comment", models.NewNotFoundError("Post", postID), false)
	}
	f.replace(i, f.posts[i].WithComment(c))
	return c, f.finish(ctx, span, "add_comment", nil, true)
}

// FeedPosts returns every post when nobody is logged in. Otherwise it returns
// the current user's posts and those of followed users, newest first.
func (f *Feed) FeedPosts() []models.Post {
	me, ok := f.viewer.CurrentUser()

	f.mu.RLock()
	defer f.mu.RUnlock()
	if !ok {
		return clonePosts(f.posts)
	}
	out := make([]models.Post, 0, len(f.posts))
	for _, p := range f.posts {
		if p.UserID == me.ID || me.IsFollowing(p.UserID) {
			out = append(out, p.Clone())
		}
	}
	slices.SortStableFunc(out, func(a, b models.Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// Status returns the state of the last operation.
func (f *Feed) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

func (f *Feed) begin() {
	f.mu.Lock()
	f.status = Status{Loading: true}
	f.mu.Unlock()
}

func (f *Feed) replace(i int, p models.Post) {
	f.posts[i] = p
}

func (f *Feed) indexOf(id string) int {
	return slices.IndexFunc(f.posts, func(p models.Post) bool { return p.ID == id })
}

func (f *Feed) finishLocking(ctx context.Context, span *observability.Span, op string, err error, changed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finish(ctx, span, op, err, changed)
}

// finish records the outcome of op. Callers hold f.mu.
func (f *Feed) finish(ctx context.Context, span *observability.Span, op string, err error, changed bool) error {
	observability.ObserveStoreOp(storeName, op, err, changed)
	if err == nil {
		f.status = Status{}
		return nil
	}
	f.status = Status{Error: models.MessageOf(err)}
	span.SetError(err)
	if models.IsCode(err, models.CodeInternal) {
		f.logger.ErrorContext(ctx, "feed operation failed", slog.String("operation", op), slog.Any("error", err))
	} else {
		f.logger.DebugContext(ctx, "feed operation rejected", slog.String("operation", op), slog.String("code", models.CodeOf(err)))
	}
	return err
}

func clonePosts(posts []models.Post) []models.Post {
	out := make([]models.Post, len(posts))
	for i, p := range posts {
		out[i] = p.Clone()
	}
	return out
}
