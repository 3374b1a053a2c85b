// Package directory holds every known user, the current user and the follow graph.
package directory

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"snapgram/internal/clock"
	"snapgram/internal/models"
	"snapgram/internal/observability"
	"snapgram/internal/session"
	"snapgram/internal/storage"
	"snapgram/internal/validation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const storeName = "directory"

// Status is the transient state of the last directory operation.
type Status struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// SignupInput carries the signup form fields.
type SignupInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// Options configures a Directory. Zero values fall back to defaults.
type Options struct {
	Session *session.Store
	Latency time.Duration
	Clock   clock.Now
	NewID   func() string
	Logger  *slog.Logger
}

// Directory is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	users   []models.User
	current *models.User
	status  Status

	session *session.Store
	latency time.Duration
	now     clock.Now
	newID   func() string
	logger  *slog.Logger
}

// New returns a directory seeded with users.
func New(users []models.User, opts Options) *Directory {
	if opts.Logger == nil {
		opts.Logger = observability.Logger()
	}
	if opts.Session == nil {
		opts.Session = session.New(storage.NewMemory(), "", opts.Logger)
	}
	if opts.Clock == nil {
		opts.Clock = clock.UTC
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	d := &Directory{
		session: opts.Session,
		latency: opts.Latency,
		now:     opts.Clock,
		newID:   opts.NewID,
		logger:  opts.Logger.With(slog.String("store", storeName)),
	}
	d.Seed(users)
	return d
}

// Seed replaces every user and drops the in-memory current user. Session storage is untouched.
func (d *Directory) Seed(users []models.User) {
	seeded := make([]models.User, len(users))
	for i, u := range users {
		seeded[i] = u.Clone()
	}
	d.mu.Lock()
	d.users = seeded
	d.current = nil
	d.status = Status{}
	d.mu.Unlock()
}

// Restore loads the persisted current-user snapshot, if any.
func (d *Directory) Restore(ctx context.Context) error {
	span, ctx := observability.StartSpan(ctx, storeName, "restore")
	defer span.End()

	u, ok, err := d.session.Load(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		return d.finish(ctx, span, "restore", models.NewInternalError(err), false)
	}
	if !ok {
		d.current = nil
		return d.finish(ctx, span, "restore", nil, false)
	}
	d.current = &u
	return d.finish(ctx, span, "restore", nil, true)
}

// Login authenticates by exact email match. The password must be present but is not verified.
func (d *Directory) Login(ctx context.Context, email, password string) (models.User, error) {
	span, ctx := observability.StartSpan(ctx, storeName, "login")
	defer span.End()

	d.begin()
	waitErr := clock.Delay(ctx, d.latency)

	d.mu.Lock()
	defer d.mu.Unlock()
	if waitErr != nil {
		return models.User{}, d.finish(ctx, span, "login", models.NewInternalError(waitErr), false)
	}
	if password == "" {
		return models.User{}, d.finish(ctx, span, "login", models.NewValidationError("password is required"), false)
	}

	i := d.indexWhere(func(u models.User) bool { return u.Email == email })
	if i < 0 {
		return models.User{}, d.finish(ctx, span, "login", models.NewInvalidCredentialsError(), false)
	}

	u := d.users[i].Clone()
	if err := d.session.Save(ctx, u); err != nil {
		return models.User{}, d.finish(ctx, span, "login", models.NewInternalError(err), false)
	}
	d.current = &u
	d.logger.InfoContext(ctx, "user logged in", slog.String("user_id", u.ID))
	return u.Clone(), d.finish(ctx, span, "login", nil, true)
}

// Signup creates a creator account and makes it the current user.
func (d *Directory) Signup(ctx context.Context, in SignupInput) (models.User, error) {
	span, ctx := observability.StartSpan(ctx, storeName, "signup")
	defer span.End()

	d.begin()
	waitErr := clock.Delay(ctx, d.latency)

	d.mu.Lock()
	defer d.mu.Unlock()
	if waitErr != nil {
		return models.User{}, d.finish(ctx, span, "signup", models.NewInternalError(waitErr), false)
	}
	if err := validation.ValidateSignup(in.Username, in.Email, in.Password, in.FullName); err != nil {
		return models.User{}, d.finish(ctx, span, "signup", models.NewValidationError(err.Error()), false)
	}
	if d.indexWhere(func(u models.User) bool { return u.Email == in.Email }) >= 0 {
		return models.User{}, d.finish(ctx, span, "signup", models.NewDuplicateEmailError(), false)
	}
	if d.indexWhere(func(u models.User) bool { return u.Username == in.Username }) >= 0 {
		return models.User{}, d.finish(ctx, span, "signup", models.NewDuplicateUsernameError(), false)
	}

	u, err := models.NewUser(d.newID(), in.Username, in.Email, in.FullName, d.now())
	if err != nil {
		return models.User{}, d.finish(ctx, span, "signup", models.NewValidationError(err.Error()), false)
	}
	u.IsCreator = true

	if err := d.session.Save(ctx, u); err != nil {
		return models.User{}, d.finish(ctx, span, "signup", models.NewInternalError(err), false)
	}
	d.users = append(d.users, u)
	current := u.Clone()
	d.current = &current
	d.logger.InfoContext(ctx, "user signed up", slog.String("user_id", u.ID))
	return u.Clone(), d.finish(ctx, span, "signup", nil, true)
}

// Logout clears the persisted snapshot and the current user.
func (d *Directory) Logout(ctx context.Context) error {
	span, ctx := observability.StartSpan(ctx, storeName, "logout")
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.session.Clear(ctx); err != nil {
		return d.finish(ctx, span, "logout", models.NewInternalError(err), false)
	}
	changed := d.current != nil
	d.current = nil
	return d.finish(ctx, span, "logout", nil, changed)
}

// Follow makes the current user follow targetID. It does nothing when nobody is
// logged in or the target is already followed.
func (d *Directory) Follow(ctx context.Context, targetID string) error {
	return d.updateFollow(ctx, "follow", targetID, true)
}

// Unfollow reverses Follow. Unfollowing a user that is not followed does nothing.
func (d *Directory) Unfollow(ctx context.Context, targetID string) error {
	return d.updateFollow(ctx, "unfollow", targetID, false)
}

func (d *Directory) updateFollow(ctx context.Context, op, targetID string, follow bool) error {
	span, ctx := observability.StartSpan(ctx, storeName, op)
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return d.finish(ctx, span, op, nil, false)
	}
	me := *d.current
	if follow && targetID == me.ID {
		return d.finish(ctx, span, op, models.NewValidationError("you cannot follow yourself"), false)
	}
	ti := d.indexWhere(func(u models.User) bool { return u.ID == targetID })
	if ti < 0 {
		if !follow && me.IsFollowing(targetID) {
			// the target left the directory (reseeded); drop the dangling edge
			return d.commitFollow(ctx, span, op, me.WithoutFollowing(targetID), -1, models.User{})
		}
		return d.finish(ctx, span, op, models.NewNotFoundError("User", targetID), false)
	}
	if follow == me.IsFollowing(targetID) && follow == d.users[ti].HasFollower(me.ID) {
		return d.finish(ctx, span, op, nil, false)
	}

	var nextMe, nextTarget models.User
	if follow {
		nextMe = me.WithFollowing(targetID)
		nextTarget = d.users[ti].WithFollower(me.ID)
	} else {
		nextMe = me.WithoutFollowing(targetID)
		nextTarget = d.users[ti].WithoutFollower(me.ID)
	}

	span.AddAttributes(attribute.String("snapgram.target_id", targetID))
	return d.commitFollow(ctx, span, op, nextMe, ti, nextTarget)
}

// commitFollow persists the new snapshot and then applies it and the target
// record (ti < 0 skips the target). Callers hold d.mu.
func (d *Directory) commitFollow(ctx context.Context, span *observability.Span, op string, nextMe models.User, ti int, nextTarget models.User) error {
	if err := d.session.Save(ctx, nextMe); err != nil {
		return d.finish(ctx, span, op, models.NewInternalError(err), false)
	}
	if ti >= 0 {
		d.users[ti] = nextTarget
	}
	if mi := d.indexWhere(func(u models.User) bool { return u.ID == nextMe.ID }); mi >= 0 {
		u := d.users[mi]
		u.Following = slices.Clone(nextMe.Following)
		d.users[mi] = u
	}
	d.current = &nextMe
	return d.finish(ctx, span, op, nil, true)
}

// GetUser returns the user with id.
func (d *Directory) GetUser(id string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i := d.indexWhere(func(u models.User) bool { return u.ID == id })
	if i < 0 {
		return models.User{}, false
	}
	return d.users[i].Clone(), true
}

// Users returns every user in insertion order.
func (d *Directory) Users() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.User, len(d.users))
	for i, u := range d.users {
		out[i] = u.Clone()
	}
	return out
}

// CurrentUser returns the current user snapshot.
func (d *Directory) CurrentUser() (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current == nil {
		return models.User{}, false
	}
	return d.current.Clone(), true
}

// Search matches username or full name case-insensitively. A blank query
// suggests every user except the current one.
func (d *Directory) Search(query string) []models.User {
	q := strings.ToLower(strings.TrimSpace(query))

	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.User, 0, len(d.users))
	for _, u := range d.users {
		if q == "" {
			if d.current != nil && u.ID == d.current.ID {
				continue
			}
			out = append(out, u.Clone())
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.FullName), q) {
			out = append(out, u.Clone())
		}
	}
	return out
}

// AttachPost records postID as owned by userID. The current-user snapshot is
// updated in memory only; posts are not persisted. A restored current user
// may be missing from the directory (it is reseeded on Init), in which case
// only the snapshot is updated.
func (d *Directory) AttachPost(ctx context.Context, userID, postID string) error {
	span, ctx := observability.StartSpan(ctx, storeName, "attach_post")
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	isCurrent := d.current != nil && d.current.ID == userID
	i := d.indexWhere(func(u models.User) bool { return u.ID == userID })
	if i < 0 && !isCurrent {
		return d.finish(ctx, span, "attach_post", models.NewNotFoundError("User", userID), false)
	}
	if i >= 0 {
		d.users[i] = d.users[i].WithPost(postID)
	}
	if isCurrent {
		next := d.current.WithPost(postID)
		d.current = &next
	}
	return d.finish(ctx, span, "attach_post", nil, true)
}

// Status returns the state of the last operation.
func (d *Directory) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

func (d *Directory) begin() {
	d.mu.Lock()
	d.status = Status{Loading: true}
	d.mu.Unlock()
}

// finish records the outcome of op. Callers hold d.mu.
func (d *Directory) finish(ctx context.Context, span *observability.Span, op string, err error, changed bool) error {
	observability.ObserveStoreOp(storeName, op, err, changed)
	if err == nil {
		d.status = Status{}
		return nil
	}
	d.status = Status{Error: models.MessageOf(err)}
	span.SetError(err)
	if models.IsCode(err, models.CodeInternal) {
		d.logger.ErrorContext(ctx, "directory operation failed", slog.String("operation", op), slog.Any("error", err))
	} else {
		d.logger.DebugContext(ctx, "directory operation rejected", slog.String("operation", op), slog.String("code", models.CodeOf(err)))
	}
	return err
}

func (d *Directory) indexWhere(match func(models.User) bool) int {
	for i, u := range d.users {
		if match(u) {
			return i
		}
	}
	return -1
}

