package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"snapgram/internal/config"
	"snapgram/internal/middleware"
	"snapgram/internal/models"
	"snapgram/internal/seed"
	"snapgram/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func testConfig() *config.Config {
	return &config.Config{
		Env:                  "test",
		Port:                 "0",
		ClientTokenSecret:    testSecret,
		ClientTokenTTLHours:  1,
		ClientIdleTTLMinutes: 30,
		SessionBackend:       config.SessionBackendMemory,
		SessionKeyPrefix:     "snapgram",
		MaxUploadSizeMB:      1,
		AllowedOrigins:       "http://localhost:5173",
	}
}

func newTestServer(t *testing.T, cfg *config.Config, rdb *redis.Client) (*Server, *fiber.App, *storage.Memory) {
	t.Helper()
	kv := storage.NewMemory()
	srv := NewServerWithDeps(cfg, kv, rdb, seed.Default())
	t.Cleanup(func() { _ = srv.registry.Shutdown(context.Background()) })
	return srv, srv.NewApp(), kv
}

// do sends a request with an optional JSON body and client token.
func do(t *testing.T, app *fiber.App, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func newClient(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp := do(t, app, http.MethodPost, "/api/clients", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	require.NotEmpty(t, body["token"])
	return body["token"]
}

func login(t *testing.T, app *fiber.App, token, email string) models.User {
	t.Helper()
	resp := do(t, app, http.MethodPost, "/api/auth/login", token, LoginRequest{Email: email, Password: "pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[models.User](t, resp)
}

func postIDs(posts []models.Post) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestHealthCheck(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)

	resp := do(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "up", body["status"])
	assert.Equal(t, "disabled", body["checks"].(map[string]any)["redis"])
}

func TestIssueClient(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)

	resp := do(t, app, http.MethodPost, "/api/clients", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.NotEmpty(t, body["clientId"])
	assert.NotEmpty(t, body["expiresAt"])

	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == middleware.ClientCookie {
			cookie = ck
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, body["token"], cookie.Value)
	assert.True(t, cookie.HttpOnly)

	// The cookie alone identifies the client.
	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.AddCookie(&http.Cookie{Name: middleware.ClientCookie, Value: cookie.Value})
	feedResp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = feedResp.Body.Close() }()
	assert.Equal(t, http.StatusOK, feedResp.StatusCode)
}

func TestProtectedRoutesRequireClientToken(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)

	for _, path := range []string{"/api/feed", "/api/posts", "/api/users", "/api/auth/me", "/api/status"} {
		t.Run(path, func(t *testing.T) {
			resp := do(t, app, http.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, models.CodeUnauthenticated, decode[models.ErrorResponse](t, resp).Code)
		})
	}
}

func TestLoginLogoutFlow(t *testing.T) {
	_, app, kv := newTestServer(t, testConfig(), nil)
	token := newClient(t, app)

	resp := do(t, app, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	user := login(t, app, token, "john@example.com")
	assert.Equal(t, "1", user.ID)
	assert.Equal(t, 1, kv.Len())

	resp = do(t, app, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "johndoe", decode[models.User](t, resp).Username)

	resp = do(t, app, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, kv.Len())

	resp = do(t, app, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginErrors(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)
	token := newClient(t, app)

	tests := []struct {
		name           string
		body           any
		expectedStatus int
		expectedCode   string
	}{
		{"Unknown email", LoginRequest{Email: "nobody@example.com", Password: "pw"}, http.StatusUnauthorized, models.CodeInvalidCredentials},
		{"Empty password", LoginRequest{Email: "john@example.com"}, http.StatusBadRequest, models.CodeValidation},
		{"Invalid body", "not an object", http.StatusBadRequest, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, app, http.MethodPost, "/api/auth/login", token, tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Equal(t, tt.expectedCode, decode[models.ErrorResponse](t, resp).Code)
		})
	}
}

func TestSignup(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)
	token := newClient(t, app)

	valid := map[string]string{
		"username": "newbie",
		"email":    "newbie@example.com",
		"password": "secret123",
		"fullName": "New Bie",
	}
	resp := do(t, app, http.MethodPost, "/api/auth/signup", token, valid)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	user := decode[models.User](t, resp)
	assert.True(t, user.IsCreator)
	assert.Empty(t, user.Followers)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "Duplicate email",
			body:           map[string]string{"username": "other", "email": "john@example.com", "password": "secret123", "fullName": "Other"},
			expectedStatus: http.StatusConflict,
			expectedCode:   models.CodeDuplicateEmail,
		},
		{
			name:           "Duplicate username",
			body:           map[string]string{"username": "johndoe", "email": "other@example.com", "password": "secret123", "fullName": "Other"},
			expectedStatus: http.StatusConflict,
			expectedCode:   models.CodeDuplicateUsername,
		},
		{
			name:           "Short password",
			body:           map[string]string{"username": "other", "email": "other@example.com", "password": "123", "fullName": "Other"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   models.CodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, app, http.MethodPost, "/api/auth/signup", token, tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Equal(t, tt.expectedCode, decode[models.ErrorResponse](t, resp).Code)
		})
	}
}

func TestFollowShapesFeed(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)
	token := newClient(t, app)

	resp := do(t, app, http.MethodPost, "/api/auth/signup", token, map[string]string{
		"username": "outsider", "email": "out@example.com", "password": "secret123", "fullName": "Out Sider",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	me := decode[models.User](t, resp)

	resp = do(t, app, http.MethodGet, "/api/feed", token, nil)
	assert.Empty(t, decode[[]models.Post](t, resp))

	resp = do(t, app, http.MethodPost, "/api/users/2/follow", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/feed", token, nil)
	assert.Equal(t, []string{"2"}, postIDs(decode[[]models.Post](t, resp)))

	resp = do(t, app, http.MethodGet, "/api/users/2", token, nil)
	assert.Contains(t, decode[models.User](t, resp).Followers, me.ID)

	resp = do(t, app, http.MethodDelete, "/api/users/2/follow", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, app, http.MethodGet, "/api/feed", token, nil)
	assert.Empty(t, decode[[]models.Post](t, resp))

	resp = do(t, app, http.MethodPost, "/api/users/"+me.ID+"/follow", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, app, http.MethodPost, "/api/users/missing/follow", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeedWithoutLoginListsEverything(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)
	token := newClient(t, app)

	resp := do(t, app, http.MethodGet, "/api/feed", token, nil)
	assert.Len(t, decode[[]models.Post](t, resp), 3)

	// Mutations are ignored while logged out.
	resp = do(t, app, http.MethodPost, "/api/users/2/follow", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, app, http.MethodGet, "/api/users/2", token, nil)
	assert.Equal(t, []string{"1"}, decode[models.User](t, resp).Followers)
}

func TestCreatePost(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)
	token := newClient(t, app)
	input := map[string]string{"mediaUrl": "https://example.com/cat.jpg", "caption": "cat"}

	resp := do(t, app, http.MethodPost, "/api/posts", token, input)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	login(t, app, token, "sam@example.com")
	resp = do(t, app, http.MethodPost, "/api/posts", token, input)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeForbidden, decode[models.ErrorResponse](t, resp).Code)

	login(t, app, token, "john@example.com")
	resp = do(t, app, http.MethodPost, "/api/posts", token, map[string]string{"mediaUrl": "ftp://nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, app, http.MethodPost, "/api/posts", token, input)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.Post](t, resp)
	assert.Equal(t, "1", created.UserID)
	assert.Equal(t, "johndoe", created.Username)

	resp = do(t, app, http.MethodGet, "/api/posts", token, nil)
	posts := decode[[]models.Post](t, resp)
	require.Len(t, posts, 4)
	assert.Equal(t, created.ID, posts[0].ID)

	resp = do(t, app, http.MethodGet, "/api/auth/me", token, nil)
	assert.Contains(t, decode[models.User](t, resp).Posts, created.ID)

	resp = do(t, app, http.MethodGet, "/api/posts/"+created.ID, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/posts?refresh=true", token, nil)
	assert.Equal(t, []string{"1", "2", "3"}, slices.Sorted(slices.Values(postIDs(decode[[]models.Post](t, resp)))))

	resp = do(t, app, http.MethodGet, "/api/posts/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReactions(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)
	token := newClient(t, app)
	login(t, app, token, "sam@example.com")

	resp := do(t, app, http.MethodPost, "/api/posts/1/like", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	post := decode[models.Post](t, resp)
	assert.Equal(t, []string{"2", "3"}, post.Likes)

	resp = do(t, app, http.MethodPost, "/api/posts/1/dislike", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	post = decode[models.Post](t, resp)
	assert.Equal(t, []string{"2"}, post.Likes)
	assert.Equal(t, []string{"3"}, post.Dislikes)

	resp = do(t, app, http.MethodPost, "/api/posts/1/dislike", token, nil)
	post = decode[models.Post](t, resp)
	assert.Empty(t, post.Dislikes)

	resp = do(t, app, http.MethodPost, "/api/posts/missing/like", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestComments(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)
	token := newClient(t, app)

	resp := do(t, app, http.MethodPost, "/api/posts/1/comments", token, CommentRequest{Content: "hi"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	login(t, app, token, "jane@example.com")

	resp = do(t, app, http.MethodPost, "/api/posts/1/comments", token, CommentRequest{Content: "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, app, http.MethodPost, "/api/posts/missing/comments", token, CommentRequest{Content: "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, app, http.MethodPost, "/api/posts/1/comments", token, CommentRequest{Content: "Lovely"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	comment := decode[models.Comment](t, resp)
	assert.Equal(t, "janedoe", comment.Username)

	resp = do(t, app, http.MethodGet, "/api/posts/1", token, nil)
	post := decode[models.Post](t, resp)
	require.Len(t, post.Comments, 1)
	assert.Equal(t, comment.ID, post.Comments[0].ID)
}

func TestUsersEndpoints(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)
	token := newClient(t, app)

	resp := do(t, app, http.MethodGet, "/api/users?q=JANE", token, nil)
	users := decode[[]models.User](t, resp)
	require.Len(t, users, 1)
	assert.Equal(t, "2", users[0].ID)

	login(t, app, token, "john@example.com")
	resp = do(t, app, http.MethodGet, "/api/users", token, nil)
	assert.Len(t, decode[[]models.User](t, resp), 2)

	resp = do(t, app, http.MethodGet, "/api/users/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, models.CodeNotFound, decode[models.ErrorResponse](t, resp).Code)

	resp = do(t, app, http.MethodGet, "/api/users/1/posts", token, nil)
	assert.Equal(t, []string{"1", "3"}, slices.Sorted(slices.Values(postIDs(decode[[]models.Post](t, resp)))))
}

func TestClientsAreIsolated(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)
	a := newClient(t, app)
	b := newClient(t, app)

	login(t, app, a, "john@example.com")
	resp := do(t, app, http.MethodPost, "/api/posts/2/like", a, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/auth/me", b, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = do(t, app, http.MethodGet, "/api/posts/2", b, nil)
	assert.Equal(t, []string{"1", "3"}, decode[models.Post](t, resp).Likes)
}

func TestSessionSurvivesEviction(t *testing.T) {
	srv, app, _ := newTestServer(t, testConfig(), nil)
	token := newClient(t, app)
	login(t, app, token, "jane@example.com")
	require.Equal(t, 1, srv.Registry().Len())

	srv.registry.mu.Lock()
	srv.registry.now = func() time.Time { return time.Now().Add(time.Hour) }
	srv.registry.mu.Unlock()
	assert.Equal(t, 1, srv.Registry().EvictIdle())
	assert.Equal(t, 0, srv.Registry().Len())

	resp := do(t, app, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2", decode[models.User](t, resp).ID)
}

func TestStatusAndReset(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)
	token := newClient(t, app)
	login(t, app, token, "john@example.com")

	resp := do(t, app, http.MethodGet, "/api/status", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[map[string]map[string]any](t, resp)
	assert.Equal(t, false, status["directory"]["loading"])
	assert.Equal(t, false, status["feed"]["loading"])

	resp = do(t, app, http.MethodPost, "/api/posts", token, map[string]string{"mediaUrl": "https://example.com/a.jpg"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, app, http.MethodPost, "/api/reset", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = do(t, app, http.MethodGet, "/api/posts", token, nil)
	assert.Len(t, decode[[]models.Post](t, resp), 3)
}

func TestUnknownRoute(t *testing.T) {
	_, app, _ := newTestServer(t, testConfig(), nil)

	resp := do(t, app, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimitedClients(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	cfg.RedisURL = mr.Addr()
	_, app, _ := newTestServer(t, cfg, rdb)

	resp := do(t, app, http.MethodPost, "/api/clients", "", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, app, http.MethodPost, "/api/clients", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "healthy", decode[map[string]any](t, resp)["checks"].(map[string]any)["redis"])
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	tests := map[string]int{
		models.CodeValidation:         http.StatusBadRequest,
		models.CodeInvalidCredentials: http.StatusUnauthorized,
		models.CodeUnauthenticated:    http.StatusUnauthorized,
		models.CodeForbidden:          http.StatusForbidden,
		models.CodeNotFound:           http.StatusNotFound,
		models.CodeDuplicateEmail:     http.StatusConflict,
		models.CodeDuplicateUsername:  http.StatusConflict,
		models.CodeInternal:           http.StatusInternalServerError,
		"SOMETHING_ELSE":              http.StatusInternalServerError,
	}
	for code, status := range tests {
		assert.Equal(t, status, statusFor(code), code)
	}
}

func TestRespondWithError_HidesInternalCause(t *testing.T) {
	t.Parallel()
	app := fiber.New()
	app.Get("/internal", func(c *fiber.Ctx) error {
		return respondWithError(c, models.NewInternalError(errors.New("dial tcp 10.0.0.5:6379: connection refused")))
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return respondWithError(c, errors.New("pq: relation kv_entries does not exist"))
	})
	app.Get("/validation", func(c *fiber.Ctx) error {
		return respondWithError(c, &models.AppError{Code: models.CodeValidation, Message: "bad media", Err: errors.New("unsupported image format")})
	})

	tests := []struct {
		path    string
		status  int
		code    string
		details string
	}{
		{"/internal", http.StatusInternalServerError, models.CodeInternal, ""},
		{"/plain", http.StatusInternalServerError, models.CodeInternal, ""},
		{"/validation", http.StatusBadRequest, models.CodeValidation, "unsupported image format"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil), -1)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var body models.ErrorResponse
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.details, body.Details)
			assert.NotContains(t, string(raw), "10.0.0.5")
			assert.NotContains(t, string(raw), "kv_entries")
		})
	}
}

func TestRateLimitedClients_InProcess(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	_, app, _ := newTestServer(t, cfg, nil)

	resp := do(t, app, http.MethodPost, "/api/clients", "", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, app, http.MethodPost, "/api/clients", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
