package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"snapgram/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_AddsContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "development", slog.LevelInfo)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithClientID(ctx, "client-9")
	l.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-1")
	assert.Contains(t, out, "client_id=client-9")
	assert.NotContains(t, out, "user_id")
}

func TestLogger_JSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "production", slog.LevelInfo).With("store", "feed")

	l.InfoContext(WithUserID(context.Background(), "1"), "liked")
	assert.Contains(t, buf.String(), `"user_id":"1"`)
	assert.Contains(t, buf.String(), `"store":"feed"`)
}

func TestOutcome(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ok", Outcome(nil, true))
	assert.Equal(t, "noop", Outcome(nil, false))
	assert.Equal(t, models.CodeDuplicateEmail, Outcome(models.NewDuplicateEmailError(), false))
	assert.Equal(t, models.CodeInternal, Outcome(errors.New("boom"), true))
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "snapgram-test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	span, ctx := StartSpan(context.Background(), "feed", "LikePost")
	require.NotNil(t, ctx)
	span.SetError(errors.New("boom"))
	span.End()
}
