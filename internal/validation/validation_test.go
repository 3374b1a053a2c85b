package validation

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"Valid", "secret1", false},
		{"Exactly Min Length", "abcdef", false},
		{"Exactly Max Length", strings.Repeat("a", 128), false},
		{"Too Short", "abcde", true},
		{"Too Long", strings.Repeat("a", 129), true},
		{"Empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"Valid", "johndoe", false},
		{"With Dot And Underscore", "john.doe_1", false},
		{"Too Short", "jd", true},
		{"Too Long", strings.Repeat("j", 31), true},
		{"Spaces", "john doe", true},
		{"Symbols", "john$", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateEmail("john@example.com"))
	assert.Error(t, ValidateEmail("john@example"))
	assert.Error(t, ValidateEmail("not-an-email"))
	assert.Error(t, ValidateEmail(strings.Repeat("a", 250)+"@example.com"))
}

func TestValidateSignup_FirstFailureWins(t *testing.T) {
	t.Parallel()
	err := ValidateSignup("jd", "bad", "x", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username")

	assert.NoError(t, ValidateSignup("newuser", "new@example.com", "secret1", "New User"))
	assert.Error(t, ValidateSignup("newuser", "new@example.com", "secret1", "   "))
}

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestValidateMedia(t *testing.T) {
	t.Parallel()

	t.Run("http url is opaque", func(t *testing.T) {
		info, err := ValidateMedia("https://images.pexels.com/photos/2325446/pexels-photo.jpeg", 0)
		require.NoError(t, err)
		assert.False(t, info.Inline)
	})

	t.Run("png data url", func(t *testing.T) {
		info, err := ValidateMedia(pngDataURL(t, 4, 3), 0)
		require.NoError(t, err)
		assert.True(t, info.Inline)
		assert.Equal(t, "png", info.Format)
		assert.Equal(t, 4, info.Width)
		assert.Equal(t, 3, info.Height)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ValidateMedia("  ", 0)
		assert.ErrorIs(t, err, ErrMediaRequired)
	})

	t.Run("non image mime", func(t *testing.T) {
		payload := base64.StdEncoding.EncodeToString([]byte("hello"))
		_, err := ValidateMedia("data:text/plain;base64,"+payload, 0)
		assert.ErrorIs(t, err, ErrNotAnImage)
	})

	t.Run("image mime with garbage payload", func(t *testing.T) {
		payload := base64.StdEncoding.EncodeToString([]byte("definitely not a png"))
		_, err := ValidateMedia("data:image/png;base64,"+payload, 0)
		assert.ErrorIs(t, err, ErrNotAnImage)
	})

	t.Run("oversized", func(t *testing.T) {
		payload := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0}, 2048))
		_, err := ValidateMedia("data:image/png;base64,"+payload, 1024)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file size")
	})

	t.Run("relative path rejected", func(t *testing.T) {
		_, err := ValidateMedia("/uploads/pic.jpg", 0)
		assert.Error(t, err)
	})
}
