package validation

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"strings"

	_ "golang.org/x/image/bmp"  // register bmp decoder
	_ "golang.org/x/image/webp" // register webp decoder
)

// DefaultMaxMediaBytes is the upload limit applied when no explicit limit is configured.
const DefaultMaxMediaBytes = 5 * 1024 * 1024

var (
	// ErrMediaRequired is returned when a post has no media attached.
	ErrMediaRequired = errors.New("please select an image")
	// ErrNotAnImage is returned when inline media is not an image.
	ErrNotAnImage = errors.New("please select an image file")
)

// MediaInfo describes validated post media.
type MediaInfo struct {
	Inline    bool
	MIMEType  string
	Format    string
	SizeBytes int
	Width     int
	Height    int
}

// ValidateMedia accepts either an http(s) URL, which is treated as opaque,
// or a base64 image data URL whose decoded payload is at most maxBytes and
// decodes as an image.
func ValidateMedia(mediaURL string, maxBytes int) (MediaInfo, error) {
	raw := strings.TrimSpace(mediaURL)
	if raw == "" {
		return MediaInfo{}, ErrMediaRequired
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMediaBytes
	}

	if strings.HasPrefix(raw, "data:") {
		return validateDataURL(raw, maxBytes)
	}

	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return MediaInfo{}, fmt.Errorf("media must be an http(s) URL or an image data URL")
	}
	return MediaInfo{}, nil
}

func validateDataURL(raw string, maxBytes int) (MediaInfo, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return MediaInfo{}, fmt.Errorf("malformed data URL")
	}
	params := strings.Split(header, ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	if !strings.HasPrefix(mimeType, "image/") {
		return MediaInfo{}, ErrNotAnImage
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return MediaInfo{}, fmt.Errorf("image data URL must be base64 encoded")
	}

	// Reject oversized payloads before decoding them.
	if base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+2 {
		return MediaInfo{}, fmt.Errorf("file size should be less than %dMB", maxBytes/(1024*1024))
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("image data URL is not valid base64")
	}
	if len(data) > maxBytes {
		return MediaInfo{}, fmt.Errorf("file size should be less than %dMB", maxBytes/(1024*1024))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return MediaInfo{}, ErrNotAnImage
	}
	return MediaInfo{
		Inline:    true,
		MIMEType:  mimeType,
		Format:    format,
		SizeBytes: len(data),
		Width:     cfg.Width,
		Height:    cfg.Height,
	}, nil
}
