// Package seed provides the mock world the state stores start from, plus a
// generator for larger demo worlds. These helpers are intended for
// development and testing only.
package seed

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"

	"snapgram/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed mock.yaml
var mockYAML []byte

// World is a full set of users and posts. Posts are kept newest first.
type World struct {
	Users []models.User `yaml:"users"`
	Posts []models.Post `yaml:"posts"`
}

// Default returns the embedded mock world.
func Default() World {
	w, err := Decode(bytes.NewReader(mockYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded seed is invalid: %v", err))
	}
	return w
}

// LoadFile reads a world from a YAML file. An empty path returns Default.
func LoadFile(path string) (World, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return World{}, fmt.Errorf("open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()
	w, err := Decode(f)
	if err != nil {
		return World{}, fmt.Errorf("seed file %s: %w", path, err)
	}
	return w, nil
}

// Decode parses and validates a YAML world.
func Decode(r io.Reader) (World, error) {
	var w World
	if err := yaml.NewDecoder(r).Decode(&w); err != nil {
		return World{}, fmt.Errorf("decode seed: %w", err)
	}
	w = w.normalized()
	if err := w.Validate(); err != nil {
		return World{}, err
	}
	return w, nil
}

// Encode writes w as YAML.
func Encode(wr io.Writer, w World) error {
	enc := yaml.NewEncoder(wr)
	enc.SetIndent(2)
	if err := enc.Encode(w); err != nil {
		return fmt.Errorf("encode seed: %w", err)
	}
	return enc.Close()
}

// Clone returns a deep copy of w.
func (w World) Clone() World {
	out := World{
		Users: make([]models.User, len(w.Users)),
		Posts: make([]models.Post, len(w.Posts)),
	}
	for i, u := range w.Users {
		out.Users[i] = u.Clone()
	}
	for i, p := range w.Posts {
		out.Posts[i] = p.Clone()
	}
	return out
}

// normalized replaces missing lists with empty ones so records match what the stores mint.
func (w World) normalized() World {
	return w.Clone()
}

// Validate checks identity uniqueness, post authorship, like/dislike
// exclusivity and follow-graph symmetry.
func (w World) Validate() error {
	ids := make(map[string]bool, len(w.Users))
	emails := make(map[string]bool, len(w.Users))
	names := make(map[string]bool, len(w.Users))
	for _, u := range w.Users {
		if u.ID == "" || u.Username == "" || u.Email == "" {
			return fmt.Errorf("user %q: id, username and email are required", u.ID)
		}
		if ids[u.ID] {
			return fmt.Errorf("duplicate user id %q", u.ID)
		}
		if emails[u.Email] {
			return fmt.Errorf("duplicate email %q", u.Email)
		}
		if names[u.Username] {
			return fmt.Errorf("duplicate username %q", u.Username)
		}
		ids[u.ID], emails[u.Email], names[u.Username] = true, true, true
	}

	byID := make(map[string]models.User, len(w.Users))
	for _, u := range w.Users {
		byID[u.ID] = u
	}
	for _, u := range w.Users {
		for _, f := range u.Following {
			target, ok := byID[f]
			if !ok {
				return fmt.Errorf("user %q follows unknown user %q", u.ID, f)
			}
			if !target.HasFollower(u.ID) {
				return fmt.Errorf("user %q follows %q but is not among its followers", u.ID, f)
			}
		}
		for _, f := range u.Followers {
			follower, ok := byID[f]
			if !ok {
				return fmt.Errorf("user %q has unknown follower %q", u.ID, f)
			}
			if !follower.IsFollowing(u.ID) {
				return fmt.Errorf("user %q lists follower %q that does not follow it", u.ID, f)
			}
		}
	}

	postIDs := make(map[string]bool, len(w.Posts))
	for _, p := range w.Posts {
		if p.ID == "" || postIDs[p.ID] {
			return fmt.Errorf("post id %q is empty or duplicated", p.ID)
		}
		postIDs[p.ID] = true
		if _, ok := byID[p.UserID]; !ok {
			return fmt.Errorf("post %q has unknown author %q", p.ID, p.UserID)
		}
		for _, id := range p.Likes {
			if slices.Contains(p.Dislikes, id) {
				return fmt.Errorf("post %q is both liked and disliked by %q", p.ID, id)
			}
		}
	}
	return nil
}
