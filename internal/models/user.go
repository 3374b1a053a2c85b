// Package models contains the domain records shared by the directory and feed stores.
//
// Records are plain values. Updaters named WithX / WithoutX return a new value
// and never share slice storage with the receiver, so a stored record can be
// handed out without copying.
package models

import (
	"errors"
	"slices"
	"time"
)

// User is a directory entry and a node in the follow graph.
type User struct {
	ID           string    `json:"id" yaml:"id"`
	Username     string    `json:"username" yaml:"username"`
	Email        string    `json:"email" yaml:"email"`
	FullName     string    `json:"fullName" yaml:"fullName"`
	Bio          string    `json:"bio,omitempty" yaml:"bio,omitempty"`
	ProfileImage string    `json:"profileImage,omitempty" yaml:"profileImage,omitempty"`
	Followers    []string  `json:"followers" yaml:"followers"`
	Following    []string  `json:"following" yaml:"following"`
	IsCreator    bool      `json:"isCreator" yaml:"isCreator"`
	Posts        []string  `json:"posts" yaml:"posts"`
	CreatedAt    time.Time `json:"createdAt" yaml:"createdAt"`
}

// NewUser validates the identity fields and returns a user with empty graph lists.
func NewUser(id, username, email, fullName string, createdAt time.Time) (User, error) {
	if id == "" {
		return User{}, errors.New("user id is required")
	}
	if username == "" {
		return User{}, errors.New("username is required")
	}
	if email == "" {
		return User{}, errors.New("email is required")
	}
	return User{
		ID:        id,
		Username:  username,
		Email:     email,
		FullName:  fullName,
		Followers: []string{},
		Following: []string{},
		Posts:     []string{},
		CreatedAt: createdAt,
	}, nil
}

// IsFollowing reports whether u follows the given user.
func (u User) IsFollowing(userID string) bool {
	return slices.Contains(u.Following, userID)
}

// HasFollower reports whether the given user follows u.
func (u User) HasFollower(userID string) bool {
	return slices.Contains(u.Followers, userID)
}

// WithFollowing returns u following userID. Already-followed ids are not duplicated.
func (u User) WithFollowing(userID string) User {
	u.Following = withID(u.Following, userID)
	return u
}

// WithoutFollowing returns u no longer following userID.
func (u User) WithoutFollowing(userID string) User {
	u.Following = withoutID(u.Following, userID)
	return u
}

// WithFollower returns u with userID among its followers.
func (u User) WithFollower(userID string) User {
	u.Followers = withID(u.Followers, userID)
	return u
}

// WithoutFollower returns u with userID removed from its followers.
func (u User) WithoutFollower(userID string) User {
	u.Followers = withoutID(u.Followers, userID)
	return u
}

// WithPost returns u owning postID.
func (u User) WithPost(postID string) User {
	u.Posts = withID(u.Posts, postID)
	return u
}

// Clone returns a deep copy of u.
func (u User) Clone() User {
	u.Followers = cloneIDs(u.Followers)
	u.Following = cloneIDs(u.Following)
	u.Posts = cloneIDs(u.Posts)
	return u
}

func withID(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return cloneIDs(ids)
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, id)
}

func withoutID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return slices.Clone(ids)
}
