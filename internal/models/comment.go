package models

import (
	"errors"
	"strings"
	"time"
)

// Comment belongs to exactly one post. Author fields are a snapshot taken at creation.
type Comment struct {
	ID               string    `json:"id" yaml:"id"`
	PostID           string    `json:"postId" yaml:"postId"`
	UserID           string    `json:"userId" yaml:"userId"`
	Username         string    `json:"username" yaml:"username"`
	UserProfileImage string    `json:"userProfileImage,omitempty" yaml:"userProfileImage,omitempty"`
	Content          string    `json:"content" yaml:"content"`
	CreatedAt        time.Time `json:"createdAt" yaml:"createdAt"`
}

// ErrEmptyComment is returned by NewComment for blank content.
var ErrEmptyComment = errors.New("comment content is required")

// NewComment builds a comment by author on postID.
func NewComment(id, postID string, author User, content string, createdAt time.Time) (Comment, error) {
	if id == "" || postID == "" {
		return Comment{}, errors.New("comment and post ids are required")
	}
	if strings.TrimSpace(content) == "" {
		return Comment{}, ErrEmptyComment
	}
	return Comment{
		ID:               id,
		PostID:           postID,
		UserID:           author.ID,
		Username:         author.Username,
		UserProfileImage: author.ProfileImage,
		Content:          content,
		CreatedAt:        createdAt,
	}, nil
}
