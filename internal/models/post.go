package models

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// Post is a single shared photo.
//
// Username and UserProfileImage are copied from the author when the post is
// created and are never refreshed afterwards.
type Post struct {
	ID               string    `json:"id" yaml:"id"`
	UserID           string    `json:"userId" yaml:"userId"`
	Username         string    `json:"username" yaml:"username"`
	UserProfileImage string    `json:"userProfileImage,omitempty" yaml:"userProfileImage,omitempty"`
	MediaURL         string    `json:"mediaUrl" yaml:"mediaUrl"`
	Caption          string    `json:"caption,omitempty" yaml:"caption,omitempty"`
	Likes            []string  `json:"likes" yaml:"likes"`
	Dislikes         []string  `json:"dislikes" yaml:"dislikes"`
	Comments         []Comment `json:"comments" yaml:"comments"`
	CreatedAt        time.Time `json:"createdAt" yaml:"createdAt"`
}

// NewPost builds a post authored by the given user snapshot.
func NewPost(id string, author User, mediaURL, caption string, createdAt time.Time) (Post, error) {
	if id == "" {
		return Post{}, errors.New("post id is required")
	}
	if author.ID == "" {
		return Post{}, errors.New("post author is required")
	}
	if strings.TrimSpace(mediaURL) == "" {
		return Post{}, errors.New("media url is required")
	}
	return Post{
		ID:               id,
		UserID:           author.ID,
		Username:         author.Username,
		UserProfileImage: author.ProfileImage,
		MediaURL:         mediaURL,
		Caption:          caption,
		Likes:            []string{},
		Dislikes:         []string{},
		Comments:         []Comment{},
		CreatedAt:        createdAt,
	}, nil
}

// LikedBy reports whether userID likes p.
func (p Post) LikedBy(userID string) bool {
	return slices.Contains(p.Likes, userID)
}

// DislikedBy reports whether userID dislikes p.
func (p Post) DislikedBy(userID string) bool {
	return slices.Contains(p.Dislikes, userID)
}

// ToggleLike removes an existing like by userID, or adds one and drops any dislike.
func (p Post) ToggleLike(userID string) Post {
	if p.LikedBy(userID) {
		p.Likes = withoutID(p.Likes, userID)
		p.Dislikes = cloneIDs(p.Dislikes)
		return p
	}
	p.Likes = withID(p.Likes, userID)
	p.Dislikes = withoutID(p.Dislikes, userID)
	return p
}

// ToggleDislike removes an existing dislike by userID, or adds one and drops any like.
func (p Post) ToggleDislike(userID string) Post {
	if p.DislikedBy(userID) {
		p.Dislikes = withoutID(p.Dislikes, userID)
		p.Likes = cloneIDs(p.Likes)
		return p
	}
	p.Dislikes = withID(p.Dislikes, userID)
	p.Likes = withoutID(p.Likes, userID)
	return p
}

// WithComment returns p with c appended to its comments.
func (p Post) WithComment(c Comment) Post {
	comments := make([]Comment, 0, len(p.Comments)+1)
	comments = append(comments, p.Comments...)
	p.Comments = append(comments, c)
	return p
}

// Clone returns a deep copy of p.
func (p Post) Clone() Post {
	p.Likes = cloneIDs(p.Likes)
	p.Dislikes = cloneIDs(p.Dislikes)
	if p.Comments == nil {
		p.Comments = []Comment{}
	} else {
		p.Comments = slices.Clone(p.Comments)
	}
	return p
}
