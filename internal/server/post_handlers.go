package server

import (
	"context"

	"snapgram/internal/feed"
	"snapgram/internal/models"
	"snapgram/internal/state"

	"github.com/gofiber/fiber/v2"
)

// CommentRequest is the body of POST /api/posts/:id/comments.
type CommentRequest struct {
	Content string `json:"content"`
}

// GetPosts handles GET /api/posts. With ?refresh=true the posts are first
// reloaded from the seed world, which drops posts created since.
func (s *Server) GetPosts(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	if c.QueryBool("refresh") {
		if err := st.Feed().FetchPosts(c.UserContext()); err != nil {
			return respondWithError(c, err)
		}
	}
	return c.JSON(st.Feed().Posts())
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	id := c.Params("id")
	post, ok := st.Feed().GetPost(id)
	if !ok {
		return respondWithError(c, models.NewNotFoundError("Post", id))
	}
	return c.JSON(post)
}

// CreatePost handles POST /api/posts. Responds 204 when nobody is logged in.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}

	var req feed.CreatePostInput
	if err := c.BodyParser(&req); err != nil {
		return respondWithError(c, models.NewValidationError("Invalid request body"))
	}

	post, err := st.Feed().CreatePost(c.UserContext(), req)
	if err != nil {
		return respondWithError(c, err)
	}
	if post.ID == "" {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// LikePost handles POST /api/posts/:id/like
func (s *Server) LikePost(c *fiber.Ctx) error {
	return s.togglePost(c, (*feed.Feed).LikePost)
}

// DislikePost handles POST /api/posts/:id/dislike
func (s *Server) DislikePost(c *fiber.Ctx) error {
	return s.togglePost(c, (*feed.Feed).DislikePost)
}

// togglePost applies a reaction and responds with the post as it now stands.
func (s *Server) togglePost(c *fiber.Ctx, apply func(*feed.Feed, context.Context, string) error) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	id := c.Params("id")
	if err := apply(st.Feed(), c.UserContext(), id); err != nil {
		return respondWithError(c, err)
	}
	return s.respondWithPost(c, st, id)
}

// CreateComment handles POST /api/posts/:id/comments. Responds 204 when nobody is logged in.
func (s *Server) CreateComment(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}

	var req CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return respondWithError(c, models.NewValidationError("Invalid request body"))
	}

	comment, err := st.Feed().AddComment(c.UserContext(), c.Params("id"), req.Content)
	if err != nil {
		return respondWithError(c, err)
	}
	if comment.ID == "" {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// GetFeed handles GET /api/feed
func (s *Server) GetFeed(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(st.Feed().FeedPosts())
}

func (s *Server) respondWithPost(c *fiber.Ctx, st *state.Store, id string) error {
	post, ok := st.Feed().GetPost(id)
	if !ok {
		return respondWithError(c, models.NewNotFoundError("Post", id))
	}
	return c.JSON(post)
}
