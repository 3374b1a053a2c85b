package server

import (
	"snapgram/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SearchUsers handles GET /api/users?q=...
// A blank query lists suggestions: everyone but the current user.
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(st.Directory().Search(c.Query("q")))
}

// GetUser handles GET /api/users/:id
func (s *Server) GetUser(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	id := c.Params("id")
	user, ok := st.Directory().GetUser(id)
	if !ok {
		return respondWithError(c, models.NewNotFoundError("User", id))
	}
	return c.JSON(user)
}

// FollowUser handles POST /api/users/:id/follow
func (s *Server) FollowUser(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	if err := st.Directory().Follow(c.UserContext(), c.Params("id")); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UnfollowUser handles DELETE /api/users/:id/follow
func (s *Server) UnfollowUser(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	if err := st.Directory().Unfollow(c.UserContext(), c.Params("id")); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetUserPosts handles GET /api/users/:id/posts. The result also becomes the
// client's cached profile grid.
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	posts, err := st.Feed().FetchUserPosts(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(posts)
}
