package server

import (
	"snapgram/internal/directory"
	"snapgram/internal/models"

	"github.com/gofiber/fiber/v2"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}

	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return respondWithError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := st.Directory().Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(user)
}

// Signup handles POST /api/auth/signup
func (s *Server) Signup(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}

	var req directory.SignupInput
	if err := c.BodyParser(&req); err != nil {
		return respondWithError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := st.Directory().Signup(c.UserContext(), req)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// Logout handles POST /api/auth/logout
func (s *Server) Logout(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	if err := st.Directory().Logout(c.UserContext()); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Me handles GET /api/auth/me
func (s *Server) Me(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	user, ok := st.Directory().CurrentUser()
	if !ok {
		return respondWithError(c, models.NewUnauthenticatedError("Not logged in"))
	}
	return c.JSON(user)
}
