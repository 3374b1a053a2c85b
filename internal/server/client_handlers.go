package server

import (
	"time"

	"snapgram/internal/directory"
	"snapgram/internal/feed"
	"snapgram/internal/middleware"
	"snapgram/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// IssueClient handles POST /api/clients. It mints a new client id and returns
// a token for it, also set as the client_token cookie. The client's state is
// created on its first authenticated request.
func (s *Server) IssueClient(c *fiber.Ctx) error {
	clientID := uuid.NewString()
	token, exp, err := s.tokens.Issue(clientID)
	if err != nil {
		return respondWithError(c, models.NewInternalError(err))
	}

	cookie := &fiber.Cookie{
		Name:     middleware.ClientCookie,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if !exp.IsZero() {
		cookie.Expires = exp
	}
	c.Cookie(cookie)

	body := fiber.Map{
		"clientId": clientID,
		"token":    token,
	}
	if !exp.IsZero() {
		body["expiresAt"] = exp.UTC().Format(time.RFC3339)
	}
	return c.Status(fiber.StatusCreated).JSON(body)
}

// GetStatus handles GET /api/status with the loading/error state of both stores.
func (s *Server) GetStatus(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(struct {
		Directory directory.Status `json:"directory"`
		Feed      feed.Status      `json:"feed"`
	}{st.Directory().Status(), st.Feed().Status()})
}

// ResetClient handles POST /api/reset. Both stores go back to the seed world
// and the in-memory login is dropped; the persisted session is kept.
func (s *Server) ResetClient(c *fiber.Ctx) error {
	st, err := s.clientState(c)
	if err != nil {
		return respondWithError(c, err)
	}
	if err := st.Reset(c.UserContext()); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
