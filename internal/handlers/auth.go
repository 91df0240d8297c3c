package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/machikart/internal/access"
	"github.com/example/machikart/internal/middleware"
)

// AuthHandler issues operator sessions.
type AuthHandler struct {
	gate *access.Gate
	log  *zap.Logger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(gate *access.Gate, log *zap.Logger) *AuthHandler {
	return &AuthHandler{gate: gate, log: log}
}

type loginRequest struct {
	Passkey string `json:"passkey"`
}

// Login exchanges the operator passkey for a bearer token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Passkey == "" {
		return fiber.NewError(fiber.StatusBadRequest, "passkey is required")
	}

	token, grant, err := h.gate.Authenticate(req.Passkey)
	if err != nil {
		if errors.Is(err, access.ErrUnauthorized) {
			h.log.Warn("operator login rejected", zap.String("ip", c.IP()))
			return fiber.NewError(fiber.StatusUnauthorized, "invalid passkey")
		}
		return err
	}

	h.log.Info("operator logged in", zap.String("ip", c.IP()))
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"token":      token,
			"expires_at": grant.ExpiresAt,
		},
	})
}

// Session reports the grant behind the presented token.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	grant := middleware.GetGrant(c)
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"operator":   grant.Operator,
			"expires_at": grant.ExpiresAt,
		},
	})
}
