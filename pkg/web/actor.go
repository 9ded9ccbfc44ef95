package web

import (
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/gofiber/fiber/v3"
)

// Headers set by the identity provider in front of the API.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
	HeaderUserRole = "X-User-Role"
)

// actorFromRequest returns the acting user, or nil when the request carries no user id.
func actorFromRequest(c fiber.Ctx) *models.Actor {
	id := strings.TrimSpace(c.Get(HeaderUserID))
	if id == "" {
		return nil
	}

	return &models.Actor{
		ID:   id,
		Name: c.Get(HeaderUserName),
		Role: c.Get(HeaderUserRole),
	}
}
