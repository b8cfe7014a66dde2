package handlers

import (
	"github.com/gofiber/fiber/v2"

	"slabtrack/internal/services"
	"slabtrack/internal/validate"
)

type CertHandler struct {
	Certs *services.CertificationService
}

// Get serves GET /api/v1/certs/:cert?population=true
func (h *CertHandler) Get(c *fiber.Ctx) error {
	cert, ok := validate.CertNumber(c.Params("cert"))
	if !ok {
		return badRequest(c, "enter a valid PSA cert number")
	}
	rec, err := h.Certs.GetCertification(c.UserContext(), cert, c.QueryBool("population"))
	if err != nil {
		return fail(c, "cert.get.fail", err)
	}
	if rec.Stale {
		c.Set("Warning", `110 - "stale certification"`)
	}
	return c.JSON(rec)
}
