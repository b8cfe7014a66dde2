package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	applog "slabtrack/internal/log"
)

// Marketplace is the account-linking half of the eBay client.
type Marketplace interface {
	ConsentURL(state string) string
	Exchange(ctx context.Context, userID, code string) error
}

type EbayHandler struct {
	Market Marketplace
}

const stateCookie = "ebay_state"

// Connect hands the client the consent URL and pins a one-time state to the browser.
func (h *EbayHandler) Connect(c *fiber.Ctx) error {
	state := uuid.NewString()
	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/v1/ebay",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(10 * time.Minute),
	})
	return c.JSON(fiber.Map{"url": h.Market.ConsentURL(state)})
}

func (h *EbayHandler) Callback(c *fiber.Ctx) error {
	want := c.Cookies(stateCookie)
	if want == "" || c.Query("state") != want {
		applog.Security(c, "ebay.callback.state_mismatch", nil)
		return badRequest(c, "authorization state mismatch")
	}
	code := c.Query("code")
	if code == "" {
		return badRequest(c, "missing authorization code")
	}
	c.Cookie(&fiber.Cookie{Name: stateCookie, Value: "", Path: "/api/v1/ebay", Expires: time.Now().Add(-time.Hour)})

	u := currentUser(c)
	if err := h.Market.Exchange(c.UserContext(), u.ID, code); err != nil {
		return fail(c, "ebay.connect.fail", err)
	}
	applog.Audit(c, "ebay.connect", nil)
	return c.JSON(fiber.Map{"connected": true})
}
