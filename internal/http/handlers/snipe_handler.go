package handlers

import (
	"bytes"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"slabtrack/internal/domain"
	"slabtrack/internal/export"
	applog "slabtrack/internal/log"
	"slabtrack/internal/services"
	"slabtrack/internal/validate"
)

type SnipeHandler struct {
	Snipes *services.SnipeService
}

type createSnipeRequest struct {
	ItemID       string              `json:"itemId"`
	Title        string              `json:"title"`
	MaxBid       decimal.Decimal     `json:"maxBid"`
	CurrentBid   decimal.NullDecimal `json:"currentBid"`
	ScheduledFor string              `json:"scheduledFor"`
}

// owned loads the snipe and hides it from anyone but its owner or an admin.
func (h *SnipeHandler) owned(c *fiber.Ctx) (domain.Snipe, error) {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return domain.Snipe{}, domain.ErrNotFound
	}
	sn, err := h.Snipes.Get(c.UserContext(), id)
	if err != nil {
		return domain.Snipe{}, err
	}
	u := currentUser(c)
	if u == nil || (sn.UserID != u.ID && !u.IsAdmin()) {
		applog.Security(c, "snipe.access.denied", map[string]any{"snipe_id": id})
		return domain.Snipe{}, domain.ErrNotFound
	}
	return sn, nil
}

func (h *SnipeHandler) List(c *fiber.Ctx) error {
	list, err := h.Snipes.ListForUser(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return fail(c, "snipe.list.fail", err)
	}
	if list == nil {
		list = []domain.Snipe{}
	}
	return c.JSON(list)
}

func (h *SnipeHandler) Create(c *fiber.Ctx) error {
	var req createSnipeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	itemID, ok := validate.ItemID(req.ItemID)
	if !ok {
		return badRequest(c, "enter a valid eBay item id")
	}
	maxBid, ok := validate.MaxBid(req.MaxBid.String())
	if !ok {
		return badRequest(c, "max bid must be a positive amount with at most two decimals")
	}
	if req.CurrentBid.Valid {
		if _, ok := validate.Amount(req.CurrentBid.Decimal.String()); !ok {
			return badRequest(c, "current bid must be a non-negative amount")
		}
	}
	title, ok := validate.Title(req.Title)
	if !ok {
		return badRequest(c, "title is too long")
	}
	when, ok := validate.Schedule(req.ScheduledFor)
	if !ok {
		return badRequest(c, "scheduledFor must be an RFC 3339 timestamp")
	}

	u := currentUser(c)
	sn, err := h.Snipes.Create(c.UserContext(), services.NewSnipe{
		UserID:       u.ID,
		ItemID:       itemID,
		Title:        title,
		MaxBid:       maxBid,
		CurrentBid:   req.CurrentBid,
		ScheduledFor: when,
	})
	if err != nil {
		return fail(c, "snipe.create.fail", err)
	}
	applog.Audit(c, "snipe.create", map[string]any{"snipe_id": sn.ID, "item_id": sn.ItemID, "status": sn.Status})
	return c.Status(fiber.StatusCreated).JSON(sn)
}

func (h *SnipeHandler) Get(c *fiber.Ctx) error {
	sn, err := h.owned(c)
	if err != nil {
		return fail(c, "snipe.get.fail", err)
	}
	return c.JSON(sn)
}

func (h *SnipeHandler) Bid(c *fiber.Ctx) error {
	sn, err := h.owned(c)
	if err != nil {
		return fail(c, "snipe.bid.fail", err)
	}
	sn, err = h.Snipes.PlaceBid(c.UserContext(), sn.ID)
	if err != nil {
		return fail(c, "snipe.bid.fail", err)
	}
	return c.JSON(sn)
}

func (h *SnipeHandler) Cancel(c *fiber.Ctx) error {
	sn, err := h.owned(c)
	if err != nil {
		return fail(c, "snipe.cancel.fail", err)
	}
	sn, err = h.Snipes.Cancel(c.UserContext(), sn.ID)
	if err != nil {
		return fail(c, "snipe.cancel.fail", err)
	}
	applog.Audit(c, "snipe.cancel", map[string]any{"snipe_id": sn.ID})
	return c.JSON(sn)
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

// Resolve is admin-only: POST /api/v1/admin/snipes/:id/resolve {"outcome":"won"|"lost"}
func (h *SnipeHandler) Resolve(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return fail(c, "snipe.resolve.fail", domain.ErrNotFound)
	}
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	var won bool
	switch req.Outcome {
	case "won":
		won = true
	case "lost":
	default:
		return badRequest(c, `outcome must be "won" or "lost"`)
	}
	sn, err := h.Snipes.Resolve(c.UserContext(), id, won)
	if err != nil {
		return fail(c, "snipe.resolve.fail", err)
	}
	applog.Audit(c, "snipe.resolve", map[string]any{"snipe_id": id, "outcome": req.Outcome})
	return c.JSON(sn)
}

// Export streams the caller's snipes as an XLSX workbook.
func (h *SnipeHandler) Export(c *fiber.Ctx) error {
	list, err := h.Snipes.ListForUser(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return fail(c, "snipe.export.fail", err)
	}
	var buf bytes.Buffer
	if err := export.WriteSnipes(&buf, list); err != nil {
		return fail(c, "snipe.export.fail", err)
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="snipes.xlsx"`)
	return c.Send(buf.Bytes())
}
