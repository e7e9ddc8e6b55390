package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/orehub/metalx/internal/model"
	"github.com/orehub/metalx/internal/repository"
	"github.com/orehub/metalx/internal/service"
)

// AuctionHandler exposes the auction lifecycle endpoints.  Browse
// queries go straight to the repository; anything that mutates state
// goes through the service.
type AuctionHandler struct {
	Svc      *service.AuctionService
	Auctions *repository.AuctionRepo
}

func NewAuctionHandler(svc *service.AuctionService, auctions *repository.AuctionRepo) *AuctionHandler {
	if svc == nil || auctions == nil {
		panic("nil dependency passed to NewAuctionHandler")
	}
	return &AuctionHandler{Svc: svc, Auctions: auctions}
}

type createAuctionRequest struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	AuctionType    string          `json:"auction_type"`
	MaterialType   string          `json:"material_type"`
	MaterialGrade  string          `json:"material_grade"`
	Quantity       uint32          `json:"quantity"`
	StartingPrice  decimal.Decimal `json:"starting_price"`
	BidIncrement   decimal.Decimal `json:"bid_increment"`
	Currency       string          `json:"currency"`
	ScheduledStart time.Time       `json:"scheduled_start"`
	ScheduledEnd   time.Time       `json:"scheduled_end"`
	LaunchNow      bool            `json:"launch_now"`
}

// Create handles POST /v1/auctions for suppliers.
func (h *AuctionHandler) Create(c echo.Context) error {
	supplierID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createAuctionRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	in := service.CreateAuctionInput{
		Title:          body.Title,
		Description:    body.Description,
		Type:           model.AuctionType(body.AuctionType),
		MaterialType:   body.MaterialType,
		MaterialGrade:  body.MaterialGrade,
		QuantityTotal:  body.Quantity,
		StartingPrice:  body.StartingPrice,
		BidIncrement:   body.BidIncrement,
		Currency:       body.Currency,
		ScheduledStart: body.ScheduledStart,
		ScheduledEnd:   body.ScheduledEnd,
		SupplierID:     supplierID,
	}
	if body.LaunchNow {
		in.Status = model.StatusActive
	}
	a, err := h.Svc.CreateAuction(c.Request().Context(), in)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, auctionResponse(a))
}

// Launch handles POST /v1/auctions/:id/launch.
func (h *AuctionHandler) Launch(c echo.Context) error {
	return h.ownTransition(c, h.Svc.LaunchAuction)
}

// Close handles POST /v1/auctions/:id/close.  Closing twice returns the
// stored outcome with 200 both times.
func (h *AuctionHandler) Close(c echo.Context) error {
	return h.ownTransition(c, h.Svc.CloseAuction)
}

// Cancel handles POST /v1/auctions/:id/cancel.
func (h *AuctionHandler) Cancel(c echo.Context) error {
	return h.ownTransition(c, h.Svc.CancelAuction)
}

// ownTransition verifies the caller owns the auction, then runs the
// lifecycle transition.
func (h *AuctionHandler) ownTransition(c echo.Context, fn func(ctx context.Context, id uint64) (*model.Auction, error)) error {
	supplierID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	current, err := h.Svc.GetAuction(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	if current.SupplierID != supplierID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your auction"})
	}
	a, err := fn(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, auctionResponse(a))
}

// Get handles GET /v1/auctions/:id.
func (h *AuctionHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	a, err := h.Svc.GetAuction(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, auctionResponse(a))
}

// ListOpen handles GET /v1/auctions, the public marketplace browse.
func (h *AuctionHandler) ListOpen(c echo.Context) error {
	auctions, err := h.Auctions.ListOpen(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	out := make([]echo.Map, 0, len(auctions))
	for i := range auctions {
		out = append(out, auctionResponse(&auctions[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"auctions": out})
}

// ListMine handles GET /v1/auctions/mine for suppliers.
func (h *AuctionHandler) ListMine(c echo.Context) error {
	supplierID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	auctions, err := h.Auctions.ListBySupplier(c.Request().Context(), supplierID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	out := make([]echo.Map, 0, len(auctions))
	for i := range auctions {
		out = append(out, auctionResponse(&auctions[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"auctions": out})
}

func auctionResponse(a *model.Auction) echo.Map {
	resp := echo.Map{
		"id":                 a.ID,
		"number":             a.Number,
		"title":              a.Title,
		"description":        a.Description,
		"auction_type":       a.Type,
		"material_type":      a.MaterialType,
		"material_grade":     a.MaterialGrade,
		"quantity_total":     a.QuantityTotal,
		"quantity_remaining": a.QuantityRemaining,
		"starting_price":     a.StartingPrice,
		"bid_increment":      a.BidIncrement,
		"currency":           a.Currency,
		"status":             a.Status,
		"scheduled_start":    a.ScheduledStart,
		"scheduled_end":      a.ScheduledEnd,
		"supplier_id":        a.SupplierID,
	}
	if a.Status == model.StatusClosed {
		resp["winning_buyer_id"] = a.WinningBuyerID
		resp["final_price"] = a.FinalPrice
	}
	return resp
}
