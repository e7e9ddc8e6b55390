package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/orehub/metalx/internal/model"
	"github.com/orehub/metalx/internal/repository"
	"github.com/orehub/metalx/internal/service"
)

// BidHandler exposes bidding, the audit trail, the standings and the
// buyer's watchlist.
type BidHandler struct {
	Svc       *service.AuctionService
	Watchlist *repository.WatchlistRepo
}

func NewBidHandler(svc *service.AuctionService, watchlist *repository.WatchlistRepo) *BidHandler {
	if svc == nil || watchlist == nil {
		panic("nil dependency passed to NewBidHandler")
	}
	return &BidHandler{Svc: svc, Watchlist: watchlist}
}

func bidContext(c echo.Context) service.BidContext {
	return service.BidContext{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

// Place handles POST /v1/auctions/:id/bids for buyers.
func (h *BidHandler) Place(c echo.Context) error {
	buyerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	auctionID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	var body struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	a, err := h.Svc.GetAuction(c.Request().Context(), auctionID)
	if err != nil {
		return serviceError(c, err)
	}
	bid, rank, err := h.Svc.PlaceBid(c.Request().Context(), auctionID, buyerID, body.Amount, bidContext(c))
	if err != nil {
		return serviceError(c, err)
	}
	resp := echo.Map{
		"bid_reference": bid.Reference,
		"auction_id":    bid.AuctionID,
		"amount":        bid.Amount,
		"currency":      bid.Currency,
	}
	// Sealed-bid standings stay hidden until the auction closes.
	if a.Type != model.AuctionTypeSealedBid {
		resp["rank"] = rank
	}
	return c.JSON(http.StatusCreated, resp)
}

// Retract handles DELETE /v1/auctions/:id/bids/:ref.
func (h *BidHandler) Retract(c echo.Context) error {
	buyerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	auctionID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	ref := c.Param("ref")
	if ref == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid bid reference"})
	}
	bid, err := h.Svc.RetractBid(c.Request().Context(), auctionID, buyerID, ref, bidContext(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"bid_reference": bid.Reference,
		"is_retracted":  bid.IsRetracted,
	})
}

// History handles GET /v1/auctions/:id/history: the append-only audit
// trail, oldest first.
func (h *BidHandler) History(c echo.Context) error {
	auctionID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	entries, err := h.Svc.GetBidHistory(c.Request().Context(), auctionID)
	if err != nil {
		return serviceError(c, err)
	}
	out := make([]echo.Map, 0, len(entries))
	for _, e := range entries {
		item := echo.Map{
			"buyer_id":       e.BuyerID,
			"price_per_unit": e.PricePerUnit,
			"total_amount":   e.TotalAmount,
			"status_change":  e.StatusChange,
			"timestamp":      e.Timestamp,
		}
		if e.RankAtTime != nil {
			item["rank_at_time"] = *e.RankAtTime
		}
		out = append(out, item)
	}
	return c.JSON(http.StatusOK, echo.Map{"auction_id": auctionID, "history": out})
}

// Ranking handles GET /v1/auctions/:id/ranking.
func (h *BidHandler) Ranking(c echo.Context) error {
	auctionID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	standings, err := h.Svc.GetBidRanking(c.Request().Context(), auctionID)
	if err != nil {
		return serviceError(c, err)
	}
	if standings.Sealed {
		return c.JSON(http.StatusOK, echo.Map{
			"auction_id": standings.AuctionID,
			"sealed":     true,
			"bid_count":  standings.BidCount,
		})
	}
	out := make([]echo.Map, 0, len(standings.Bids))
	for _, rb := range standings.Bids {
		out = append(out, echo.Map{
			"rank":          rb.Rank,
			"bid_reference": rb.Bid.Reference,
			"buyer_id":      rb.Bid.BidderID,
			"amount":        rb.Bid.Amount,
			"placed_at":     rb.Bid.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"auction_id": standings.AuctionID,
		"bid_count":  standings.BidCount,
		"bids":       out,
	})
}

// MyWatchlist handles GET /v1/watchlist for buyers.
func (h *BidHandler) MyWatchlist(c echo.Context) error {
	buyerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	entries, err := h.Watchlist.ListByBuyer(c.Request().Context(), buyerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	out := make([]echo.Map, 0, len(entries))
	for _, e := range entries {
		out = append(out, echo.Map{
			"auction_id": e.AuctionID,
			"watched_at": e.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"watchlist": out})
}

// Watch handles POST /v1/auctions/:id/watch.
func (h *BidHandler) Watch(c echo.Context) error {
	return h.watchOp(c, h.Svc.Watch)
}

// Unwatch handles DELETE /v1/auctions/:id/watch.
func (h *BidHandler) Unwatch(c echo.Context) error {
	return h.watchOp(c, h.Svc.Unwatch)
}

func (h *BidHandler) watchOp(c echo.Context, fn func(ctx context.Context, buyerID, auctionID uint64) error) error {
	buyerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	auctionID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	if err := fn(c.Request().Context(), buyerID, auctionID); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
