// Package router wires URL paths to handlers and applies the auth and
// rate-limit middleware per route group.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/orehub/metalx/internal/config"
	"github.com/orehub/metalx/internal/handler"
	"github.com/orehub/metalx/internal/middleware"
	"github.com/orehub/metalx/internal/model"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Auctions *handler.AuctionHandler
	Bids     *handler.BidHandler
	Live     *handler.LiveHandler
}

// Register mounts every route.  Public browse endpoints carry no auth;
// lifecycle endpoints require the SUPPLIER role and bidding endpoints
// the BUYER role.
func Register(e *echo.Echo, h Handlers, cfg config.Config, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	// Authentication
	auth := e.Group("/v1/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)

	// Public marketplace browse
	e.GET("/v1/auctions", h.Auctions.ListOpen)
	e.GET("/v1/auctions/:id", h.Auctions.Get)
	e.GET("/v1/auctions/:id/ranking", h.Bids.Ranking)
	e.GET("/v1/auctions/:id/history", h.Bids.History)

	// Live event stream (websocket)
	e.GET("/v1/live", h.Live.Stream)
	e.GET("/v1/auctions/:id/live", h.Live.Stream)

	// Authenticated routes
	v1 := e.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	v1.GET("/me", h.Auth.Me)

	// Supplier lifecycle
	supplier := v1.Group("", middleware.RequireRole(model.RoleSupplier))
	supplier.POST("/auctions", h.Auctions.Create)
	supplier.GET("/auctions/mine", h.Auctions.ListMine)
	supplier.POST("/auctions/:id/launch", h.Auctions.Launch)
	supplier.POST("/auctions/:id/close", h.Auctions.Close)
	supplier.POST("/auctions/:id/cancel", h.Auctions.Cancel)

	// Buyer bidding, rate limited per user
	buyer := v1.Group("", middleware.RequireRole(model.RoleBuyer))
	buyer.POST("/auctions/:id/bids", h.Bids.Place, middleware.RateLimit(cfg.RateLimit, rdb))
	buyer.DELETE("/auctions/:id/bids/:ref", h.Bids.Retract)
	buyer.POST("/auctions/:id/watch", h.Bids.Watch)
	buyer.DELETE("/auctions/:id/watch", h.Bids.Unwatch)
	buyer.GET("/watchlist", h.Bids.MyWatchlist)
}
