// Package notify implements the notification fan-out: live broadcast of
// auction events to connected watchers and best-effort queued emails to
// participants.  Everything here is fire-and-forget from the caller's
// point of view — a failed notification is logged and swallowed so the
// auction's authoritative state transition never depends on delivery.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event types delivered to live subscribers.
const (
	EventNewBid        = "new_bid"
	EventAuctionUpdate = "auction_update"
	EventAuctionClosed = "auction_closed"
)

// ChannelGlobal carries every auction event for clients watching the
// whole marketplace.
const ChannelGlobal = "auctions"

// ChannelAuction returns the per-auction channel name.
func ChannelAuction(auctionID uint64) string {
	return fmt.Sprintf("auction:%d", auctionID)
}

// Event is the structured payload published to watchers.  Delivery is
// best-effort and at-most-once; there is no replay for clients that
// connect after an event was published.
type Event struct {
	Type      string      `json:"type"`
	AuctionID uint64      `json:"auction_id"`
	Number    string      `json:"auction_number"`
	Data      interface{} `json:"data,omitempty"`
	At        string      `json:"at"`
}

// Broadcaster publishes events to a channel.  The Redis implementation
// is used in production; tests substitute an in-memory fake.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, event Event) error
}

// RedisBroadcaster fans events out over Redis pub/sub.  Subscribers are
// whatever processes hold a SUBSCRIBE on the channel — in this service,
// the websocket bridge in the handler layer.
type RedisBroadcaster struct {
	client *redis.Client
}

// NewRedisBroadcaster wraps an existing Redis client.
func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

// Publish marshals the event and publishes it.  A nil client (Redis
// unavailable at startup) disables broadcasting silently; the auction
// core keeps working without live updates.
func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, event Event) error {
	if b.client == nil {
		return nil
	}
	if event.At == "" {
		event.At = time.Now().UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, body).Err()
}

// Subscribe opens a pub/sub subscription on the given channels.  The
// caller owns the returned subscription and must close it.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	if b.client == nil {
		return nil
	}
	return b.client.Subscribe(ctx, channels...)
}
