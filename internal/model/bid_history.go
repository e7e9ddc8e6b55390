package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidStatusChange enumerates the events recorded in the bid audit trail.
type BidStatusChange string

const (
	BidPlaced    BidStatusChange = "placed"
	BidRevised   BidStatusChange = "revised"
	BidOutbid    BidStatusChange = "outbid"
	BidWithdrawn BidStatusChange = "withdrawn"
	BidWon       BidStatusChange = "won"
)

// BidHistoryEntry is one append-only audit row.  Rows are never updated
// or deleted; every ranking-affecting event produces exactly one new row.
// This table is the compliance and fraud-detection trail, so it also
// captures the request origin (IP address and user agent) of the action
// that triggered the event.
type BidHistoryEntry struct {
	ID             uint64          // bid_history.id
	AuctionID      uint64          // bid_history.auction_id
	BidID          uint64          // bid_history.bid_id
	BuyerID        uint64          // bid_history.buyer_id
	PricePerUnit   decimal.Decimal // bid_history.bid_price_per_unit
	TotalAmount    decimal.Decimal // bid_history.total_bid_amount
	StatusChange   BidStatusChange // bid_history.status_change
	RankAtTime     *int            // bid_history.rank_at_time, nil when not computed
	IPAddress      string          // bid_history.ip_address
	UserAgent      string          // bid_history.user_agent
	Timestamp      time.Time       // bid_history.created_at, UTC
}
