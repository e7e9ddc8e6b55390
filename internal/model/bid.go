package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid is a single bid placement on an auction.  Bids are never deleted;
// withdrawal flips IsRetracted so the audit trail stays intact.  CreatedAt
// is assigned by the database at insert time and is the tie-break key for
// equal amounts.
type Bid struct {
	ID          uint64          // bids.id
	Reference   string          // bids.reference, UUID handed to clients
	AuctionID   uint64          // bids.auction_id
	BidderID    uint64          // bids.bidder_id
	Amount      decimal.Decimal // bids.amount, price per unit
	Currency    string          // bids.currency
	IsRetracted bool            // bids.is_retracted, soft withdrawal flag
	CreatedAt   time.Time       // bids.created_at, UTC
}
