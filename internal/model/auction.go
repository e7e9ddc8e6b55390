package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionType enumerates the supported bidding formats.  The type decides
// both the ordering direction of the ranking and the admissibility rule
// applied to incoming bids.
type AuctionType string

const (
	AuctionTypeEnglish   AuctionType = "english"    // ascending, open outcry
	AuctionTypeDutch     AuctionType = "dutch"      // descending
	AuctionTypeSealedBid AuctionType = "sealed_bid" // standings hidden until closure
	AuctionTypeReverse   AuctionType = "reverse"    // buyers compete downwards
)

// Valid reports whether t is one of the known auction types.
func (t AuctionType) Valid() bool {
	switch t {
	case AuctionTypeEnglish, AuctionTypeDutch, AuctionTypeSealedBid, AuctionTypeReverse:
		return true
	}
	return false
}

// Descending reports whether lower amounts rank better for this type.
func (t AuctionType) Descending() bool {
	return t == AuctionTypeDutch || t == AuctionTypeReverse
}

// AuctionStatus is the lifecycle state of an auction.  CLOSED and
// CANCELLED are terminal; no transition leaves them.
type AuctionStatus string

const (
	StatusDraft     AuctionStatus = "DRAFT"
	StatusActive    AuctionStatus = "ACTIVE"
	StatusClosed    AuctionStatus = "CLOSED"
	StatusCancelled AuctionStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s AuctionStatus) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// CanTransitionTo reports whether the state machine allows moving from s
// to next.  Valid edges are DRAFT->ACTIVE, ACTIVE->CLOSED and
// ACTIVE->CANCELLED.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusActive
	case StatusActive:
		return next == StatusClosed || next == StatusCancelled
	}
	return false
}

// Auction represents one sale event for a lot of material.  The Number
// field carries the human-readable sequential reference in the form
// AU-YYYYMMDD-NNN; it is unique and monotonic per day and is a persisted
// external contract for any client parsing it.
//
// Version increments on every serialized write to the auction's bid
// stream and is the optimistic-concurrency guard for bid placement.
type Auction struct {
	ID                 uint64          // auctions.id
	Number             string          // auctions.number, e.g. AU-20260901-014
	Title              string          // auctions.title
	Description        string          // auctions.description
	Type               AuctionType     // auctions.auction_type
	MaterialType       string          // auctions.material_type, e.g. "copper"
	MaterialGrade      string          // auctions.material_grade, e.g. "Grade A"
	QuantityTotal      uint32          // auctions.quantity_total, metric tonnes
	QuantityRemaining  uint32          // auctions.quantity_remaining, <= QuantityTotal
	StartingPrice      decimal.Decimal // auctions.starting_price, per unit
	BidIncrement       decimal.Decimal // auctions.bid_increment
	Currency           string          // auctions.currency, ISO 4217
	Status             AuctionStatus   // auctions.status
	ScheduledStart     time.Time       // auctions.scheduled_start, UTC
	ScheduledEnd       time.Time       // auctions.scheduled_end, UTC, > ScheduledStart
	SupplierID         uint64          // auctions.supplier_id, owner of the lot
	WinningBuyerID     *uint64         // auctions.winning_buyer_id, set only at closure
	FinalPrice         *decimal.Decimal // auctions.final_price, set only at closure
	VerificationStatus string          // auctions.verification_status, side attribute
	Version            uint64          // auctions.version, bumped on every bid commit
	CreatedAt          time.Time       // auctions.created_at
	UpdatedAt          time.Time       // auctions.updated_at
}

// InBiddingWindow reports whether now falls inside [ScheduledStart,
// ScheduledEnd).  Bids arriving exactly at ScheduledEnd are rejected.
func (a *Auction) InBiddingWindow(now time.Time) bool {
	return !now.Before(a.ScheduledStart) && now.Before(a.ScheduledEnd)
}
