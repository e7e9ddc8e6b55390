// Package ranking implements the pure ordering rules for auction bids.
// Everything in this package is deterministic and side-effect free: the
// caller supplies a snapshot of non-retracted bids and the functions
// compute ranks, the winner and admissibility thresholds from it.  All
// persistence and serialization concerns live in the service layer.
package ranking

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/orehub/metalx/internal/model"
)

// RankedBid pairs a bid with its 1-based rank in the current standings.
type RankedBid struct {
	Bid  model.Bid
	Rank int
}

// Better reports whether amount a beats amount b under the ordering of
// the given auction type.  Ascending types favour higher amounts,
// descending types (dutch, reverse) favour lower ones.  Equal amounts
// are not better; ties are resolved by submission time elsewhere.
func Better(a, b decimal.Decimal, t model.AuctionType) bool {
	if t.Descending() {
		return a.LessThan(b)
	}
	return a.GreaterThan(b)
}

// Rank orders a snapshot of bids into 1-based standings.  Retracted bids
// are skipped.  Ordering is by amount under the type's direction, with
// ties broken by earliest CreatedAt — the first bidder to commit at a
// price keeps the better rank.  The sort is stable so equal bids with
// equal timestamps keep their input order.
func Rank(bids []model.Bid, t model.AuctionType) []RankedBid {
	active := make([]model.Bid, 0, len(bids))
	for _, b := range bids {
		if !b.IsRetracted {
			active = append(active, b)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Amount.Equal(active[j].Amount) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return Better(active[i].Amount, active[j].Amount, t)
	})
	ranked := make([]RankedBid, len(active))
	for i, b := range active {
		ranked[i] = RankedBid{Bid: b, Rank: i + 1}
	}
	return ranked
}

// Winner returns the top-ranked bid of the snapshot, or ok=false when no
// active bids exist.
func Winner(bids []model.Bid, t model.AuctionType) (model.Bid, bool) {
	ranked := Rank(bids, t)
	if len(ranked) == 0 {
		return model.Bid{}, false
	}
	return ranked[0].Bid, true
}

// CandidateRank returns the rank a new bid of the given amount would
// occupy against the snapshot: the count of active bids strictly better
// than the candidate, plus one.  Existing equal amounts beat the
// candidate because they were committed earlier.
func CandidateRank(bids []model.Bid, amount decimal.Decimal, t model.AuctionType) int {
	rank := 1
	for _, b := range bids {
		if b.IsRetracted {
			continue
		}
		if Better(b.Amount, amount, t) || b.Amount.Equal(amount) {
			rank++
		}
	}
	return rank
}

// BestAmount returns the best active amount in the snapshot under the
// type's ordering, or ok=false when the snapshot holds no active bids.
func BestAmount(bids []model.Bid, t model.AuctionType) (decimal.Decimal, bool) {
	best := decimal.Zero
	found := false
	for _, b := range bids {
		if b.IsRetracted {
			continue
		}
		if !found || Better(b.Amount, best, t) {
			best = b.Amount
			found = true
		}
	}
	return best, found
}

// MinimumAdmissible computes the threshold a new bid must meet for the
// auction given the current best active amount (or no bids at all).  For
// ascending auctions the bid must reach best+increment (or
// starting+increment when the book is empty); for descending auctions
// the bid must come in at or below best-increment (or starting when the
// book is empty).  Sealed-bid auctions admit any positive amount, so the
// threshold is zero.
func MinimumAdmissible(a *model.Auction, bids []model.Bid) decimal.Decimal {
	if a.Type == model.AuctionTypeSealedBid {
		return decimal.Zero
	}
	best, ok := BestAmount(bids, a.Type)
	if a.Type.Descending() {
		if !ok {
			return a.StartingPrice
		}
		return best.Sub(a.BidIncrement)
	}
	if !ok {
		return a.StartingPrice.Add(a.BidIncrement)
	}
	return best.Add(a.BidIncrement)
}

// Admissible reports whether amount satisfies the auction's threshold.
// Non-positive amounts are never admissible.  For descending types the
// comparison direction inverts: the bid must be at or below the
// threshold.
func Admissible(a *model.Auction, bids []model.Bid, amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	if a.Type == model.AuctionTypeSealedBid {
		return true
	}
	threshold := MinimumAdmissible(a, bids)
	if a.Type.Descending() {
		return amount.LessThanOrEqual(threshold)
	}
	return amount.GreaterThanOrEqual(threshold)
}
