package model

import "time"

// WatchlistEntry records a buyer's subscription to an auction for
// notifications.  The (BuyerID, AuctionID) pair is unique; there is no
// ordering invariant.
type WatchlistEntry struct {
	ID        uint64    // watchlist.id
	BuyerID   uint64    // watchlist.buyer_id
	AuctionID uint64    // watchlist.auction_id
	CreatedAt time.Time // watchlist.created_at
}
