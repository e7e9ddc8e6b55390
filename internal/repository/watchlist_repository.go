package repository

import (
	"context"
	"database/sql"

	"github.com/orehub/metalx/internal/model"
)

// WatchlistRepo provides access to the watchlist table mapping buyers to
// the auctions they follow for notifications.
type WatchlistRepo struct {
	db *sql.DB
}

// NewWatchlistRepo returns a new WatchlistRepo bound to the provided database.
func NewWatchlistRepo(db *sql.DB) *WatchlistRepo { return &WatchlistRepo{db: db} }

// Add subscribes a buyer to an auction.  The insert is idempotent; a
// duplicate pair is silently absorbed by the unique key.
func (r *WatchlistRepo) Add(ctx context.Context, buyerID, auctionID uint64) error {
	const q = `INSERT INTO watchlist (buyer_id, auction_id) VALUES (?, ?)
	           ON DUPLICATE KEY UPDATE buyer_id = buyer_id`
	_, err := r.db.ExecContext(ctx, q, buyerID, auctionID)
	return err
}

// Remove unsubscribes a buyer from an auction.  Removing a pair that
// does not exist is not an error.
func (r *WatchlistRepo) Remove(ctx context.Context, buyerID, auctionID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM watchlist WHERE buyer_id = ? AND auction_id = ?`, buyerID, auctionID)
	return err
}

// WatcherIDs returns the buyer ids subscribed to an auction.
func (r *WatchlistRepo) WatcherIDs(ctx context.Context, auctionID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT buyer_id FROM watchlist WHERE auction_id = ?`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListByBuyer returns the auctions a buyer is watching, newest first.
func (r *WatchlistRepo) ListByBuyer(ctx context.Context, buyerID uint64) ([]model.WatchlistEntry, error) {
	const q = `SELECT id, buyer_id, auction_id, created_at FROM watchlist
	           WHERE buyer_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]model.WatchlistEntry, 0)
	for rows.Next() {
		var e model.WatchlistEntry
		if err := rows.Scan(&e.ID, &e.BuyerID, &e.AuctionID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
