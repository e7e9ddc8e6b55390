package repository

import (
	"context"
	"database/sql"

	"github.com/orehub/metalx/internal/model"
)

// BidHistoryRepo provides access to the append-only bid_history table.
// There are deliberately no UPDATE or DELETE methods here: every
// ranking-affecting event produces exactly one new row and existing rows
// are immutable.  The table backs compliance and fraud review.
type BidHistoryRepo struct {
	db *sql.DB
}

// NewBidHistoryRepo returns a new BidHistoryRepo bound to the provided database.
func NewBidHistoryRepo(db *sql.DB) *BidHistoryRepo { return &BidHistoryRepo{db: db} }

// AppendTx inserts one or more audit rows in a single statement within
// the provided transaction.  Passing an empty slice has no effect and
// returns nil.
func (r *BidHistoryRepo) AppendTx(ctx context.Context, tx *sql.Tx, entries []model.BidHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	query := `INSERT INTO bid_history
		(auction_id, bid_id, buyer_id, bid_price_per_unit, total_bid_amount, status_change, rank_at_time, ip_address, user_agent) VALUES `
	args := make([]interface{}, 0, len(entries)*9)
	for i, e := range entries {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
		var rank interface{}
		if e.RankAtTime != nil {
			rank = *e.RankAtTime
		}
		args = append(args, e.AuctionID, e.BidID, e.BuyerID, e.PricePerUnit, e.TotalAmount,
			e.StatusChange, rank, e.IPAddress, e.UserAgent)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ListByAuction returns the full audit trail for an auction ordered by
// timestamp ascending, with insertion order as the secondary key so rows
// created in the same second keep a deterministic order.
func (r *BidHistoryRepo) ListByAuction(ctx context.Context, auctionID uint64) ([]model.BidHistoryEntry, error) {
	const q = `SELECT id, auction_id, bid_id, buyer_id, bid_price_per_unit, total_bid_amount,
	                  status_change, rank_at_time, ip_address, user_agent, created_at
	           FROM bid_history
	           WHERE auction_id = ?
	           ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, q, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]model.BidHistoryEntry, 0)
	for rows.Next() {
		var e model.BidHistoryEntry
		var rank sql.NullInt64
		if err := rows.Scan(&e.ID, &e.AuctionID, &e.BidID, &e.BuyerID, &e.PricePerUnit,
			&e.TotalAmount, &e.StatusChange, &rank, &e.IPAddress, &e.UserAgent, &e.Timestamp); err != nil {
			return nil, err
		}
		if rank.Valid {
			v := int(rank.Int64)
			e.RankAtTime = &v
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
