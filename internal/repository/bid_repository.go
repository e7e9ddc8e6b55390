package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/orehub/metalx/internal/model"
)

// BidRepo provides data access to the bids table.  Bids are append-only
// apart from the is_retracted flag; physical deletes are never issued so
// the audit trail stays complete.
type BidRepo struct {
	db *sql.DB
}

// NewBidRepo returns a new BidRepo bound to the provided database.
func NewBidRepo(db *sql.DB) *BidRepo { return &BidRepo{db: db} }

const bidColumns = `id, reference, auction_id, bidder_id, amount, currency, is_retracted, created_at`

func scanBid(row auctionRowScanner) (*model.Bid, error) {
	var b model.Bid
	err := row.Scan(&b.ID, &b.Reference, &b.AuctionID, &b.BidderID,
		&b.Amount, &b.Currency, &b.IsRetracted, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// InsertTx persists a new bid within the provided transaction and reads
// the row back so the database-assigned id and created_at (the tie-break
// key) are populated on the passed record.
func (r *BidRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Bid) error {
	const q = `INSERT INTO bids (reference, auction_id, bidder_id, amount, currency) VALUES (?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, b.Reference, b.AuctionID, b.BidderID, b.Amount, b.Currency)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	inserted, err := scanBid(tx.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE id = ?`, uint64(id)))
	if err != nil {
		return err
	}
	*b = *inserted
	return nil
}

// ActiveByAuction returns all non-retracted bids for an auction in
// placement order.  This is the ranking snapshot.
func (r *BidRepo) ActiveByAuction(ctx context.Context, auctionID uint64) ([]model.Bid, error) {
	return r.list(ctx, r.db.QueryContext, auctionID)
}

// ActiveByAuctionTx is ActiveByAuction inside an existing transaction,
// used when the snapshot must be consistent with a held row lock.
func (r *BidRepo) ActiveByAuctionTx(ctx context.Context, tx *sql.Tx, auctionID uint64) ([]model.Bid, error) {
	return r.list(ctx, tx.QueryContext, auctionID)
}

type queryFunc func(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)

func (r *BidRepo) list(ctx context.Context, query queryFunc, auctionID uint64) ([]model.Bid, error) {
	const q = `SELECT ` + bidColumns + ` FROM bids
	           WHERE auction_id = ? AND is_retracted = FALSE
	           ORDER BY created_at ASC, id ASC`
	rows, err := query(ctx, q, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bids := make([]model.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bids, nil
}

// GetByReferenceTx loads a bid by its public UUID reference with a row
// lock.  Returns ErrBidNotFound when the reference is unknown or belongs
// to a different auction.
func (r *BidRepo) GetByReferenceTx(ctx context.Context, tx *sql.Tx, auctionID uint64, reference string) (*model.Bid, error) {
	b, err := scanBid(tx.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = ? AND reference = ? FOR UPDATE`,
		auctionID, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBidNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// MarkRetractedTx soft-withdraws a bid.  The row survives for the audit
// trail; only the flag flips.
func (r *BidRepo) MarkRetractedTx(ctx context.Context, tx *sql.Tx, bidID uint64) error {
	_, err := tx.ExecContext(ctx, `UPDATE bids SET is_retracted = TRUE WHERE id = ?`, bidID)
	return err
}
