package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orehub/metalx/internal/model"
)

// AuctionRepo provides data access to the auctions table and the
// auction_counters table used for sequential numbering.  All timestamps
// are stored and compared in UTC.
type AuctionRepo struct {
	db *sql.DB
}

// NewAuctionRepo returns a new AuctionRepo bound to the provided database.
func NewAuctionRepo(db *sql.DB) *AuctionRepo { return &AuctionRepo{db: db} }

const auctionColumns = `id, number, title, description, auction_type, material_type, material_grade,
	quantity_total, quantity_remaining, starting_price, bid_increment, currency, status,
	scheduled_start, scheduled_end, supplier_id, winning_buyer_id, final_price,
	verification_status, version, created_at, updated_at`

// auctionRowScanner matches both *sql.Row and *sql.Rows.
type auctionRowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row auctionRowScanner) (*model.Auction, error) {
	var a model.Auction
	var winner sql.NullInt64
	var finalPrice decimal.NullDecimal
	err := row.Scan(
		&a.ID, &a.Number, &a.Title, &a.Description, &a.Type, &a.MaterialType, &a.MaterialGrade,
		&a.QuantityTotal, &a.QuantityRemaining, &a.StartingPrice, &a.BidIncrement, &a.Currency, &a.Status,
		&a.ScheduledStart, &a.ScheduledEnd, &a.SupplierID, &winner, &finalPrice,
		&a.VerificationStatus, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if winner.Valid {
		w := uint64(winner.Int64)
		a.WinningBuyerID = &w
	}
	if finalPrice.Valid {
		fp := finalPrice.Decimal
		a.FinalPrice = &fp
	}
	return &a, nil
}

// NextNumberTx atomically allocates the next daily sequence number and
// formats it as AU-YYYYMMDD-NNN.  The counter row is upserted with
// LAST_INSERT_ID so concurrent allocations never observe the same value;
// uniqueness does not depend on a read-then-write cycle.  The caller
// must commit or roll back the transaction.
func (r *AuctionRepo) NextNumberTx(ctx context.Context, tx *sql.Tx, day time.Time) (string, error) {
	key := day.UTC().Format("20060102")
	const upsert = `INSERT INTO auction_counters (day, seq) VALUES (?, LAST_INSERT_ID(1))
	                ON DUPLICATE KEY UPDATE seq = LAST_INSERT_ID(seq + 1)`
	if _, err := tx.ExecContext(ctx, upsert, key); err != nil {
		return "", err
	}
	var seq uint64
	if err := tx.QueryRowContext(ctx, `SELECT LAST_INSERT_ID()`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("AU-%s-%03d", key, seq), nil
}

// CreateTx inserts a new auction within the provided transaction and
// populates the generated ID, timestamps and defaults by reading the row
// back.  Number must already be allocated via NextNumberTx.
func (r *AuctionRepo) CreateTx(ctx context.Context, tx *sql.Tx, a *model.Auction) error {
	const q = `INSERT INTO auctions
		(number, title, description, auction_type, material_type, material_grade,
		 quantity_total, quantity_remaining, starting_price, bid_increment, currency, status,
		 scheduled_start, scheduled_end, supplier_id, verification_status, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`
	result, err := tx.ExecContext(ctx, q,
		a.Number, a.Title, a.Description, a.Type, a.MaterialType, a.MaterialGrade,
		a.QuantityTotal, a.QuantityRemaining, a.StartingPrice, a.BidIncrement, a.Currency, a.Status,
		a.ScheduledStart.UTC().Format("2006-01-02 15:04:05"),
		a.ScheduledEnd.UTC().Format("2006-01-02 15:04:05"),
		a.SupplierID, a.VerificationStatus,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	created, err := scanAuction(tx.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, uint64(id)))
	if err != nil {
		return err
	}
	*a = *created
	return nil
}

// GetByID loads a single auction.  Returns ErrAuctionNotFound when the
// id is unknown.
func (r *AuctionRepo) GetByID(ctx context.Context, id uint64) (*model.Auction, error) {
	a, err := scanAuction(r.db.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetForUpdateTx loads an auction with a row lock so that concurrent
// bid commits and closures on the same auction serialize at the
// database.  Returns ErrAuctionNotFound when the id is unknown.
func (r *AuctionRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Auction, error) {
	a, err := scanAuction(tx.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// BumpVersionTx increments the optimistic-concurrency counter.  Every
// serialized write to the auction's bid stream goes through this.
func (r *AuctionRepo) BumpVersionTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx, `UPDATE auctions SET version = version + 1 WHERE id = ?`, id)
	return err
}

// UpdateStatusTx performs a conditional state transition.  The UPDATE is
// guarded on the expected current status; when no row changes the caller
// receives ErrInvalidTransition (or ErrAuctionNotFound when the id does
// not exist at all).
func (r *AuctionRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.AuctionStatus) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE auctions SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists uint64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM auctions WHERE id = ?`, id).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAuctionNotFound
			}
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// StampClosureTx records the closure outcome on an already-locked
// ACTIVE auction row: terminal status, winner and final price.  A nil
// winner/price is legal for the no-bids case.
func (r *AuctionRepo) StampClosureTx(ctx context.Context, tx *sql.Tx, id uint64, winningBuyerID *uint64, finalPrice *decimal.Decimal) error {
	const q = `UPDATE auctions SET status = ?, winning_buyer_id = ?, final_price = ? WHERE id = ?`
	var winner interface{}
	if winningBuyerID != nil {
		winner = *winningBuyerID
	}
	var price interface{}
	if finalPrice != nil {
		price = *finalPrice
	}
	_, err := tx.ExecContext(ctx, q, model.StatusClosed, winner, price, id)
	return err
}

// DueForClosure returns ACTIVE auctions whose scheduled_end falls at or
// before the given instant plus the lookahead window.  The monitor polls
// this; the lookahead exists so an end falling between two poll ticks is
// not missed.
func (r *AuctionRepo) DueForClosure(ctx context.Context, until time.Time) ([]model.Auction, error) {
	const q = `SELECT ` + auctionColumns + ` FROM auctions
	           WHERE status = ? AND scheduled_end <= ?
	           ORDER BY scheduled_end ASC`
	return r.listAuctions(ctx, q, model.StatusActive, until.UTC().Format("2006-01-02 15:04:05"))
}

// DueForLaunch returns DRAFT auctions whose scheduled_start has passed.
func (r *AuctionRepo) DueForLaunch(ctx context.Context, now time.Time) ([]model.Auction, error) {
	const q = `SELECT ` + auctionColumns + ` FROM auctions
	           WHERE status = ? AND scheduled_start <= ?
	           ORDER BY scheduled_start ASC`
	return r.listAuctions(ctx, q, model.StatusDraft, now.UTC().Format("2006-01-02 15:04:05"))
}

// ListOpen returns ACTIVE auctions ordered by soonest scheduled_end, for
// the public browse endpoint.
func (r *AuctionRepo) ListOpen(ctx context.Context) ([]model.Auction, error) {
	const q = `SELECT ` + auctionColumns + ` FROM auctions
	           WHERE status = ? ORDER BY scheduled_end ASC`
	return r.listAuctions(ctx, q, model.StatusActive)
}

// ListBySupplier returns all auctions created by the given supplier,
// newest first.
func (r *AuctionRepo) ListBySupplier(ctx context.Context, supplierID uint64) ([]model.Auction, error) {
	const q = `SELECT ` + auctionColumns + ` FROM auctions
	           WHERE supplier_id = ? ORDER BY created_at DESC`
	return r.listAuctions(ctx, q, supplierID)
}

func (r *AuctionRepo) listAuctions(ctx context.Context, query string, args ...interface{}) ([]model.Auction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	auctions := make([]model.Auction, 0)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return auctions, nil
}
