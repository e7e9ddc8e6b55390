package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orehub/metalx/internal/model"
	"github.com/orehub/metalx/internal/ranking"
)

// Store composes the individual repositories into the transactional bid
// ledger consumed by the auction service.  All multi-table mutations run
// inside a single transaction here so the service never touches *sql.Tx.
//
// Serialization contract: every write to an auction's bid stream first
// takes the auction row lock (SELECT ... FOR UPDATE) and checks the
// version column against the caller's snapshot.  Two concurrent commits
// against the same stale snapshot therefore cannot both succeed; the
// loser gets ErrStaleSnapshot and retries against a fresh read.
type Store struct {
	db        *sql.DB
	Auctions  *AuctionRepo
	Bids      *BidRepo
	History   *BidHistoryRepo
	Watchlist *WatchlistRepo
	Users     *UserRepo
}

// NewStore builds a Store and its repositories over one database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:        db,
		Auctions:  NewAuctionRepo(db),
		Bids:      NewBidRepo(db),
		History:   NewBidHistoryRepo(db),
		Watchlist: NewWatchlistRepo(db),
		Users:     NewUserRepo(db),
	}
}

// withTx runs fn inside a transaction, rolling back unless fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// CreateAuction allocates the next sequential number and inserts the
// auction atomically.  The counter upsert serializes at the database, so
// concurrent creations on the same day always receive distinct numbers.
func (s *Store) CreateAuction(ctx context.Context, a *model.Auction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		number, err := s.Auctions.NextNumberTx(ctx, tx, time.Now().UTC())
		if err != nil {
			return err
		}
		a.Number = number
		return s.Auctions.CreateTx(ctx, tx, a)
	})
}

// GetAuction loads a single auction.
func (s *Store) GetAuction(ctx context.Context, id uint64) (*model.Auction, error) {
	return s.Auctions.GetByID(ctx, id)
}

// ActiveBids returns the current non-retracted bid snapshot.
func (s *Store) ActiveBids(ctx context.Context, auctionID uint64) ([]model.Bid, error) {
	return s.Bids.ActiveByAuction(ctx, auctionID)
}

// TransitionStatus performs a guarded state transition and returns the
// refreshed auction.
func (s *Store) TransitionStatus(ctx context.Context, id uint64, from, to model.AuctionStatus) (*model.Auction, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return s.Auctions.UpdateStatusTx(ctx, tx, id, from, to)
	})
	if err != nil {
		return nil, err
	}
	return s.Auctions.GetByID(ctx, id)
}

// CommitBid serializes a bid placement: lock the auction row, verify the
// caller's snapshot version and that the auction is still ACTIVE, insert
// the bid, append the placed and outbid audit rows, bump the version.
// The placed entry's BidID is filled in once the insert assigns it.
func (s *Store) CommitBid(ctx context.Context, auctionID, expectedVersion uint64, b *model.Bid, placed model.BidHistoryEntry, outbid []model.BidHistoryEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.Auctions.GetForUpdateTx(ctx, tx, auctionID)
		if err != nil {
			return err
		}
		if locked.Version != expectedVersion {
			return ErrStaleSnapshot
		}
		if locked.Status != model.StatusActive {
			return ErrInvalidTransition
		}
		if err := s.Bids.InsertTx(ctx, tx, b); err != nil {
			return err
		}
		placed.BidID = b.ID
		entries := append([]model.BidHistoryEntry{placed}, outbid...)
		if err := s.History.AppendTx(ctx, tx, entries); err != nil {
			return err
		}
		return s.Auctions.BumpVersionTx(ctx, tx, auctionID)
	})
}

// CloseAuction stamps the closure outcome under the auction row lock.
// The winner is determined inside the transaction, over the bid set as
// it stands once the row lock is held, so a bid that committed a moment
// before the close can never be missed.  When the auction is already
// terminal the stored record comes back with ErrAlreadyClosed so the
// caller can treat the close as idempotent without re-running side
// effects.  Zero bids close legally with a nil winner and price.
func (s *Store) CloseAuction(ctx context.Context, auctionID uint64) (*model.Auction, error) {
	var closed *model.Auction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.Auctions.GetForUpdateTx(ctx, tx, auctionID)
		if err != nil {
			return err
		}
		if locked.Status.Terminal() {
			closed = locked
			return ErrAlreadyClosed
		}
		if locked.Status != model.StatusActive {
			return ErrInvalidTransition
		}
		bids, err := s.Bids.ActiveByAuctionTx(ctx, tx, auctionID)
		if err != nil {
			return err
		}
		var winningBuyerID *uint64
		var finalPrice *decimal.Decimal
		if winner, ok := ranking.Winner(bids, locked.Type); ok {
			winningBuyerID = &winner.BidderID
			finalPrice = &winner.Amount
			topRank := 1
			wonEntry := model.BidHistoryEntry{
				AuctionID:    auctionID,
				BidID:        winner.ID,
				BuyerID:      winner.BidderID,
				PricePerUnit: winner.Amount,
				TotalAmount:  winner.Amount.Mul(decimal.NewFromInt(int64(locked.QuantityRemaining))),
				StatusChange: model.BidWon,
				RankAtTime:   &topRank,
			}
			if err := s.History.AppendTx(ctx, tx, []model.BidHistoryEntry{wonEntry}); err != nil {
				return err
			}
		}
		if err := s.Auctions.StampClosureTx(ctx, tx, auctionID, winningBuyerID, finalPrice); err != nil {
			return err
		}
		if err := s.Auctions.BumpVersionTx(ctx, tx, auctionID); err != nil {
			return err
		}
		closed, err = s.Auctions.GetForUpdateTx(ctx, tx, auctionID)
		return err
	})
	if err != nil {
		return closed, err
	}
	return closed, nil
}

// RetractBid soft-withdraws a buyer's bid under the auction row lock and
// records the withdrawal in the audit trail.  Retracting an already
// retracted bid is a no-op returning the stored record.
func (s *Store) RetractBid(ctx context.Context, auctionID uint64, reference string, bidderID uint64, entry model.BidHistoryEntry) (*model.Bid, error) {
	var bid *model.Bid
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.Auctions.GetForUpdateTx(ctx, tx, auctionID)
		if err != nil {
			return err
		}
		b, err := s.Bids.GetByReferenceTx(ctx, tx, auctionID, reference)
		if err != nil {
			return err
		}
		if b.BidderID != bidderID {
			return ErrForbidden
		}
		bid = b
		if b.IsRetracted {
			return nil
		}
		if err := s.Bids.MarkRetractedTx(ctx, tx, b.ID); err != nil {
			return err
		}
		b.IsRetracted = true
		entry.BidID = b.ID
		entry.BuyerID = b.BidderID
		entry.PricePerUnit = b.Amount
		entry.TotalAmount = b.Amount.Mul(decimal.NewFromInt(int64(locked.QuantityRemaining)))
		if err := s.History.AppendTx(ctx, tx, []model.BidHistoryEntry{entry}); err != nil {
			return err
		}
		return s.Auctions.BumpVersionTx(ctx, tx, auctionID)
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

// BidHistory returns the audit trail ordered by timestamp ascending.
func (s *Store) BidHistory(ctx context.Context, auctionID uint64) ([]model.BidHistoryEntry, error) {
	return s.History.ListByAuction(ctx, auctionID)
}

// DueForClosure returns ACTIVE auctions ending at or before the instant.
func (s *Store) DueForClosure(ctx context.Context, until time.Time) ([]model.Auction, error) {
	return s.Auctions.DueForClosure(ctx, until)
}

// DueForLaunch returns DRAFT auctions whose start has passed.
func (s *Store) DueForLaunch(ctx context.Context, now time.Time) ([]model.Auction, error) {
	return s.Auctions.DueForLaunch(ctx, now)
}

// Watch subscribes a buyer to an auction.
func (s *Store) Watch(ctx context.Context, buyerID, auctionID uint64) error {
	return s.Watchlist.Add(ctx, buyerID, auctionID)
}

// Unwatch removes a buyer's subscription.
func (s *Store) Unwatch(ctx context.Context, buyerID, auctionID uint64) error {
	return s.Watchlist.Remove(ctx, buyerID, auctionID)
}

// ParticipantEmails resolves the notification targets for an auction:
// every distinct active bidder plus every watcher, keyed by buyer id.
func (s *Store) ParticipantEmails(ctx context.Context, auctionID uint64) (map[uint64]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT bidder_id FROM bids WHERE auction_id = ?`, auctionID)
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
	watchers, err := s.Watchlist.WatcherIDs(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, id := range watchers {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
			seen[id] = struct{}{}
		}
	}
	return s.Users.EmailsByIDs(ctx, ids)
}
