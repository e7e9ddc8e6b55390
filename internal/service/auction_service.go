package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/orehub/metalx/internal/model"
	"github.com/orehub/metalx/internal/notify"
	"github.com/orehub/metalx/internal/ranking"
	"github.com/orehub/metalx/internal/repository"
	"github.com/orehub/metalx/internal/utils"
)

// Ledger is the transactional bid ledger the service writes through.
// The MySQL implementation is repository.Store; tests substitute an
// in-memory fake.  All serialization guarantees (row lock + version
// check on bid commits) live behind this interface.
type Ledger interface {
	CreateAuction(ctx context.Context, a *model.Auction) error
	GetAuction(ctx context.Context, id uint64) (*model.Auction, error)
	ActiveBids(ctx context.Context, auctionID uint64) ([]model.Bid, error)
	TransitionStatus(ctx context.Context, id uint64, from, to model.AuctionStatus) (*model.Auction, error)
	CommitBid(ctx context.Context, auctionID, expectedVersion uint64, b *model.Bid, placed model.BidHistoryEntry, outbid []model.BidHistoryEntry) error
	CloseAuction(ctx context.Context, auctionID uint64) (*model.Auction, error)
	RetractBid(ctx context.Context, auctionID uint64, reference string, bidderID uint64, entry model.BidHistoryEntry) (*model.Bid, error)
	BidHistory(ctx context.Context, auctionID uint64) ([]model.BidHistoryEntry, error)
	DueForClosure(ctx context.Context, until time.Time) ([]model.Auction, error)
	DueForLaunch(ctx context.Context, now time.Time) ([]model.Auction, error)
	Watch(ctx context.Context, buyerID, auctionID uint64) error
	Unwatch(ctx context.Context, buyerID, auctionID uint64) error
	ParticipantEmails(ctx context.Context, auctionID uint64) (map[uint64]string, error)
}

// Events is the notification fan-out.  Implementations must be
// fire-and-forget: never block, never return errors to the caller.
type Events interface {
	AuctionLaunched(a *model.Auction, emails map[uint64]string)
	BidPlaced(a *model.Auction, bid *model.Bid, rank int, displaced []notify.Displaced, emails map[uint64]string)
	AuctionClosed(a *model.Auction, emails map[uint64]string)
	AuctionUpdated(a *model.Auction)
}

// Clock abstracts time so the monitor and service can be tested without
// real delays.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// AuctionService orchestrates auction lifecycle and bidding.  It is the
// single writer for every auction lifecycle event; the monitor and the
// HTTP layer both go through it.
type AuctionService struct {
	ledger Ledger
	events Events
	clock  Clock
}

// NewAuctionService wires the orchestrator.  clock may be nil, in which
// case the system clock is used.
func NewAuctionService(ledger Ledger, events Events, clock Clock) *AuctionService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AuctionService{ledger: ledger, events: events, clock: clock}
}

// CreateAuctionInput carries the fields for a new auction listing.
type CreateAuctionInput struct {
	Title          string
	Description    string
	Type           model.AuctionType
	MaterialType   string
	MaterialGrade  string
	QuantityTotal  uint32
	StartingPrice  decimal.Decimal
	BidIncrement   decimal.Decimal
	Currency       string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	SupplierID     uint64
	Status         model.AuctionStatus // optional; defaults to DRAFT
}

func (in *CreateAuctionInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", ErrValidation)
	case !in.Type.Valid():
		return fmt.Errorf("%w: unknown auction type %q", ErrValidation, in.Type)
	case strings.TrimSpace(in.MaterialType) == "":
		return fmt.Errorf("%w: material type is required", ErrValidation)
	case in.QuantityTotal == 0:
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	case !in.StartingPrice.IsPositive():
		return fmt.Errorf("%w: starting price must be positive", ErrValidation)
	case in.BidIncrement.IsNegative():
		return fmt.Errorf("%w: bid increment must not be negative", ErrValidation)
	case in.Type != model.AuctionTypeSealedBid && !in.BidIncrement.IsPositive():
		return fmt.Errorf("%w: bid increment must be positive", ErrValidation)
	case len(in.Currency) != 3:
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	case !in.ScheduledEnd.After(in.ScheduledStart):
		return fmt.Errorf("%w: scheduled end must be after scheduled start", ErrValidation)
	case in.SupplierID == 0:
		return fmt.Errorf("%w: supplier id is required", ErrValidation)
	}
	if in.Status != "" && in.Status != model.StatusDraft && in.Status != model.StatusActive {
		return fmt.Errorf("%w: initial status must be DRAFT or ACTIVE", ErrValidation)
	}
	return nil
}

// CreateAuction validates the input, allocates the sequential auction
// number and persists the listing.  Numbers stay unique under
// concurrent creation because allocation is an atomic counter upsert in
// the ledger, never a read-then-write.
func (s *AuctionService) CreateAuction(ctx context.Context, in CreateAuctionInput) (*model.Auction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = model.StatusDraft
	}
	a := &model.Auction{
		Title:              strings.TrimSpace(in.Title),
		Description:        in.Description,
		Type:               in.Type,
		MaterialType:       in.MaterialType,
		MaterialGrade:      in.MaterialGrade,
		QuantityTotal:      in.QuantityTotal,
		QuantityRemaining:  in.QuantityTotal,
		StartingPrice:      in.StartingPrice,
		BidIncrement:       in.BidIncrement,
		Currency:           strings.ToUpper(in.Currency),
		Status:             status,
		ScheduledStart:     in.ScheduledStart.UTC(),
		ScheduledEnd:       in.ScheduledEnd.UTC(),
		SupplierID:         in.SupplierID,
		VerificationStatus: "pending",
	}
	if err := s.ledger.CreateAuction(ctx, a); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}
	return a, nil
}

// LaunchAuction runs the DRAFT -> ACTIVE transition and notifies
// watchers.  Fails with ErrNotFound for an unknown id and
// ErrInvalidState when the auction is not in DRAFT.
func (s *AuctionService) LaunchAuction(ctx context.Context, id uint64) (*model.Auction, error) {
	a, err := s.ledger.TransitionStatus(ctx, id, model.StatusDraft, model.StatusActive)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	s.events.AuctionLaunched(a, s.participantEmails(ctx, id))
	return a, nil
}

// CancelAuction runs the ACTIVE -> CANCELLED transition, the
// administrative escape hatch.  CANCELLED is terminal and disjoint from
// CLOSED: no winner is ever stamped.
func (s *AuctionService) CancelAuction(ctx context.Context, id uint64) (*model.Auction, error) {
	a, err := s.ledger.TransitionStatus(ctx, id, model.StatusActive, model.StatusCancelled)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	s.events.AuctionUpdated(a)
	return a, nil
}

// BidContext carries the request origin recorded in the audit trail.
type BidContext struct {
	IPAddress string
	UserAgent string
}

// PlaceBid validates admissibility against the current snapshot,
// computes the candidate's rank, and commits the bid together with its
// audit rows in one serialized ledger write.  If the snapshot went
// stale between read and commit the whole evaluation reruns once
// against a fresh snapshot; losing the race twice returns
// ErrContention.
//
// Two concurrent bids on the same auction can therefore never both
// believe they hold the top rank: the ledger commit is guarded by the
// auction row lock and version counter.
func (s *AuctionService) PlaceBid(ctx context.Context, auctionID, bidderID uint64, amount decimal.Decimal, bctx BidContext) (*model.Bid, int, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		bid, rank, err := s.placeBidOnce(ctx, auctionID, bidderID, amount, bctx)
		if errors.Is(err, repository.ErrStaleSnapshot) {
			lastErr = err
			continue
		}
		return bid, rank, err
	}
	return nil, 0, fmt.Errorf("%w: %v", ErrContention, lastErr)
}

func (s *AuctionService) placeBidOnce(ctx context.Context, auctionID, bidderID uint64, amount decimal.Decimal, bctx BidContext) (*model.Bid, int, error) {
	a, err := s.ledger.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, 0, mapLedgerError(err)
	}
	now := s.clock.Now()
	if a.Status != model.StatusActive {
		return nil, 0, fmt.Errorf("%w: auction %s is %s", ErrInvalidState, a.Number, a.Status)
	}
	if !a.InBiddingWindow(now) {
		return nil, 0, fmt.Errorf("%w: auction %s is outside its bidding window", ErrInvalidState, a.Number)
	}
	if bidderID == 0 {
		return nil, 0, fmt.Errorf("%w: bidder id is required", ErrValidation)
	}

	bids, err := s.ledger.ActiveBids(ctx, auctionID)
	if err != nil {
		return nil, 0, fmt.Errorf("load bid snapshot: %w", err)
	}
	if !ranking.Admissible(a, bids, amount) {
		threshold := ranking.MinimumAdmissible(a, bids)
		if a.Type.Descending() {
			return nil, 0, fmt.Errorf("%w: bid above maximum of %s", ErrValidation, threshold)
		}
		return nil, 0, fmt.Errorf("%w: bid below minimum of %s", ErrValidation, threshold)
	}

	rank := ranking.CandidateRank(bids, amount, a.Type)
	displacedEntries, displaced := s.displacedBy(a, bids, bidderID, amount, now, bctx)

	quantity := decimal.NewFromInt(int64(a.QuantityRemaining))
	bid := &model.Bid{
		Reference: uuid.NewString(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		Currency:  a.Currency,
	}
	placedEntry := model.BidHistoryEntry{
		AuctionID:    auctionID,
		BuyerID:      bidderID,
		PricePerUnit: amount,
		TotalAmount:  amount.Mul(quantity),
		StatusChange: model.BidPlaced,
		RankAtTime:   &rank,
		IPAddress:    bctx.IPAddress,
		UserAgent:    bctx.UserAgent,
	}

	if err := s.ledger.CommitBid(ctx, auctionID, a.Version, bid, placedEntry, displacedEntries); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil, 0, fmt.Errorf("%w: auction %s left ACTIVE during bid placement", ErrInvalidState, a.Number)
		}
		if errors.Is(err, repository.ErrStaleSnapshot) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("commit bid: %w", err)
	}

	s.events.BidPlaced(a, bid, rank, displaced, s.participantEmails(ctx, auctionID))
	return bid, rank, nil
}

// displacedBy simulates the ranking with the candidate included and
// returns one outbid audit row per displaced bid of every other bidder,
// plus a per-bidder notification list carrying each bidder's best new
// rank.
func (s *AuctionService) displacedBy(a *model.Auction, bids []model.Bid, bidderID uint64, amount decimal.Decimal, now time.Time, bctx BidContext) ([]model.BidHistoryEntry, []notify.Displaced) {
	before := make(map[uint64]int, len(bids))
	for _, rb := range ranking.Rank(bids, a.Type) {
		before[rb.Bid.ID] = rb.Rank
	}
	candidate := model.Bid{BidderID: bidderID, Amount: amount, CreatedAt: now}
	after := ranking.Rank(append(append([]model.Bid{}, bids...), candidate), a.Type)

	quantity := decimal.NewFromInt(int64(a.QuantityRemaining))
	entries := make([]model.BidHistoryEntry, 0)
	bestNewRank := make(map[uint64]int)
	for _, rb := range after {
		oldRank, existing := before[rb.Bid.ID]
		if !existing || rb.Rank <= oldRank || rb.Bid.BidderID == bidderID {
			continue
		}
		rank := rb.Rank
		entries = append(entries, model.BidHistoryEntry{
			AuctionID:    a.ID,
			BidID:        rb.Bid.ID,
			BuyerID:      rb.Bid.BidderID,
			PricePerUnit: rb.Bid.Amount,
			TotalAmount:  rb.Bid.Amount.Mul(quantity),
			StatusChange: model.BidOutbid,
			RankAtTime:   &rank,
			IPAddress:    bctx.IPAddress,
			UserAgent:    bctx.UserAgent,
		})
		if best, ok := bestNewRank[rb.Bid.BidderID]; !ok || rank < best {
			bestNewRank[rb.Bid.BidderID] = rank
		}
	}
	displaced := make([]notify.Displaced, 0, len(bestNewRank))
	for id, rank := range bestNewRank {
		displaced = append(displaced, notify.Displaced{BidderID: id, NewRank: rank})
	}
	return entries, displaced
}

// RetractBid soft-withdraws a buyer's own bid on an ACTIVE auction.
// The bid row survives with is_retracted set and a `withdrawn` audit
// row is appended; nothing is ever physically deleted.
func (s *AuctionService) RetractBid(ctx context.Context, auctionID, bidderID uint64, reference string, bctx BidContext) (*model.Bid, error) {
	a, err := s.ledger.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if a.Status != model.StatusActive {
		return nil, fmt.Errorf("%w: auction %s is %s", ErrInvalidState, a.Number, a.Status)
	}
	entry := model.BidHistoryEntry{
		AuctionID:    auctionID,
		StatusChange: model.BidWithdrawn,
		IPAddress:    bctx.IPAddress,
		UserAgent:    bctx.UserAgent,
	}
	bid, err := s.ledger.RetractBid(ctx, auctionID, reference, bidderID, entry)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	s.events.AuctionUpdated(a)
	return bid, nil
}

// CloseAuction runs the ACTIVE -> CLOSED transition.  The winner is
// determined by the ledger inside the closure transaction, over the bid
// set as it stands under the auction row lock, so a bid committing
// concurrently with the close is either ranked or rejected, never
// silently dropped.  Closing is idempotent: an already-closed auction
// returns the stored record without re-running side effects, so monitor
// retries and racing human-triggered closes are safe.  Zero bids close
// legally with a nil winner and price.
func (s *AuctionService) CloseAuction(ctx context.Context, id uint64) (*model.Auction, error) {
	a, err := s.ledger.GetAuction(ctx, id)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if a.Status == model.StatusClosed {
		return a, nil
	}
	if a.Status != model.StatusActive {
		return nil, fmt.Errorf("%w: cannot close auction %s in status %s", ErrInvalidState, a.Number, a.Status)
	}

	closed, err := s.ledger.CloseAuction(ctx, id)
	if errors.Is(err, repository.ErrAlreadyClosed) {
		// Lost the race to another closer. The transition already
		// happened exactly once; return the terminal record.
		if closed != nil && closed.Status == model.StatusClosed {
			return closed, nil
		}
		return nil, fmt.Errorf("%w: auction %d is cancelled", ErrInvalidState, id)
	}
	if err != nil {
		return nil, mapLedgerError(err)
	}

	s.events.AuctionClosed(closed, s.participantEmails(ctx, id))
	return closed, nil
}

// GetAuction loads a single auction.
func (s *AuctionService) GetAuction(ctx context.Context, id uint64) (*model.Auction, error) {
	a, err := s.ledger.GetAuction(ctx, id)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	return a, nil
}

// GetBidHistory returns the full append-only audit trail ordered by
// timestamp ascending.
func (s *AuctionService) GetBidHistory(ctx context.Context, auctionID uint64) ([]model.BidHistoryEntry, error) {
	if _, err := s.ledger.GetAuction(ctx, auctionID); err != nil {
		return nil, mapLedgerError(err)
	}
	return s.ledger.BidHistory(ctx, auctionID)
}

// Standings is the current ranking of an auction.  For sealed-bid
// auctions that have not closed yet only the bid count is disclosed;
// ranked entries appear once the auction is terminal.
type Standings struct {
	AuctionID uint64              `json:"auction_id"`
	Sealed    bool                `json:"sealed"`
	BidCount  int                 `json:"bid_count"`
	Bids      []ranking.RankedBid `json:"bids,omitempty"`
}

// GetBidRanking returns the live standings.  Sealed-bid semantics: no
// intermediate ranks leak before closure.
func (s *AuctionService) GetBidRanking(ctx context.Context, auctionID uint64) (*Standings, error) {
	a, err := s.ledger.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	bids, err := s.ledger.ActiveBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("load bid snapshot: %w", err)
	}
	if a.Type == model.AuctionTypeSealedBid && !a.Status.Terminal() {
		return &Standings{AuctionID: auctionID, Sealed: true, BidCount: len(bids)}, nil
	}
	ranked := ranking.Rank(bids, a.Type)
	return &Standings{AuctionID: auctionID, BidCount: len(ranked), Bids: ranked}, nil
}

// Watch subscribes a buyer to auction notifications.
func (s *AuctionService) Watch(ctx context.Context, buyerID, auctionID uint64) error {
	if _, err := s.ledger.GetAuction(ctx, auctionID); err != nil {
		return mapLedgerError(err)
	}
	return s.ledger.Watch(ctx, buyerID, auctionID)
}

// Unwatch removes a buyer's subscription.
func (s *AuctionService) Unwatch(ctx context.Context, buyerID, auctionID uint64) error {
	return s.ledger.Unwatch(ctx, buyerID, auctionID)
}

// DueForClosure exposes the monitor's closure query.
func (s *AuctionService) DueForClosure(ctx context.Context, until time.Time) ([]model.Auction, error) {
	return s.ledger.DueForClosure(ctx, until)
}

// DueForLaunch exposes the monitor's launch query.
func (s *AuctionService) DueForLaunch(ctx context.Context, now time.Time) ([]model.Auction, error) {
	return s.ledger.DueForLaunch(ctx, now)
}

// participantEmails resolves notification targets, degrading to none on
// lookup failure — notifications are best-effort by contract.
func (s *AuctionService) participantEmails(ctx context.Context, auctionID uint64) map[uint64]string {
	emails, err := s.ledger.ParticipantEmails(ctx, auctionID)
	if err != nil {
		utils.Logger("service", "participantEmails").
			WithError(err).WithField("auction_id", auctionID).
			Warn("participant email lookup failed")
		return nil
	}
	return emails
}

// mapLedgerError translates repository sentinels into the service's
// error taxonomy.
func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, repository.ErrAuctionNotFound),
		errors.Is(err, repository.ErrBidNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, repository.ErrAlreadyClosed):
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	case errors.Is(err, repository.ErrForbidden):
		return fmt.Errorf("%w: bid belongs to another buyer", ErrValidation)
	default:
		return err
	}
}
