package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/orehub/metalx/internal/model"
	"github.com/orehub/metalx/internal/notify"
	"github.com/orehub/metalx/internal/ranking"
	"github.com/orehub/metalx/internal/repository"
)

// fakeLedger is an in-memory Ledger honouring the same serialization
// contract as the MySQL store: CommitBid checks the version against the
// caller's snapshot and every mutation bumps it.
type fakeLedger struct {
	mu       sync.Mutex
	seq      uint64
	bidSeq   uint64
	auctions map[uint64]*model.Auction
	bids     map[uint64][]model.Bid
	history  map[uint64][]model.BidHistoryEntry
	watchers map[uint64]map[uint64]struct{}
	emails   map[uint64]string

	// commitHook runs inside CommitBid before the version check, and
	// closeHook inside CloseAuction before the terminal check, letting
	// tests inject a concurrent writer between snapshot and commit.
	commitHook func()
	closeHook  func()
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		auctions: make(map[uint64]*model.Auction),
		bids:     make(map[uint64][]model.Bid),
		history:  make(map[uint64][]model.BidHistoryEntry),
		watchers: make(map[uint64]map[uint64]struct{}),
		emails:   make(map[uint64]string),
	}
}

func (f *fakeLedger) CreateAuction(_ context.Context, a *model.Auction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	a.ID = f.seq
	a.Number = time.Now().UTC().Format("AU-20060102-") + padSeq(f.seq)
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	f.auctions[a.ID] = &cp
	return nil
}

func padSeq(n uint64) string {
	s := []byte{'0', '0', '0'}
	for i := 2; i >= 0 && n > 0; i-- {
		s[i] = byte('0' + n%10)
		n /= 10
	}
	return string(s)
}

func (f *fakeLedger) GetAuction(_ context.Context, id uint64) (*model.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[id]
	if !ok {
		return nil, repository.ErrAuctionNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeLedger) ActiveBids(_ context.Context, auctionID uint64) ([]model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Bid, 0)
	for _, b := range f.bids[auctionID] {
		if !b.IsRetracted {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeLedger) TransitionStatus(_ context.Context, id uint64, from, to model.AuctionStatus) (*model.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[id]
	if !ok {
		return nil, repository.ErrAuctionNotFound
	}
	if a.Status != from {
		return nil, repository.ErrInvalidTransition
	}
	a.Status = to
	a.Version++
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (f *fakeLedger) CommitBid(_ context.Context, auctionID, expectedVersion uint64, b *model.Bid, placed model.BidHistoryEntry, outbid []model.BidHistoryEntry) error {
	if f.commitHook != nil {
		hook := f.commitHook
		f.commitHook = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[auctionID]
	if !ok {
		return repository.ErrAuctionNotFound
	}
	if a.Version != expectedVersion {
		return repository.ErrStaleSnapshot
	}
	if a.Status != model.StatusActive {
		return repository.ErrInvalidTransition
	}
	f.bidSeq++
	b.ID = f.bidSeq
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	f.bids[auctionID] = append(f.bids[auctionID], *b)
	placed.BidID = b.ID
	f.history[auctionID] = append(f.history[auctionID], placed)
	f.history[auctionID] = append(f.history[auctionID], outbid...)
	a.Version++
	return nil
}

// CloseAuction mirrors the store: the winner is determined over the bid
// set as it stands once the closure holds the lock, never from an
// earlier caller snapshot.
func (f *fakeLedger) CloseAuction(_ context.Context, auctionID uint64) (*model.Auction, error) {
	if f.closeHook != nil {
		hook := f.closeHook
		f.closeHook = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[auctionID]
	if !ok {
		return nil, repository.ErrAuctionNotFound
	}
	if a.Status.Terminal() {
		cp := *a
		return &cp, repository.ErrAlreadyClosed
	}
	if a.Status != model.StatusActive {
		return nil, repository.ErrInvalidTransition
	}
	active := make([]model.Bid, 0)
	for _, b := range f.bids[auctionID] {
		if !b.IsRetracted {
			active = append(active, b)
		}
	}
	if winner, ok := ranking.Winner(active, a.Type); ok {
		a.WinningBuyerID = &winner.BidderID
		a.FinalPrice = &winner.Amount
		topRank := 1
		f.history[auctionID] = append(f.history[auctionID], model.BidHistoryEntry{
			AuctionID:    auctionID,
			BidID:        winner.ID,
			BuyerID:      winner.BidderID,
			PricePerUnit: winner.Amount,
			TotalAmount:  winner.Amount.Mul(decimal.NewFromInt(int64(a.QuantityRemaining))),
			StatusChange: model.BidWon,
			RankAtTime:   &topRank,
		})
	}
	a.Status = model.StatusClosed
	a.Version++
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (f *fakeLedger) RetractBid(_ context.Context, auctionID uint64, reference string, bidderID uint64, entry model.BidHistoryEntry) (*model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[auctionID]
	if !ok {
		return nil, repository.ErrAuctionNotFound
	}
	list := f.bids[auctionID]
	for i := range list {
		if list[i].Reference != reference {
			continue
		}
		if list[i].BidderID != bidderID {
			return nil, repository.ErrForbidden
		}
		if !list[i].IsRetracted {
			list[i].IsRetracted = true
			entry.BidID = list[i].ID
			entry.BuyerID = list[i].BidderID
			entry.PricePerUnit = list[i].Amount
			f.history[auctionID] = append(f.history[auctionID], entry)
			a.Version++
		}
		cp := list[i]
		return &cp, nil
	}
	return nil, repository.ErrBidNotFound
}

func (f *fakeLedger) BidHistory(_ context.Context, auctionID uint64) ([]model.BidHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.BidHistoryEntry{}, f.history[auctionID]...), nil
}

func (f *fakeLedger) DueForClosure(_ context.Context, until time.Time) ([]model.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Auction, 0)
	for _, a := range f.auctions {
		if a.Status == model.StatusActive && !a.ScheduledEnd.After(until) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeLedger) DueForLaunch(_ context.Context, now time.Time) ([]model.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Auction, 0)
	for _, a := range f.auctions {
		if a.Status == model.StatusDraft && !a.ScheduledStart.After(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeLedger) Watch(_ context.Context, buyerID, auctionID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchers[auctionID] == nil {
		f.watchers[auctionID] = make(map[uint64]struct{})
	}
	f.watchers[auctionID][buyerID] = struct{}{}
	return nil
}

func (f *fakeLedger) Unwatch(_ context.Context, buyerID, auctionID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watchers[auctionID], buyerID)
	return nil
}

func (f *fakeLedger) ParticipantEmails(_ context.Context, auctionID uint64) (map[uint64]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint64]string)
	for _, b := range f.bids[auctionID] {
		if addr, ok := f.emails[b.BidderID]; ok {
			out[b.BidderID] = addr
		}
	}
	for id := range f.watchers[auctionID] {
		if addr, ok := f.emails[id]; ok {
			out[id] = addr
		}
	}
	return out, nil
}

// fakeEvents records fan-out calls for assertion.
type fakeEvents struct {
	mu       sync.Mutex
	launched []uint64
	bids     []fakeBidEvent
	closed   []uint64
	updated  []uint64
}

type fakeBidEvent struct {
	auctionID uint64
	bidderID  uint64
	rank      int
	displaced []notify.Displaced
}

func (f *fakeEvents) AuctionLaunched(a *model.Auction, _ map[uint64]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, a.ID)
}

func (f *fakeEvents) BidPlaced(a *model.Auction, bid *model.Bid, rank int, displaced []notify.Displaced, _ map[uint64]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bids = append(f.bids, fakeBidEvent{auctionID: a.ID, bidderID: bid.BidderID, rank: rank, displaced: displaced})
}

func (f *fakeEvents) AuctionClosed(a *model.Auction, _ map[uint64]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, a.ID)
}

func (f *fakeEvents) AuctionUpdated(a *model.Auction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, a.ID)
}

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(t *testing.T) (*AuctionService, *fakeLedger, *fakeEvents, *fakeClock) {
	t.Helper()
	ledger := newFakeLedger()
	events := &fakeEvents{}
	clock := &fakeClock{now: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}
	return NewAuctionService(ledger, events, clock), ledger, events, clock
}

func validInput(t model.AuctionType) CreateAuctionInput {
	return CreateAuctionInput{
		Title:          "Copper cathode lot 12",
		Type:           t,
		MaterialType:   "copper",
		MaterialGrade:  "Grade A",
		QuantityTotal:  40,
		StartingPrice:  decimal.NewFromInt(50000),
		BidIncrement:   decimal.NewFromInt(1000),
		Currency:       "usd",
		ScheduledStart: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		ScheduledEnd:   time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
		SupplierID:     7,
	}
}

func activeAuction(t *testing.T, svc *AuctionService, typ model.AuctionType) *model.Auction {
	t.Helper()
	a, err := svc.CreateAuction(context.Background(), validInput(typ))
	require.NoError(t, err)
	a, err = svc.LaunchAuction(context.Background(), a.ID)
	require.NoError(t, err)
	return a
}

func TestCreateAuctionValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(in *CreateAuctionInput)
	}{
		{"empty title", func(in *CreateAuctionInput) { in.Title = "  " }},
		{"unknown type", func(in *CreateAuctionInput) { in.Type = "vickrey" }},
		{"zero quantity", func(in *CreateAuctionInput) { in.QuantityTotal = 0 }},
		{"zero starting price", func(in *CreateAuctionInput) { in.StartingPrice = decimal.Zero }},
		{"negative increment", func(in *CreateAuctionInput) { in.BidIncrement = decimal.NewFromInt(-5) }},
		{"bad currency", func(in *CreateAuctionInput) { in.Currency = "US" }},
		{"end before start", func(in *CreateAuctionInput) { in.ScheduledEnd = in.ScheduledStart.Add(-time.Hour) }},
		{"missing supplier", func(in *CreateAuctionInput) { in.SupplierID = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput(model.AuctionTypeEnglish)
			tc.mutate(&in)
			_, err := svc.CreateAuction(ctx, in)
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	a, err := svc.CreateAuction(ctx, validInput(model.AuctionTypeEnglish))
	require.NoError(t, err)
	require.Equal(t, model.StatusDraft, a.Status)
	require.Equal(t, "USD", a.Currency)
	require.Equal(t, a.QuantityTotal, a.QuantityRemaining)
	require.Regexp(t, `^AU-\d{8}-\d{3}$`, a.Number)
}

func TestCreateAuctionNumbersDistinct(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	numbers := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := svc.CreateAuction(ctx, validInput(model.AuctionTypeEnglish))
			require.NoError(t, err)
			numbers[i] = a.Number
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, num := range numbers {
		_, dup := seen[num]
		require.False(t, dup, "duplicate auction number %s", num)
		seen[num] = struct{}{}
	}
}

func TestLaunchAuction(t *testing.T) {
	svc, _, events, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAuction(ctx, validInput(model.AuctionTypeEnglish))
	require.NoError(t, err)

	launched, err := svc.LaunchAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, launched.Status)
	require.Equal(t, []uint64{a.ID}, events.launched)

	_, err = svc.LaunchAuction(ctx, a.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.LaunchAuction(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPlaceBidEnglishThreshold(t *testing.T) {
	svc, _, events, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeEnglish)

	// Empty book: starting 50000 + increment 1000 admits exactly 51000.
	_, _, err := svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(50999), BidContext{})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "bid below minimum of 51000")

	bidA, rank, err := svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(51000), BidContext{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	require.Equal(t, 1, rank)
	require.NotEmpty(t, bidA.Reference)

	// Next bid must reach 52000; 50500 and 51999 are both inadmissible.
	_, _, err = svc.PlaceBid(ctx, a.ID, 102, decimal.NewFromInt(50500), BidContext{})
	require.ErrorIs(t, err, ErrValidation)
	_, _, err = svc.PlaceBid(ctx, a.ID, 102, decimal.NewFromInt(51999), BidContext{})
	require.ErrorIs(t, err, ErrValidation)

	_, rank, err = svc.PlaceBid(ctx, a.ID, 102, decimal.NewFromInt(52000), BidContext{})
	require.NoError(t, err)
	require.Equal(t, 1, rank)

	// Bidder 101 was displaced to rank 2 by the second bid.
	last := events.bids[len(events.bids)-1]
	require.Len(t, last.displaced, 1)
	require.Equal(t, uint64(101), last.displaced[0].BidderID)
	require.Equal(t, 2, last.displaced[0].NewRank)
}

func TestPlaceBidAuditTrail(t *testing.T) {
	svc, ledger, _, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeEnglish)

	_, _, err := svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(51000), BidContext{IPAddress: "10.0.0.1", UserAgent: "trader/1.0"})
	require.NoError(t, err)
	_, _, err = svc.PlaceBid(ctx, a.ID, 102, decimal.NewFromInt(52000), BidContext{IPAddress: "10.0.0.2"})
	require.NoError(t, err)

	history, err := svc.GetBidHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 3) // placed, placed, outbid

	require.Equal(t, model.BidPlaced, history[0].StatusChange)
	require.Equal(t, uint64(101), history[0].BuyerID)
	require.Equal(t, "10.0.0.1", history[0].IPAddress)
	require.Equal(t, "trader/1.0", history[0].UserAgent)
	// Unit price times the 40 remaining tonnes.
	require.True(t, history[0].TotalAmount.Equal(decimal.NewFromInt(51000*40)))
	require.NotNil(t, history[0].RankAtTime)
	require.Equal(t, 1, *history[0].RankAtTime)

	require.Equal(t, model.BidPlaced, history[1].StatusChange)
	require.Equal(t, model.BidOutbid, history[2].StatusChange)
	require.Equal(t, uint64(101), history[2].BuyerID)
	require.NotNil(t, history[2].RankAtTime)
	require.Equal(t, 2, *history[2].RankAtTime)

	_ = ledger
}

func TestPlaceBidStateGuards(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()

	draft, err := svc.CreateAuction(ctx, validInput(model.AuctionTypeEnglish))
	require.NoError(t, err)
	_, _, err = svc.PlaceBid(ctx, draft.ID, 101, decimal.NewFromInt(51000), BidContext{})
	require.ErrorIs(t, err, ErrInvalidState)

	a := activeAuction(t, svc, model.AuctionTypeEnglish)

	// A bid arriving exactly at the scheduled end is out of window.
	clock.Set(time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC))
	_, _, err = svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(51000), BidContext{})
	require.ErrorIs(t, err, ErrInvalidState)

	clock.Set(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
	_, err = svc.CloseAuction(ctx, a.ID)
	require.NoError(t, err)
	_, _, err = svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(51000), BidContext{})
	require.ErrorIs(t, err, ErrInvalidState)

	_, _, err = svc.PlaceBid(ctx, 9999, 101, decimal.NewFromInt(51000), BidContext{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPlaceBidRetriesStaleSnapshotOnce(t *testing.T) {
	svc, ledger, _, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeEnglish)

	// A concurrent bid lands between our snapshot read and commit; the
	// retry re-evaluates against the fresh book and succeeds.
	ledger.commitHook = func() {
		_, _, err := svc.PlaceBid(ctx, a.ID, 201, decimal.NewFromInt(51000), BidContext{})
		require.NoError(t, err)
	}
	_, rank, err := svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(52000), BidContext{})
	require.NoError(t, err)
	require.Equal(t, 1, rank)

	bids, err := svc.GetBidRanking(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 2, bids.BidCount)
}

func TestPlaceBidContentionAfterTwoRaces(t *testing.T) {
	svc, ledger, _, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeEnglish)

	// Interfere on both attempts: the auction version moves under the
	// caller every time, so the second failure surfaces as contention.
	interfere := func() {
		ledger.mu.Lock()
		ledger.auctions[a.ID].Version++
		ledger.mu.Unlock()
	}
	ledger.commitHook = func() {
		interfere()
		ledger.commitHook = func() { interfere() }
	}
	_, _, err := svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(51000), BidContext{})
	require.ErrorIs(t, err, ErrContention)
}

func TestPlaceBidReverseAuction(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeReverse)

	// Empty book admits anything at or below the starting price.
	_, rank, err := svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(50000), BidContext{})
	require.NoError(t, err)
	require.Equal(t, 1, rank)

	// Next bid must undercut by the increment.
	_, _, err = svc.PlaceBid(ctx, a.ID, 102, decimal.NewFromInt(49500), BidContext{})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "bid above maximum of 49000")

	_, rank, err = svc.PlaceBid(ctx, a.ID, 102, decimal.NewFromInt(49000), BidContext{})
	require.NoError(t, err)
	require.Equal(t, 1, rank)
}

func TestCloseAuctionDeterminesWinner(t *testing.T) {
	svc, _, events, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeEnglish)

	_, _, err := svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(51000), BidContext{})
	require.NoError(t, err)
	_, _, err = svc.PlaceBid(ctx, a.ID, 102, decimal.NewFromInt(52000), BidContext{})
	require.NoError(t, err)

	closed, err := svc.CloseAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusClosed, closed.Status)
	require.NotNil(t, closed.WinningBuyerID)
	require.Equal(t, uint64(102), *closed.WinningBuyerID)
	require.NotNil(t, closed.FinalPrice)
	require.True(t, closed.FinalPrice.Equal(decimal.NewFromInt(52000)))
	require.Equal(t, []uint64{a.ID}, events.closed)

	history, err := svc.GetBidHistory(ctx, a.ID)
	require.NoError(t, err)
	won := 0
	for _, e := range history {
		if e.StatusChange == model.BidWon {
			won++
			require.Equal(t, uint64(102), e.BuyerID)
		}
	}
	require.Equal(t, 1, won)
}

func TestCloseAuctionSeesBidCommittedDuringClose(t *testing.T) {
	svc, ledger, _, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeEnglish)

	_, _, err := svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(51000), BidContext{})
	require.NoError(t, err)

	// A higher bid lands after the closer has read the auction but
	// before the closure takes the lock.  It must still win.
	ledger.closeHook = func() {
		_, _, err := svc.PlaceBid(ctx, a.ID, 102, decimal.NewFromInt(52000), BidContext{})
		require.NoError(t, err)
	}

	closed, err := svc.CloseAuction(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.WinningBuyerID)
	require.Equal(t, uint64(102), *closed.WinningBuyerID)
	require.NotNil(t, closed.FinalPrice)
	require.True(t, closed.FinalPrice.Equal(decimal.NewFromInt(52000)))

	history, err := svc.GetBidHistory(ctx, a.ID)
	require.NoError(t, err)
	won := 0
	for _, e := range history {
		if e.StatusChange == model.BidWon {
			won++
			require.Equal(t, uint64(102), e.BuyerID)
		}
	}
	require.Equal(t, 1, won)
}

func TestCloseAuctionIdempotent(t *testing.T) {
	svc, _, events, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeEnglish)

	_, _, err := svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(51000), BidContext{})
	require.NoError(t, err)

	first, err := svc.CloseAuction(ctx, a.ID)
	require.NoError(t, err)
	second, err := svc.CloseAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, *first.WinningBuyerID, *second.WinningBuyerID)

	// Side effects ran exactly once and the trail holds one won row.
	require.Equal(t, []uint64{a.ID}, events.closed)
	history, err := svc.GetBidHistory(ctx, a.ID)
	require.NoError(t, err)
	won := 0
	for _, e := range history {
		if e.StatusChange == model.BidWon {
			won++
		}
	}
	require.Equal(t, 1, won)
}

func TestCloseAuctionNoBids(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeEnglish)

	closed, err := svc.CloseAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusClosed, closed.Status)
	require.Nil(t, closed.WinningBuyerID)
	require.Nil(t, closed.FinalPrice)
}

func TestCloseAuctionInvalidStates(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	draft, err := svc.CreateAuction(ctx, validInput(model.AuctionTypeEnglish))
	require.NoError(t, err)
	_, err = svc.CloseAuction(ctx, draft.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	a := activeAuction(t, svc, model.AuctionTypeEnglish)
	_, err = svc.CancelAuction(ctx, a.ID)
	require.NoError(t, err)
	_, err = svc.CloseAuction(ctx, a.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestRetractBid(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeEnglish)

	bid, _, err := svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(51000), BidContext{})
	require.NoError(t, err)

	_, err = svc.RetractBid(ctx, a.ID, 102, bid.Reference, BidContext{})
	require.ErrorIs(t, err, ErrValidation)

	retracted, err := svc.RetractBid(ctx, a.ID, 101, bid.Reference, BidContext{})
	require.NoError(t, err)
	require.True(t, retracted.IsRetracted)

	standings, err := svc.GetBidRanking(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 0, standings.BidCount)

	history, err := svc.GetBidHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, model.BidWithdrawn, history[len(history)-1].StatusChange)
}

func TestGetBidRankingSealedSuppression(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeSealedBid)

	_, _, err := svc.PlaceBid(ctx, a.ID, 101, decimal.NewFromInt(48000), BidContext{})
	require.NoError(t, err)
	_, _, err = svc.PlaceBid(ctx, a.ID, 102, decimal.NewFromInt(53000), BidContext{})
	require.NoError(t, err)

	standings, err := svc.GetBidRanking(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, standings.Sealed)
	require.Equal(t, 2, standings.BidCount)
	require.Empty(t, standings.Bids)

	_, err = svc.CloseAuction(ctx, a.ID)
	require.NoError(t, err)

	standings, err = svc.GetBidRanking(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, standings.Sealed)
	require.Len(t, standings.Bids, 2)
	require.Equal(t, uint64(102), standings.Bids[0].Bid.BidderID)
}

func TestWatchRequiresExistingAuction(t *testing.T) {
	svc, ledger, _, _ := newTestService(t)
	ctx := context.Background()
	a := activeAuction(t, svc, model.AuctionTypeEnglish)

	require.ErrorIs(t, svc.Watch(ctx, 101, 9999), ErrNotFound)
	require.NoError(t, svc.Watch(ctx, 101, a.ID))
	require.NoError(t, svc.Watch(ctx, 101, a.ID)) // idempotent

	ledger.emails[101] = "buyer@example.com"
	emails, err := ledger.ParticipantEmails(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "buyer@example.com", emails[101])

	require.NoError(t, svc.Unwatch(ctx, 101, a.ID))
	emails, err = ledger.ParticipantEmails(ctx, a.ID)
	require.NoError(t, err)
	require.Empty(t, emails)
}
