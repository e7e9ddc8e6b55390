package ranking

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/orehub/metalx/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func bid(id uint64, amount string, at time.Time) model.Bid {
	return model.Bid{ID: id, BidderID: id, Amount: dec(amount), CreatedAt: at}
}

func TestRank_AscendingWithTieBreak(t *testing.T) {
	t0 := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	// Two equal bids at 100 placed at t0 and t0+1s, then 150 later.
	bids := []model.Bid{
		bid(1, "100", t0),
		bid(2, "100", t0.Add(time.Second)),
		bid(3, "150", t0.Add(2*time.Second)),
	}

	ranked := Rank(bids, model.AuctionTypeEnglish)
	require.Len(t, ranked, 3)
	require.Equal(t, uint64(3), ranked[0].Bid.ID, "highest amount ranks first")
	require.Equal(t, uint64(1), ranked[1].Bid.ID, "earlier of the tied bids ranks ahead")
	require.Equal(t, uint64(2), ranked[2].Bid.ID)
	for i, rb := range ranked {
		require.Equal(t, i+1, rb.Rank)
	}
}

func TestRank_DescendingTypes(t *testing.T) {
	t0 := time.Now().UTC()
	bids := []model.Bid{
		bid(1, "500", t0),
		bid(2, "450", t0.Add(time.Second)),
		bid(3, "450", t0.Add(2*time.Second)),
	}
	for _, typ := range []model.AuctionType{model.AuctionTypeDutch, model.AuctionTypeReverse} {
		ranked := Rank(bids, typ)
		require.Equal(t, uint64(2), ranked[0].Bid.ID, "%s: lowest amount wins", typ)
		require.Equal(t, uint64(3), ranked[1].Bid.ID, "%s: tie broken by earlier bid", typ)
		require.Equal(t, uint64(1), ranked[2].Bid.ID)
	}
}

func TestRank_SkipsRetractedBids(t *testing.T) {
	t0 := time.Now().UTC()
	withdrawn := bid(1, "200", t0)
	withdrawn.IsRetracted = true
	bids := []model.Bid{withdrawn, bid(2, "150", t0.Add(time.Second))}

	ranked := Rank(bids, model.AuctionTypeEnglish)
	require.Len(t, ranked, 1)
	require.Equal(t, uint64(2), ranked[0].Bid.ID)
}

func TestWinner(t *testing.T) {
	_, ok := Winner(nil, model.AuctionTypeEnglish)
	require.False(t, ok, "empty snapshot has no winner")

	t0 := time.Now().UTC()
	w, ok := Winner([]model.Bid{bid(1, "100", t0), bid(2, "120", t0)}, model.AuctionTypeEnglish)
	require.True(t, ok)
	require.Equal(t, uint64(2), w.ID)
}

func TestCandidateRank(t *testing.T) {
	t0 := time.Now().UTC()
	bids := []model.Bid{bid(1, "100", t0), bid(2, "150", t0)}

	require.Equal(t, 1, CandidateRank(bids, dec("200"), model.AuctionTypeEnglish))
	require.Equal(t, 2, CandidateRank(bids, dec("120"), model.AuctionTypeEnglish))
	// Equal amount loses to the earlier committed bid.
	require.Equal(t, 3, CandidateRank(bids, dec("100"), model.AuctionTypeEnglish))
	require.Equal(t, 3, CandidateRank(bids, dec("90"), model.AuctionTypeEnglish))
	// Direction inverts for reverse auctions.
	require.Equal(t, 1, CandidateRank(bids, dec("90"), model.AuctionTypeReverse))
}

func TestAdmissible_English(t *testing.T) {
	a := &model.Auction{
		Type:          model.AuctionTypeEnglish,
		StartingPrice: dec("50000"),
		BidIncrement:  dec("1000"),
	}

	// Empty book: threshold is starting price + increment.
	require.False(t, Admissible(a, nil, dec("50999")))
	require.True(t, Admissible(a, nil, dec("51000")), "exactly at threshold succeeds")

	bids := []model.Bid{bid(1, "51000", time.Now().UTC())}
	require.False(t, Admissible(a, bids, dec("51500")), "below current best + increment")
	require.True(t, Admissible(a, bids, dec("52000")))
	require.False(t, Admissible(a, bids, dec("-1")))
	require.False(t, Admissible(a, bids, decimal.Zero))
}

func TestAdmissible_Reverse(t *testing.T) {
	a := &model.Auction{
		Type:          model.AuctionTypeReverse,
		StartingPrice: dec("1000"),
		BidIncrement:  dec("50"),
	}

	// Empty book: anything at or below the starting price.
	require.True(t, Admissible(a, nil, dec("1000")))
	require.False(t, Admissible(a, nil, dec("1001")))

	bids := []model.Bid{bid(1, "900", time.Now().UTC())}
	require.True(t, Admissible(a, bids, dec("850")))
	require.False(t, Admissible(a, bids, dec("851")), "must undercut best by the increment")
	require.False(t, Admissible(a, bids, decimal.Zero))
}

func TestAdmissible_SealedBidAcceptsAnyPositiveAmount(t *testing.T) {
	a := &model.Auction{
		Type:          model.AuctionTypeSealedBid,
		StartingPrice: dec("50000"),
		BidIncrement:  dec("1000"),
	}
	bids := []model.Bid{bid(1, "99999", time.Now().UTC())}

	require.True(t, Admissible(a, bids, dec("1")))
	require.False(t, Admissible(a, bids, decimal.Zero))
	require.False(t, Admissible(a, bids, dec("-5")))
}

func TestMinimumAdmissible(t *testing.T) {
	t0 := time.Now().UTC()
	tests := []struct {
		name string
		typ  model.AuctionType
		bids []model.Bid
		want string
	}{
		{"english_empty_book", model.AuctionTypeEnglish, nil, "51000"},
		{"english_with_best", model.AuctionTypeEnglish, []model.Bid{bid(1, "52000", t0)}, "53000"},
		{"reverse_empty_book", model.AuctionTypeReverse, nil, "50000"},
		{"reverse_with_best", model.AuctionTypeReverse, []model.Bid{bid(1, "40000", t0)}, "39000"},
		{"sealed_bid", model.AuctionTypeSealedBid, []model.Bid{bid(1, "40000", t0)}, "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := &model.Auction{Type: tc.typ, StartingPrice: dec("50000"), BidIncrement: dec("1000")}
			require.True(t, MinimumAdmissible(a, tc.bids).Equal(dec(tc.want)))
		})
	}
}
