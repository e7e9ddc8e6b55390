package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to AuctionStatus
		ok       bool
	}{
		{StatusDraft, StatusActive, true},
		{StatusActive, StatusClosed, true},
		{StatusActive, StatusCancelled, true},
		{StatusDraft, StatusClosed, false},
		{StatusDraft, StatusCancelled, false},
		{StatusClosed, StatusActive, false},
		{StatusClosed, StatusCancelled, false},
		{StatusCancelled, StatusActive, false},
		{StatusActive, StatusDraft, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
	require.True(t, StatusClosed.Terminal())
	require.True(t, StatusCancelled.Terminal())
	require.False(t, StatusActive.Terminal())
}

func TestInBiddingWindow(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	a := &Auction{ScheduledStart: start, ScheduledEnd: end}

	require.True(t, a.InBiddingWindow(start))
	require.True(t, a.InBiddingWindow(end.Add(-time.Second)))
	require.False(t, a.InBiddingWindow(start.Add(-time.Second)))
	// The window is half-open: the end instant itself is outside.
	require.False(t, a.InBiddingWindow(end))
}

func TestAuctionTypes(t *testing.T) {
	require.True(t, AuctionTypeEnglish.Valid())
	require.True(t, AuctionTypeDutch.Descending())
	require.True(t, AuctionTypeReverse.Descending())
	require.False(t, AuctionTypeEnglish.Descending())
	require.False(t, AuctionType("vickrey").Valid())
}
