package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/orehub/metalx/internal/model"
	"github.com/orehub/metalx/internal/queue"
	"github.com/orehub/metalx/internal/utils"
)

// EmailEnqueuer hands an email message to the durable queue.  The
// production implementation publishes to RabbitMQ; tests substitute a
// recorder.
type EmailEnqueuer interface {
	Enqueue(ctx context.Context, msg queue.EmailMessage) error
}

// QueueEnqueuer is the RabbitMQ-backed EmailEnqueuer.
type QueueEnqueuer struct{}

// Enqueue publishes the message to the auction.emails queue.
func (QueueEnqueuer) Enqueue(ctx context.Context, msg queue.EmailMessage) error {
	return queue.PublishEmail(ctx, msg)
}

// Displaced describes a bidder pushed to a worse rank by a new bid.
type Displaced struct {
	BidderID uint64
	NewRank  int
}

// Notifier is the single entry point business code uses to emit events.
// Every method detaches from the caller: it runs in its own goroutine
// with a bounded timeout, logs failures per recipient and never returns
// an error.  Outbound delivery problems are therefore isolated from the
// state transitions that triggered them.
type Notifier struct {
	broadcaster Broadcaster
	emails      EmailEnqueuer
	timeout     time.Duration
}

// NewNotifier builds a Notifier.  timeout bounds each outbound call; a
// zero value defaults to five seconds.
func NewNotifier(b Broadcaster, e EmailEnqueuer, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{broadcaster: b, emails: e, timeout: timeout}
}

// detach runs fn on a fresh context so notification work survives the
// request context and cannot block the caller.
func (n *Notifier) detach(method string, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				utils.Logger("notify", method).Errorf("notification panicked: %v", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (n *Notifier) broadcast(ctx context.Context, method string, event Event) {
	log := utils.Logger("notify", method).WithField("auction_id", event.AuctionID)
	for _, channel := range []string{ChannelAuction(event.AuctionID), ChannelGlobal} {
		if err := n.broadcaster.Publish(ctx, channel, event); err != nil {
			log.WithError(err).WithField("channel", channel).Warn("broadcast failed")
		}
	}
}

func (n *Notifier) enqueue(ctx context.Context, method string, msg queue.EmailMessage) {
	if msg.Recipient == "" {
		return
	}
	if err := n.emails.Enqueue(ctx, msg); err != nil {
		utils.Logger("notify", method).WithError(err).
			WithField("recipient", msg.Recipient).
			WithField("template", msg.Template).
			Warn("email enqueue failed")
	}
}

// AuctionLaunched broadcasts the activation and emails the watchers.
func (n *Notifier) AuctionLaunched(a *model.Auction, emails map[uint64]string) {
	auction := *a
	n.detach("AuctionLaunched", func(ctx context.Context) {
		n.broadcast(ctx, "AuctionLaunched", Event{
			Type:      EventAuctionUpdate,
			AuctionID: auction.ID,
			Number:    auction.Number,
			Data:      map[string]interface{}{"status": auction.Status},
		})
		for _, addr := range emails {
			n.enqueue(ctx, "AuctionLaunched", queue.EmailMessage{
				Template:      queue.TemplateAuctionLaunched,
				Recipient:     addr,
				AuctionID:     auction.ID,
				AuctionNumber: auction.Number,
				Data: map[string]string{
					"title":         auction.Title,
					"scheduled_end": auction.ScheduledEnd.UTC().Format(time.RFC3339),
				},
			})
		}
	})
}

// BidPlaced broadcasts the new bid, confirms it to the bidder and sends
// an outbid email to every displaced bidder.  Failures are isolated per
// recipient: one bad address never blocks the rest.
func (n *Notifier) BidPlaced(a *model.Auction, bid *model.Bid, rank int, displaced []Displaced, emails map[uint64]string) {
	auction, placed := *a, *bid
	n.detach("BidPlaced", func(ctx context.Context) {
		data := map[string]interface{}{
			"bid_reference": placed.Reference,
			"amount":        placed.Amount.String(),
			"currency":      placed.Currency,
		}
		// Sealed-bid standings stay hidden until closure; everyone else
		// sees the live rank.
		if auction.Type != model.AuctionTypeSealedBid {
			data["rank"] = rank
		}
		n.broadcast(ctx, "BidPlaced", Event{
			Type:      EventNewBid,
			AuctionID: auction.ID,
			Number:    auction.Number,
			Data:      data,
		})
		if addr, ok := emails[placed.BidderID]; ok {
			confirmation := map[string]string{
				"amount":   placed.Amount.String(),
				"currency": placed.Currency,
			}
			if auction.Type != model.AuctionTypeSealedBid {
				confirmation["rank"] = strconv.Itoa(rank)
			}
			n.enqueue(ctx, "BidPlaced", queue.EmailMessage{
				Template:      queue.TemplateBidConfirmation,
				Recipient:     addr,
				AuctionID:     auction.ID,
				AuctionNumber: auction.Number,
				Data:          confirmation,
			})
		}
		// Outbid emails carry the recipient's new rank, which sealed-bid
		// auctions must not disclose before closure.
		if auction.Type == model.AuctionTypeSealedBid {
			return
		}
		for _, d := range displaced {
			addr, ok := emails[d.BidderID]
			if !ok {
				continue
			}
			n.enqueue(ctx, "BidPlaced", queue.EmailMessage{
				Template:      queue.TemplateOutbid,
				Recipient:     addr,
				AuctionID:     auction.ID,
				AuctionNumber: auction.Number,
				Data: map[string]string{
					"rank":        strconv.Itoa(d.NewRank),
					"best_amount": placed.Amount.String(),
					"currency":    placed.Currency,
				},
			})
		}
	})
}

// AuctionClosed broadcasts the closure and emails every participant; the
// winner additionally receives a settlement-ready email.
func (n *Notifier) AuctionClosed(a *model.Auction, emails map[uint64]string) {
	auction := *a
	n.detach("AuctionClosed", func(ctx context.Context) {
		finalPrice := ""
		if auction.FinalPrice != nil {
			finalPrice = auction.FinalPrice.String()
		}
		n.broadcast(ctx, "AuctionClosed", Event{
			Type:      EventAuctionClosed,
			AuctionID: auction.ID,
			Number:    auction.Number,
			Data: map[string]interface{}{
				"status":           auction.Status,
				"winning_buyer_id": auction.WinningBuyerID,
				"final_price":      finalPrice,
			},
		})
		closedAt := auction.UpdatedAt.UTC().Format(time.RFC3339)
		for buyerID, addr := range emails {
			n.enqueue(ctx, "AuctionClosed", queue.EmailMessage{
				Template:      queue.TemplateAuctionClosed,
				Recipient:     addr,
				AuctionID:     auction.ID,
				AuctionNumber: auction.Number,
				Data: map[string]string{
					"closed_at":   closedAt,
					"final_price": finalPrice,
				},
			})
			if auction.WinningBuyerID != nil && *auction.WinningBuyerID == buyerID {
				n.enqueue(ctx, "AuctionClosed", queue.EmailMessage{
					Template:      queue.TemplateSettlementReady,
					Recipient:     addr,
					AuctionID:     auction.ID,
					AuctionNumber: auction.Number,
					Data: map[string]string{
						"final_price": finalPrice,
						"currency":    auction.Currency,
					},
				})
			}
		}
	})
}

// AuctionUpdated broadcasts a generic state change (cancellation, bid
// retraction) without email fan-out.
func (n *Notifier) AuctionUpdated(a *model.Auction) {
	auction := *a
	n.detach("AuctionUpdated", func(ctx context.Context) {
		n.broadcast(ctx, "AuctionUpdated", Event{
			Type:      EventAuctionUpdate,
			AuctionID: auction.ID,
			Number:    auction.Number,
			Data:      map[string]interface{}{"status": auction.Status},
		})
	})
}

