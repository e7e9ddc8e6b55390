// Package queue defines the email messages exchanged over the message
// broker and the background worker that delivers them.
package queue

// Email template identifiers.  The consumer maps these to subject lines
// and bodies; adding a template means adding a case there.
const (
	TemplateAuctionLaunched = "auction_launched"
	TemplateBidConfirmation = "bid_confirmation"
	TemplateOutbid          = "outbid"
	TemplateAuctionClosed   = "auction_closed"
	TemplateSettlementReady = "settlement_ready"
)

// EmailMessage is one queued notification email.  It carries everything
// the consumer needs to render and send without querying the primary
// database.  Delivery is best-effort and retried independently of the
// operation that enqueued it.
type EmailMessage struct {
	Template      string            `json:"template"`
	Recipient     string            `json:"recipient"`
	AuctionID     uint64            `json:"auction_id"`
	AuctionNumber string            `json:"auction_number"`
	Data          map[string]string `json:"data,omitempty"`
	EnqueuedAt    string            `json:"enqueued_at"`
}
