package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	sendgrid "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/orehub/metalx/internal/utils"
)

// StartEmailConsumer connects to RabbitMQ, declares the auction.emails
// queue (durable), and starts consuming messages.  Each message is
// rendered and handed to SendGrid.  The function runs a reconnect loop
// with exponential backoff and keeps running indefinitely; processing
// errors are logged and the offending message is rejected without
// requeue so a poison message cannot wedge the worker.
func StartEmailConsumer() error {
	log := utils.Logger("queue", "StartEmailConsumer")

	backoff := time.Second
	for {
		conn, err := amqp.Dial(brokerURL())
		if err != nil {
			log.WithError(err).Warnf("failed to dial broker; retrying in %s", backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn); err != nil {
			log.WithError(err).Warn("consume loop ended; reconnecting")
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeLoop(conn *amqp.Connection) error {
	log := utils.Logger("queue", "consumeLoop")

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("set QoS failed")
	}

	if _, err = ch.QueueDeclare(emailQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(emailQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.Body); err != nil {
			log.WithError(err).Error("handle message failed")
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(body []byte) error {
	var msg EmailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	subject, text := renderEmail(msg)
	return sendEmail(msg.Recipient, subject, text)
}

// renderEmail maps a template id to a subject and plain-text body.
// Unknown templates fall through to a generic notification so old
// messages drained after a deploy still get delivered.
func renderEmail(msg EmailMessage) (subject, text string) {
	n := msg.AuctionNumber
	switch msg.Template {
	case TemplateAuctionLaunched:
		subject = fmt.Sprintf("Auction %s is now live", n)
		text = fmt.Sprintf("Bidding on auction %s (%s) is open until %s.",
			n, msg.Data["title"], msg.Data["scheduled_end"])
	case TemplateBidConfirmation:
		subject = fmt.Sprintf("Bid received on auction %s", n)
		text = fmt.Sprintf("Your bid of %s %s on auction %s was recorded at rank %s.",
			msg.Data["amount"], msg.Data["currency"], n, msg.Data["rank"])
	case TemplateOutbid:
		subject = fmt.Sprintf("You have been outbid on auction %s", n)
		text = fmt.Sprintf("A competing bid on auction %s moved you to rank %s. The standing to beat is %s %s.",
			n, msg.Data["rank"], msg.Data["best_amount"], msg.Data["currency"])
	case TemplateAuctionClosed:
		subject = fmt.Sprintf("Auction %s has closed", n)
		text = fmt.Sprintf("Auction %s closed at %s. Final price: %s.",
			n, msg.Data["closed_at"], msg.Data["final_price"])
	case TemplateSettlementReady:
		subject = fmt.Sprintf("Settlement ready for auction %s", n)
		text = fmt.Sprintf("You won auction %s at %s %s. Our team will contact you to arrange settlement.",
			n, msg.Data["final_price"], msg.Data["currency"])
	default:
		subject = fmt.Sprintf("Update on auction %s", n)
		text = fmt.Sprintf("There is new activity on auction %s.", n)
	}
	return subject, text
}

// sendEmail delivers one message through SendGrid.  With no API key
// configured (local development) the send is skipped and logged instead
// of failing the queue message.
func sendEmail(toAddr, subject, text string) error {
	key := os.Getenv("SENDGRID_API_KEY")
	if key == "" {
		utils.Logger("queue", "sendEmail").
			WithField("to", toAddr).WithField("subject", subject).
			Info("SENDGRID_API_KEY not set; skipping delivery")
		return nil
	}
	fromAddr := os.Getenv("EMAIL_FROM")
	if fromAddr == "" {
		fromAddr = "notifications@metalx.example"
	}
	from := mail.NewEmail("MetalX Marketplace", fromAddr)
	to := mail.NewEmail("", toAddr)
	message := mail.NewSingleEmail(from, subject, to, text, "")
	response, err := sendgrid.NewSendClient(key).Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 300 {
		return errors.New(response.Body)
	}
	return nil
}
