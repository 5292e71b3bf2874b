package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
)

const (
	TypeBidPlaced      = "bid_placed"
	TypeBidCancelled   = "bid_cancelled"
	TypeSectionClosed  = "section_closed"
	TypeSeasonAdvanced = "season_advanced"
)

// Event is the envelope published for every auction state change. Consumers
// (broadcast, archival) subscribe on bidding.events.>.
type Event struct {
	Type             string           `json:"type"`
	SectionID        int64            `json:"section_id,omitempty"`
	BidID            string           `json:"bid_id,omitempty"`
	InvestorID       int64            `json:"investor_id,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	WinnerInvestorID *int64           `json:"winner_investor_id,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// Publisher pushes events to NATS, best effort and off the request path. A
// nil Publisher is valid and publishes nothing, so the engine runs without a
// broker.
type Publisher struct {
	conn   *nats.Conn
	logger *log.Logger
}

func NewPublisher(conn *nats.Conn, logger *log.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

func (p *Publisher) Publish(ev Event) {
	if p == nil || p.conn == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	go func() {
		data, err := json.Marshal(ev)
		if err != nil {
			p.logger.Printf("Warning: failed to marshal %s event: %v", ev.Type, err)
			return
		}
		subject := fmt.Sprintf("bidding.events.%d", ev.SectionID)
		if ev.SectionID == 0 {
			subject = "bidding.events.season"
		}
		if err := p.conn.Publish(subject, data); err != nil {
			p.logger.Printf("Warning: failed to publish %s event to NATS: %v", ev.Type, err)
		}
	}()
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
