package transaction

import (
	"context"
	"time"

	"github.com/mkadit/payswitch/iso8583"
)

// Repository persists transaction records. Lookups return
// ErrTransactionNotFound when no row matches.
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	UpdateResponse(ctx context.Context, key Key, update ResponseUpdate) error
	FindByKey(ctx context.Context, key Key) (*Record, error)
	// FindByStanToday returns the latest row of the current day whose DE11
	// equals stan.
	FindByStanToday(ctx context.Context, stan string) (*Record, error)
	FindByTransactionIDAndTerminal(ctx context.Context, transactionID, terminalID string) (*Record, error)
}

// Responder sends a request to the issuer side and returns its reply.
type Responder interface {
	Respond(ctx context.Context, req *iso8583.Message) (*iso8583.Message, error)
}

// Signer authenticates an outgoing message, typically by setting DE64.
type Signer interface {
	Sign(msg *iso8583.Message) error
}

// Notifier publishes a payload to a topic under a key.
type Notifier interface {
	Send(ctx context.Context, topic, key string, payload any) error
}

// Metrics receives lifecycle observations.
type Metrics interface {
	TransactionCompleted(state State)
	ReversalSent(reason string)
	ResponderDuration(d time.Duration)
}

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, string, string, any) error { return nil }

type nopMetrics struct{}

func (nopMetrics) TransactionCompleted(State)      {}
func (nopMetrics) ReversalSent(string)             {}
func (nopMetrics) ResponderDuration(time.Duration) {}
