package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkadit/payswitch/internal/stan"
	"github.com/mkadit/payswitch/iso8583"
)

// Reason is why a transaction is being reversed.
type Reason int

const (
	ReasonTimeout Reason = iota
	ReasonCustomerCancellation
	ReasonSuspectedMalfunction
	ReasonUnableToDeliver
	ReasonOther
)

// Code is the value carried in DE56.
func (r Reason) Code() string {
	switch r {
	case ReasonTimeout, ReasonUnableToDeliver:
		return "68"
	case ReasonCustomerCancellation:
		return "17"
	case ReasonSuspectedMalfunction:
		return "96"
	default:
		return "99"
	}
}

func (r Reason) Description() string {
	switch r {
	case ReasonTimeout:
		return "Timeout - no response received"
	case ReasonCustomerCancellation:
		return "Customer cancellation"
	case ReasonSuspectedMalfunction:
		return "Suspected malfunction"
	case ReasonUnableToDeliver:
		return "Unable to deliver response"
	default:
		return "Other reason"
	}
}

func (r Reason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonCustomerCancellation:
		return "customer_cancellation"
	case ReasonSuspectedMalfunction:
		return "suspected_malfunction"
	case ReasonUnableToDeliver:
		return "unable_to_deliver"
	default:
		return "other"
	}
}

// reversedFields are copied from the original record into a 0400.
var reversedFields = []int{
	iso8583.FieldPAN,
	iso8583.FieldProcessingCode,
	iso8583.FieldAmount,
	iso8583.FieldTerminalID,
	iso8583.FieldMerchantID,
	iso8583.FieldCurrency,
}

// Reversal is a sent 0400 and the issuer's reply.
type Reversal struct {
	Original *Record
	Request  *iso8583.Message
	Reply    *iso8583.Message
	Reason   Reason
}

// ReversalService builds and sends 0400 reversals for earlier transactions.
type ReversalService struct {
	stan      *stan.Generator
	repo      Repository
	responder Responder
	packager  *iso8583.Packager
	signer    Signer
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
	timeout   time.Duration
}

// NewReversalService shares the generator, repository and responder of the
// orchestrator; options are those of NewService.
func NewReversalService(gen *stan.Generator, repo Repository, responder Responder, opts ...Option) *ReversalService {
	cfg := newOptions(opts)
	return &ReversalService{
		stan:      gen,
		repo:      repo,
		responder: responder,
		packager:  cfg.packager,
		signer:    cfg.signer,
		metrics:   cfg.metrics,
		logger:    cfg.logger,
		now:       cfg.now,
		timeout:   cfg.responseTimeout,
	}
}

// CreateReversal builds the 0400 for original. It performs no I/O besides
// drawing a fresh STAN.
func (s *ReversalService) CreateReversal(original *Record, reason Reason) (*iso8583.Message, error) {
	now := s.now()
	b := iso8583.NewBuilder(iso8583.MTIReversalRequest).
		STAN(s.stan.Next()).
		Field(iso8583.FieldTransmissionDateTime, now.Format("0102150405")).
		Field(iso8583.FieldLocalTime, now.Format("150405")).
		Field(iso8583.FieldLocalDate, now.Format("0102"))

	for _, de := range reversedFields {
		if v, ok := original.Field(de); ok {
			b.Field(de, v)
		}
	}

	msg, err := b.
		Field(iso8583.FieldOriginalDataElements, OriginalDataElements(original)).
		Field(iso8583.FieldReversalReason, reason.Code()).
		Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildMessage, err)
	}
	return msg, nil
}

// OriginalDataElements renders DE90 for original: local date, local time
// and the unique transaction number. DE90 is numeric, so a unique number
// that is not all digits is replaced by the original STAN.
func OriginalDataElements(original *Record) string {
	ref := original.UniqueNo
	if !isDigits(ref) || len(ref) > 32 {
		ref = original.STAN()
	}
	return original.FieldOr(iso8583.FieldLocalDate, "0000") +
		original.FieldOr(iso8583.FieldLocalTime, "000000") +
		ref
}

// AutoReverseTimeout reverses today's transaction with the given STAN after
// the issuer failed to answer.
func (s *ReversalService) AutoReverseTimeout(ctx context.Context, originalSTAN string) (*Reversal, error) {
	return s.reverse(ctx, originalSTAN, ReasonTimeout)
}

// ManualReverse reverses today's transaction with the given STAN.
func (s *ReversalService) ManualReverse(ctx context.Context, originalSTAN string, reason Reason) (*Reversal, error) {
	return s.reverse(ctx, originalSTAN, reason)
}

// MarkAsReversed stamps the original row with RC 99 and state REVERSED.
func (s *ReversalService) MarkAsReversed(ctx context.Context, key Key) error {
	err := s.repo.UpdateResponse(ctx, key, ResponseUpdate{ResponseCode: RCReversed, State: StateReversed})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	s.logger.InfoContext(ctx, "transaction marked as reversed",
		slog.String("date", key.Date),
		slog.String("time", key.Time),
		slog.String("transaction_id", key.UniqueNo),
	)
	return nil
}

func (s *ReversalService) reverse(ctx context.Context, originalSTAN string, reason Reason) (*Reversal, error) {
	original, err := s.repo.FindByStanToday(ctx, originalSTAN)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	if err := original.State.Reversible(); err != nil {
		return nil, err
	}

	req, err := s.CreateReversal(original, reason)
	if err != nil {
		return nil, err
	}
	if s.signer != nil {
		if err := s.signer.Sign(req); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBuildMessage, err)
		}
	}
	if _, err := s.packager.Pack(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildMessage, err)
	}

	now := s.now()
	rec := NewRecord(req, uuid.NewString(), original.TerminalID, now)
	if err := s.repo.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	if err := s.repo.UpdateResponse(ctx, rec.Key, ResponseUpdate{State: StateSent}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	s.logger.InfoContext(ctx, "sending reversal",
		slog.String("original_stan", originalSTAN),
		slog.String("reversal_stan", req.FieldOr(iso8583.FieldSTAN, "")),
		slog.String("reason", reason.Description()),
		slog.Any("iso", req),
	)

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	reply, err := s.responder.Respond(rctx, req)
	if err != nil {
		state := StateFailed
		if errors.Is(err, context.DeadlineExceeded) {
			state = StateTimeout
		}
		if uerr := s.repo.UpdateResponse(ctx, rec.Key, ResponseUpdate{State: state}); uerr != nil {
			s.logger.ErrorContext(ctx, "failed to record reversal outcome", slog.Any("error", uerr))
		}
		return nil, fmt.Errorf("%w: reversal of %s: %w", ErrResponder, originalSTAN, err)
	}

	raw, present := reply.Field(iso8583.FieldResponseCode)
	replyState, _, _ := StateForResponse(raw, present)
	if err := s.repo.UpdateResponse(ctx, rec.Key, ResponseUpdate{
		ResponseCode: raw,
		RRN:          reply.FieldOr(iso8583.FieldRRN, ""),
		State:        replyState,
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	if err := s.MarkAsReversed(ctx, original.Key); err != nil {
		return nil, err
	}
	s.metrics.ReversalSent(reason.String())

	return &Reversal{Original: original, Request: req, Reply: reply, Reason: reason}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
