package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mkadit/payswitch/emv"
	"github.com/mkadit/payswitch/internal/stan"
	"github.com/mkadit/payswitch/iso8583"
)

const (
	DefaultCurrencyCode    = "704"
	DefaultResponseTimeout = 30 * time.Second

	posEntryChip       = "051"
	posConditionNormal = "00"
	maxAmountDigits    = 12
)

type options struct {
	packager        *iso8583.Packager
	signer          Signer
	notifier        Notifier
	notifyTopic     string
	metrics         Metrics
	logger          *slog.Logger
	now             func() time.Time
	currency        string
	responseTimeout time.Duration
}

// Option configures a Service or ReversalService.
type Option func(*options)

func WithPackager(p *iso8583.Packager) Option {
	return func(o *options) { o.packager = p }
}

// WithSigner signs every request and reversal before it is packed.
func WithSigner(signer Signer) Option {
	return func(o *options) { o.signer = signer }
}

// WithNotifier publishes every final transaction result to topic.
func WithNotifier(n Notifier, topic string) Option {
	return func(o *options) {
		o.notifier = n
		o.notifyTopic = topic
	}
}

func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now for message timestamps and record keys.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCurrency sets the DE49 numeric currency code.
func WithCurrency(code string) Option {
	return func(o *options) { o.currency = code }
}

// WithResponseTimeout bounds each responder call.
func WithResponseTimeout(d time.Duration) Option {
	return func(o *options) { o.responseTimeout = d }
}

func newOptions(opts []Option) options {
	o := options{
		packager:        iso8583.DefaultPackager(),
		notifier:        nopNotifier{},
		metrics:         nopMetrics{},
		logger:          slog.Default(),
		now:             time.Now,
		currency:        DefaultCurrencyCode,
		responseTimeout: DefaultResponseTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func (o options) sign(msg *iso8583.Message) error {
	if o.signer == nil {
		return nil
	}
	return o.signer.Sign(msg)
}

// Service drives a terminal request through the ISO8583 lifecycle: STAN
// assignment, message build, persistence, issuer round trip, and result.
type Service struct {
	stan      *stan.Generator
	repo      Repository
	responder Responder
	reversals *ReversalService
	opts      options
}

func NewService(gen *stan.Generator, repo Repository, responder Responder, opts ...Option) *Service {
	return &Service{
		stan:      gen,
		repo:      repo,
		responder: responder,
		reversals: NewReversalService(gen, repo, responder, opts...),
		opts:      newOptions(opts),
	}
}

// Reversals returns the reversal service sharing this orchestrator's
// generator, repository and responder.
func (s *Service) Reversals() *ReversalService {
	return s.reversals
}

// Process runs one terminal request. The record is written in state SENT
// before the responder is called; persistence and responder failures abort
// with an error wrapping ErrPersistence or ErrResponder.
func (s *Service) Process(ctx context.Context, req *Request) (*Result, error) {
	logger := s.opts.logger.With(
		slog.String("transaction_id", req.TransactionID),
		slog.String("terminal_id", req.TerminalID),
	)

	amount, err := MinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}

	stanValue := s.stan.Next()
	logger = logger.With(slog.String("stan", stanValue))
	now := s.opts.now()

	msg, chip, err := s.BuildRequest(req, stanValue, amount, now)
	if err != nil {
		return nil, err
	}
	if err := requestValidator().Validate(msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildMessage, err)
	}
	if profile, ok := ProfileFor(req.Kind()); ok {
		check := profile.Check(msg, chip)
		if !check.Complete() {
			logger.WarnContext(ctx, "request incomplete for profile",
				slog.String("profile", profile.Name),
				slog.Any("missing_fields", check.MissingFields),
				slog.Any("missing_emv_tags", check.MissingEMVTags),
				slog.Any("missing_de55_tags", check.MissingDE55Tags),
			)
		}
		if len(check.MissingOptional) > 0 {
			logger.DebugContext(ctx, "optional fields absent",
				slog.String("profile", profile.Name),
				slog.Any("fields", check.MissingOptional),
			)
		}
	}

	if err := s.opts.sign(msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildMessage, err)
	}
	wire, err := s.opts.packager.Build(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildMessage, err)
	}
	logger.DebugContext(ctx, "iso8583 request built", slog.Any("iso", msg), slog.Int("wire_hex_len", len(wire)))
	if chip != nil {
		logger.DebugContext(ctx, "chip data", slog.Any("emv", chip))
	}

	rec := NewRecord(msg, req.TransactionID, req.TerminalID, now)
	if err := s.repo.Insert(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "failed to save transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: insert: %w", ErrPersistence, err)
	}
	if err := s.repo.UpdateResponse(ctx, rec.Key, ResponseUpdate{State: StateSent}); err != nil {
		return nil, fmt.Errorf("%w: mark sent: %w", ErrPersistence, err)
	}

	reply, err := s.send(ctx, msg)
	if err != nil {
		return nil, s.handleResponderError(ctx, logger, rec, err)
	}

	raw, present := reply.Field(iso8583.FieldResponseCode)
	state, _, _ := StateForResponse(raw, present)
	authCode, hasAuth := reply.Field(iso8583.FieldAuthCode)
	rrn, hasRRN := reply.Field(iso8583.FieldRRN)

	logger.InfoContext(ctx, "issuer reply received",
		slog.String("response_code", raw),
		slog.String("state", state.String()),
	)

	if err := s.repo.UpdateResponse(ctx, rec.Key, ResponseUpdate{
		ResponseCode: raw,
		AuthCode:     authCode,
		RRN:          rrn,
		State:        state,
	}); err != nil {
		return nil, fmt.Errorf("%w: update response: %w", ErrPersistence, err)
	}

	status := StatusDeclined
	if state == StateApproved {
		status = StatusApproved
	}
	result := &Result{
		Status:            status,
		TransactionID:     req.TransactionID,
		TerminalID:        req.TerminalID,
		STAN:              stanValue,
		ResponseCode:      optional(raw, present),
		AuthorizationCode: optional(authCode, hasAuth),
		RRN:               optional(rrn, hasRRN),
		ResponseMessage:   DescribeResponse(raw),
		TransactionState:  state,
		Amount:            req.Amount.InexactFloat64(),
		Timestamp:         s.opts.now().Format(time.RFC3339),
	}

	s.opts.metrics.TransactionCompleted(state)
	s.notify(ctx, logger, result)

	logger.InfoContext(ctx, "transaction completed", slog.String("state", state.String()))
	return result, nil
}

func (s *Service) send(ctx context.Context, msg *iso8583.Message) (*iso8583.Message, error) {
	rctx, cancel := context.WithTimeout(ctx, s.opts.responseTimeout)
	defer cancel()

	start := time.Now()
	reply, err := s.responder.Respond(rctx, msg)
	s.opts.metrics.ResponderDuration(time.Since(start))
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, errors.New("empty reply")
	}
	return reply, nil
}

// handleResponderError records the failed round trip. A deadline on the
// responder call (not on the caller's context) marks the row TIMEOUT and
// triggers an automatic reversal.
func (s *Service) handleResponderError(ctx context.Context, logger *slog.Logger, rec *Record, cause error) error {
	timedOut := errors.Is(cause, context.DeadlineExceeded) && ctx.Err() == nil
	state := StateFailed
	if timedOut {
		state = StateTimeout
	}

	// The caller's context may be gone; the row must still be closed out.
	uctx := context.WithoutCancel(ctx)
	if err := s.repo.UpdateResponse(uctx, rec.Key, ResponseUpdate{State: state}); err != nil {
		logger.ErrorContext(ctx, "failed to record responder failure", slog.Any("error", err))
	}
	s.opts.metrics.TransactionCompleted(state)

	if !timedOut {
		logger.ErrorContext(ctx, "responder failed", slog.Any("error", cause))
		return fmt.Errorf("%w: %w", ErrResponder, cause)
	}

	logger.WarnContext(ctx, "issuer did not answer, reversing", slog.Duration("timeout", s.opts.responseTimeout))
	if rev, err := s.reversals.AutoReverseTimeout(uctx, rec.STAN()); err != nil {
		logger.ErrorContext(ctx, "automatic reversal failed", slog.Any("error", err))
	} else {
		logger.InfoContext(ctx, "automatic reversal sent",
			slog.String("reversal_stan", rev.Request.FieldOr(iso8583.FieldSTAN, "")),
			slog.String("reply_code", rev.Reply.FieldOr(iso8583.FieldResponseCode, "")),
		)
	}
	return fmt.Errorf("%w: %w", ErrTimeout, cause)
}

// BuildRequest assembles the 0200 for req. chip is nil when the request
// carries no DE55 or its DE55 is not valid BER-TLV.
func (s *Service) BuildRequest(req *Request, stanValue, amount string, now time.Time) (*iso8583.Message, *emv.ParsedEmvData, error) {
	kind := req.Kind()
	profile, _ := ProfileFor(kind)

	b := iso8583.NewBuilder(iso8583.MTIFinancialRequest).
		ProcessingCode(profile.ProcessingCode).
		Amount(amount).
		Field(iso8583.FieldTransmissionDateTime, now.Format("0102150405")).
		STAN(stanValue).
		Field(iso8583.FieldLocalTime, now.Format("150405")).
		Field(iso8583.FieldLocalDate, now.Format("0102")).
		Field(iso8583.FieldPOSEntryMode, posEntryChip).
		Field(iso8583.FieldPOSCondition, posConditionNormal).
		TerminalID(req.TerminalID).
		Field(iso8583.FieldCurrency, s.opts.currency)
	if req.MerchantID != "" {
		b.MerchantID(req.MerchantID)
	}

	var chip *emv.ParsedEmvData
	if de55, ok := req.DE55(); ok {
		parsed, err := emv.ParseEmvHex(de55)
		switch {
		case errors.Is(err, emv.ErrInvalidHex):
			return nil, nil, fmt.Errorf("%w: DE55: %w", ErrInvalidCard, err)
		case err != nil:
			// DE55 is forwarded as captured; only the enrichment is skipped.
			s.opts.logger.Warn("chip data is not valid BER-TLV, forwarding DE55 without card fields",
				slog.String("transaction_id", req.TransactionID),
				slog.Any("error", err),
			)
		default:
			chip = parsed
		}
		b.Field(iso8583.FieldICCData, hexNormalize(de55))
	}

	if chip != nil {
		if pan, ok := chip.PAN(); ok {
			b.PAN(pan)
		}
		if expiry, ok := chip.ExpiryYYMM(); ok {
			b.Field(iso8583.FieldExpiry, expiry)
		}
		if seq, ok := chip.PANSequence(); ok {
			b.Field(iso8583.FieldCardSequence, seq)
		}
	}

	msg, err := b.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrBuildMessage, err)
	}
	return msg, chip, nil
}

// MinorUnits renders amount as the 12-digit DE4 value in minor units.
func MinorUnits(amount decimal.Decimal) (string, error) {
	if amount.IsNegative() {
		return "", fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, amount)
	}
	minor := amount.Shift(2).Round(0)
	s := minor.StringFixed(0)
	if len(s) > maxAmountDigits {
		return "", fmt.Errorf("%w: %s exceeds %d digits", ErrInvalidAmount, amount, maxAmountDigits)
	}
	return strings.Repeat("0", maxAmountDigits-len(s)) + s, nil
}

// PaymentEvent is the notification published for a completed transaction.
type PaymentEvent struct {
	EventID           string  `json:"eventId"`
	TransactionID     string  `json:"transactionId"`
	TerminalID        string  `json:"terminalId"`
	STAN              string  `json:"stan"`
	Status            string  `json:"status"`
	TransactionState  State   `json:"transactionState"`
	ResponseCode      *string `json:"responseCode"`
	AuthorizationCode *string `json:"authorizationCode"`
	RRN               *string `json:"rrn"`
	Amount            float64 `json:"amount"`
	Timestamp         string  `json:"timestamp"`
}

func (s *Service) notify(ctx context.Context, logger *slog.Logger, r *Result) {
	event := PaymentEvent{
		EventID:           uuid.NewString(),
		TransactionID:     r.TransactionID,
		TerminalID:        r.TerminalID,
		STAN:              r.STAN,
		Status:            r.Status,
		TransactionState:  r.TransactionState,
		ResponseCode:      r.ResponseCode,
		AuthorizationCode: r.AuthorizationCode,
		RRN:               r.RRN,
		Amount:            r.Amount,
		Timestamp:         r.Timestamp,
	}
	if err := s.opts.notifier.Send(ctx, s.opts.notifyTopic, r.TransactionID, event); err != nil {
		logger.WarnContext(ctx, "failed to publish payment result", slog.Any("error", err))
	}
}

func hexNormalize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			continue
		case c >= 'a' && c <= 'f':
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
