package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mkadit/payswitch/iso8583"
)

// DefaultSuccessRate is the approval probability of a MockResponder.
const DefaultSuccessRate = 0.9

// echoedFields are copied from the request into every mock reply.
var echoedFields = []int{
	iso8583.FieldPAN,
	iso8583.FieldProcessingCode,
	iso8583.FieldAmount,
	iso8583.FieldSTAN,
	iso8583.FieldLocalTime,
	iso8583.FieldLocalDate,
	iso8583.FieldExpiry,
	iso8583.FieldPOSEntryMode,
	iso8583.FieldTerminalID,
	iso8583.FieldMerchantID,
	iso8583.FieldCurrency,
}

var mockDeclines = []ResponseCode{
	RCDoNotHonor,
	RCInsufficientFunds,
	RCInvalidCardNumber,
	RCExpiredCard,
	RCNotPermittedCard,
}

// MockResponder stands in for the issuer. It approves a configurable share
// of requests and declines the rest with a random decline code.
type MockResponder struct {
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// MockOption configures a MockResponder.
type MockOption func(*MockResponder)

// WithSuccessRate sets the approval probability, clamped to 0..1.
func WithSuccessRate(rate float64) MockOption {
	return func(m *MockResponder) {
		m.successRate = min(max(rate, 0), 1)
	}
}

// WithDelay sets the simulated network latency range. Zero disables it.
func WithDelay(minDelay, maxDelay time.Duration) MockOption {
	return func(m *MockResponder) {
		m.minDelay, m.maxDelay = minDelay, max(minDelay, maxDelay)
	}
}

// WithRand makes draws reproducible.
func WithRand(rng *rand.Rand) MockOption {
	return func(m *MockResponder) {
		m.rng = rng
	}
}

func WithMockClock(now func() time.Time) MockOption {
	return func(m *MockResponder) {
		m.now = now
	}
}

func WithMockLogger(logger *slog.Logger) MockOption {
	return func(m *MockResponder) {
		m.logger = logger
	}
}

func NewMockResponder(opts ...MockOption) *MockResponder {
	m := &MockResponder{
		successRate: DefaultSuccessRate,
		minDelay:    50 * time.Millisecond,
		maxDelay:    500 * time.Millisecond,
		now:         time.Now,
		logger:      slog.Default(),
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Respond waits the simulated latency and builds a reply to req.
func (m *MockResponder) Respond(ctx context.Context, req *iso8583.Message) (*iso8583.Message, error) {
	if d := m.delay(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if !iso8583.IsRequest(req.MTI()) {
		return nil, fmt.Errorf("mock responder: %s is not a request", req.MTI())
	}
	mti, err := iso8583.ResponseMTI(req.MTI())
	if err != nil {
		return nil, fmt.Errorf("mock responder: %w", err)
	}

	now := m.now()
	rc := m.drawResponseCode()

	b := iso8583.NewBuilder(mti).
		CopyFrom(req, echoedFields...).
		Field(iso8583.FieldTransmissionDateTime, now.Format("0102150405")).
		Field(iso8583.FieldRRN, m.rrn(now)).
		ResponseCode(rc.String())
	if rc == RCApproved {
		b.Field(iso8583.FieldAuthCode, m.authCode())
	}

	res, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("mock responder: %w", err)
	}

	m.logger.Info("mock issuer reply",
		slog.String("mti", mti),
		slog.String("stan", res.FieldOr(iso8583.FieldSTAN, "")),
		slog.String("response_code", rc.String()),
		slog.String("description", rc.Description()),
	)
	return res, nil
}

func (m *MockResponder) delay() time.Duration {
	if m.maxDelay <= 0 {
		return 0
	}
	span := int64(m.maxDelay - m.minDelay)
	if span == 0 {
		return m.minDelay
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minDelay + time.Duration(m.rng.Int64N(span))
}

func (m *MockResponder) drawResponseCode() ResponseCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rng.Float64() < m.successRate {
		return RCApproved
	}
	return mockDeclines[m.rng.IntN(len(mockDeclines))]
}

// rrn renders YDDDHH plus six random digits, twelve characters to fit DE37.
func (m *MockResponder) rrn(now time.Time) string {
	m.mu.Lock()
	n := m.rng.IntN(1000000)
	m.mu.Unlock()
	return fmt.Sprintf("%d%03d%02d%06d", now.Year()%10, now.YearDay(), now.Hour(), n)
}

func (m *MockResponder) authCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("%06d", 100000+m.rng.IntN(899999))
}
