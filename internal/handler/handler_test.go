package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkadit/payswitch/internal/repository"
	"github.com/mkadit/payswitch/internal/stan"
	"github.com/mkadit/payswitch/internal/transaction"
)

var testNow = time.Date(2025, 10, 18, 10, 30, 0, 0, time.UTC)

type processorFunc func(ctx context.Context, req *transaction.Request) (*transaction.Result, error)

func (f processorFunc) Process(ctx context.Context, req *transaction.Request) (*transaction.Result, error) {
	return f(ctx, req)
}

func newTestHandler(p Processor) *Handler {
	return New(p,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return testNow }),
	)
}

func TestHandle_EndToEnd(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	responder := transaction.NewMockResponder(
		transaction.WithDelay(0, 0),
		transaction.WithRand(rand.New(rand.NewPCG(7, 7))),
		transaction.WithMockLogger(logger),
	)
	svc := transaction.NewService(stan.New(), repository.NewMemory(), responder, transaction.WithLogger(logger))
	h := newTestHandler(svc)

	out, err := h.Handle(context.Background(),
		[]byte(`{"msgType":"SALE","trmId":"T001","transactionId":"1","amount":100.0,"transactionType":"SALE"}`))
	require.NoError(t, err)

	var res transaction.Result
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, "1", res.TransactionID)
	assert.Equal(t, "T001", res.TerminalID)
	assert.Regexp(t, `^\d{6}$`, res.STAN)
	assert.Contains(t, []string{transaction.StatusApproved, transaction.StatusDeclined}, res.Status)
	assert.InDelta(t, 100.0, res.Amount, 1e-9)
}

func TestHandle_InvalidJSON(t *testing.T) {
	called := false
	h := newTestHandler(processorFunc(func(context.Context, *transaction.Request) (*transaction.Result, error) {
		called = true
		return nil, nil
	}))

	out, err := h.Handle(context.Background(), []byte("\x9f\x26\x08garbage"))
	require.NoError(t, err)
	assert.False(t, called)

	var f Failure
	require.NoError(t, json.Unmarshal(out, &f))
	assert.Equal(t, transaction.StatusFailed, f.Status)
	assert.Equal(t, FailureResponseCode, f.ResponseCode)
	assert.Equal(t, transaction.StateFailed, f.TransactionState)
	assert.Contains(t, f.ResponseMessage, "invalid JSON")
	assert.Equal(t, testNow.Format(time.RFC3339), f.Timestamp)
}

func TestHandle_ProcessingFailure(t *testing.T) {
	h := newTestHandler(processorFunc(func(context.Context, *transaction.Request) (*transaction.Result, error) {
		return nil, fmt.Errorf("%w: insert: %w", transaction.ErrPersistence, fmt.Errorf("dial tcp: refused"))
	}))

	out, err := h.Handle(context.Background(),
		[]byte(`{"msgType":"SALE","trmId":"T001","transactionId":"42","amount":5,"transactionType":"SALE"}`+"\n"))
	require.NoError(t, err)

	var f Failure
	require.NoError(t, json.Unmarshal(out, &f))
	assert.Equal(t, "42", f.TransactionID)
	assert.Equal(t, "T001", f.TerminalID)
	assert.Equal(t, transaction.ErrPersistence.Error(), f.ResponseMessage)
}

func TestHandle_PassesCardData(t *testing.T) {
	var got *transaction.Request
	h := newTestHandler(processorFunc(func(_ context.Context, req *transaction.Request) (*transaction.Result, error) {
		got = req
		return &transaction.Result{Status: transaction.StatusApproved, TransactionID: req.TransactionID}, nil
	}))

	payload := `{"msgType":"SALE","trmId":"T001","transactionId":"9","amount":"12.50","transactionType":"SALE",
		"cardData":"{\"emvData\":{\"de55\":\"5A0841111111111111114F07A0000000031010\"}}"}`
	out, err := h.Handle(context.Background(), []byte(payload))
	require.NoError(t, err)
	require.NotNil(t, got)

	de55, ok := got.DE55()
	require.True(t, ok)
	assert.Equal(t, "5A0841111111111111114F07A0000000031010", de55)
	assert.JSONEq(t, `{"status":"APPROVED","transactionId":"9","terminalId":"","responseCode":null,
		"authorizationCode":null,"rrn":null,"responseMessage":"","transactionState":"","amount":0,"timestamp":""}`, string(out))
}
