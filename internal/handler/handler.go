// Package handler turns one terminal payload into one reply payload.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkadit/payswitch/emv"
	"github.com/mkadit/payswitch/internal/transaction"
	"github.com/mkadit/payswitch/iso8583"
)

// FailureResponseCode is DE39 reported in a failure envelope.
const FailureResponseCode = "96"

// Processor runs a decoded terminal request.
type Processor interface {
	Process(ctx context.Context, req *transaction.Request) (*transaction.Result, error)
}

// Failure is the reply envelope for a request that could not be decoded or
// processed.
type Failure struct {
	Status           string            `json:"status"`
	TransactionID    string            `json:"transactionId"`
	TerminalID       string            `json:"terminalId"`
	ResponseCode     string            `json:"responseCode"`
	ResponseMessage  string            `json:"responseMessage"`
	TransactionState transaction.State `json:"transactionState"`
	Timestamp        string            `json:"timestamp"`
}

type Handler struct {
	processor Processor
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func New(processor Processor, opts ...Option) *Handler {
	h := &Handler{
		processor: processor,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Handle decodes payload as a terminal request, processes it and returns the
// JSON reply. Every failure is reported as a failure envelope; the returned
// error is only set when the envelope itself could not be encoded.
func (h *Handler) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	payload = bytes.TrimSpace(payload)

	var req transaction.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid terminal message", slog.Int("bytes", len(payload)), slog.Any("error", err))
		return h.failure(req, fmt.Errorf("invalid JSON: %w", err))
	}

	h.logger.InfoContext(ctx, "terminal request",
		slog.String("msg_type", req.MsgType),
		slog.String("terminal_id", req.TerminalID),
		slog.String("transaction_id", req.TransactionID),
		slog.String("amount", req.Amount.String()),
	)
	h.logCard(ctx, &req)

	res, err := h.processor.Process(ctx, &req)
	if err != nil {
		h.logger.ErrorContext(ctx, "transaction failed",
			slog.String("transaction_id", req.TransactionID),
			slog.Any("error", err),
		)
		return h.failure(req, err)
	}
	return json.Marshal(res)
}

func (h *Handler) failure(req transaction.Request, cause error) ([]byte, error) {
	return json.Marshal(Failure{
		Status:           transaction.StatusFailed,
		TransactionID:    req.TransactionID,
		TerminalID:       req.TerminalID,
		ResponseCode:     FailureResponseCode,
		ResponseMessage:  failureMessage(cause),
		TransactionState: transaction.StateFailed,
		Timestamp:        h.now().Format(time.RFC3339),
	})
}

// failureMessage keeps the outermost classification for the terminal;
// detail stays in the log.
func failureMessage(err error) string {
	for _, known := range []error{
		transaction.ErrTimeout,
		transaction.ErrResponder,
		transaction.ErrPersistence,
		transaction.ErrInvalidAmount,
		transaction.ErrInvalidCard,
		transaction.ErrBuildMessage,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

func (h *Handler) logCard(ctx context.Context, req *transaction.Request) {
	de55, ok := req.DE55()
	if !ok {
		return
	}
	chip, err := emv.ParseEmvHex(de55)
	if err != nil {
		return
	}
	attrs := []any{slog.Int("emv_tags", chip.Len())}
	if pan, ok := chip.PAN(); ok {
		attrs = append(attrs, slog.String("pan", iso8583.MaskPAN(pan)))
	}
	if aid, ok := chip.AID(); ok {
		attrs = append(attrs, slog.String("aid", aid))
	}
	h.logger.InfoContext(ctx, "card data", attrs...)
}
