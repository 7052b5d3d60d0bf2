package transaction

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Request is the JSON envelope a terminal sends for a card transaction.
type Request struct {
	MsgType         string          `json:"msgType"`
	TerminalID      string          `json:"trmId"`
	TransactionID   string          `json:"transactionId"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionType string          `json:"transactionType"`
	MerchantID      string          `json:"merchantId,omitempty"`
	CardData        *CardData       `json:"cardData,omitempty"`
	QRData          string          `json:"qrData,omitempty"`
	AdditionalData  string          `json:"additionalData,omitempty"`
}

// CardData wraps the chip data captured by the terminal.
type CardData struct {
	EmvData EmvData `json:"emvData"`
}

type EmvData struct {
	DE55       string `json:"de55"`
	DE55Length *int   `json:"de55Length,omitempty"`
}

// UnmarshalJSON accepts either an object or a string holding the object's
// JSON text; terminals in the field send both.
func (c *CardData) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		if inner == "" {
			return nil
		}
		data = []byte(inner)
	}

	type plain CardData
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCard, err)
	}
	*c = CardData(p)
	return nil
}

// DE55 returns the chip data hex, if any.
func (r *Request) DE55() (string, bool) {
	if r.CardData == nil || r.CardData.EmvData.DE55 == "" {
		return "", false
	}
	return r.CardData.EmvData.DE55, true
}

// Kind resolves the transaction kind from transactionType, falling back to
// msgType when transactionType is not a known keyword.
func (r *Request) Kind() Kind {
	if k, ok := KindForKeyword(r.TransactionType); ok {
		return k
	}
	k, _ := KindForKeyword(r.MsgType)
	return k
}

// Status values of the reply envelope.
const (
	StatusApproved = "APPROVED"
	StatusDeclined = "DECLINED"
	StatusFailed   = "FAILED"
)

// Result is the reply envelope written back to the terminal.
type Result struct {
	Status            string  `json:"status"`
	TransactionID     string  `json:"transactionId"`
	TerminalID        string  `json:"terminalId"`
	STAN              string  `json:"stan,omitempty"`
	ResponseCode      *string `json:"responseCode"`
	AuthorizationCode *string `json:"authorizationCode"`
	RRN               *string `json:"rrn"`
	ResponseMessage   string  `json:"responseMessage"`
	TransactionState  State   `json:"transactionState"`
	Amount            float64 `json:"amount"`
	Timestamp         string  `json:"timestamp"`
}

// Approved reports whether the issuer approved the transaction.
func (r *Result) Approved() bool {
	return r.Status == StatusApproved
}

func optional(v string, ok bool) *string {
	if !ok {
		return nil
	}
	return &v
}
