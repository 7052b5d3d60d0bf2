package transaction

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mkadit/payswitch/emv"
	"github.com/mkadit/payswitch/iso8583"
)

// Kind is a transaction type offered by terminals.
type Kind int

const (
	KindPurchase Kind = iota
	KindCashWithdrawal
	KindBalanceInquiry
	KindRefund
	KindPreAuth
	KindPreAuthCompletion
	KindVoid
	KindReversal
	KindCashAdvance
	KindQRPayment
)

var kindNames = map[Kind]string{
	KindPurchase:          "PURCHASE",
	KindCashWithdrawal:    "CASH_WITHDRAWAL",
	KindBalanceInquiry:    "BALANCE_INQUIRY",
	KindRefund:            "REFUND",
	KindPreAuth:           "PRE_AUTH",
	KindPreAuthCompletion: "PRE_AUTH_COMPLETION",
	KindVoid:              "VOID",
	KindReversal:          "REVERSAL",
	KindCashAdvance:       "CASH_ADVANCE",
	KindQRPayment:         "QR_PAYMENT",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// terminalKeywords are the transaction type keywords terminals send.
var terminalKeywords = map[string]Kind{
	"SALE":            KindPurchase,
	"PURCHASE":        KindPurchase,
	"CASH_WITHDRAWAL": KindCashWithdrawal,
	"BALANCE_INQUIRY": KindBalanceInquiry,
	"REFUND":          KindRefund,
}

// KindForKeyword maps a terminal keyword. Unknown keywords are purchases.
func KindForKeyword(keyword string) (Kind, bool) {
	k, ok := terminalKeywords[strings.ToUpper(strings.TrimSpace(keyword))]
	if !ok {
		return KindPurchase, false
	}
	return k, true
}

// Profile describes the message shape expected for a transaction kind.
type Profile struct {
	Kind           Kind
	Name           string
	Description    string
	MTI            string
	ProcessingCode string
	// EMVTransactionType is the tag 9C value for this kind.
	EMVTransactionType byte

	RequiredFields   []int
	OptionalFields   []int
	RequiredEMVTags  []string
	DE55RequiredTags []string
}

var (
	chipRequiredTags = []string{"5A", "5F24", "9F26", "9F27", "9F10", "9F36", "9F37", "95"}
	chipDE55Tags     = []string{"9F26", "9F27", "9F10", "9F37", "9F36", "95", "9A", "9C", "9F02", "5F2A", "82", "9F1A", "9F34", "9F33", "9F35", "4F", "84"}
	lightDE55Tags    = []string{"4F", "9A", "9C", "9F02", "5F2A", "9F1A"}
)

var profiles = sync.OnceValue(func() map[Kind]*Profile {
	list := []*Profile{
		{
			Kind: KindPurchase, Name: "Purchase", Description: "Standard purchase transaction",
			MTI: iso8583.MTIFinancialRequest, ProcessingCode: "000000", EMVTransactionType: 0x00,
			RequiredFields:   []int{2, 3, 4, 11, 12, 13, 14, 22, 23, 25, 35, 41, 42, 49, 55},
			OptionalFields:   []int{32, 37, 38, 39, 43, 52, 54},
			RequiredEMVTags:  chipRequiredTags,
			DE55RequiredTags: chipDE55Tags,
		},
		{
			Kind: KindCashWithdrawal, Name: "Cash Withdrawal", Description: "ATM cash withdrawal transaction",
			MTI: iso8583.MTIFinancialRequest, ProcessingCode: "010000", EMVTransactionType: 0x01,
			RequiredFields:   []int{2, 3, 4, 11, 12, 13, 14, 22, 23, 25, 35, 41, 42, 49, 52, 55},
			OptionalFields:   []int{32, 37, 38, 39, 43, 54},
			RequiredEMVTags:  chipRequiredTags,
			DE55RequiredTags: chipDE55Tags,
		},
		{
			Kind: KindBalanceInquiry, Name: "Balance Inquiry", Description: "Balance inquiry transaction",
			MTI: iso8583.MTIFinancialRequest, ProcessingCode: "310000", EMVTransactionType: 0x31,
			RequiredFields:   []int{2, 3, 11, 12, 13, 14, 22, 35, 41, 42, 49},
			OptionalFields:   []int{23, 25, 32, 37, 38, 39, 43, 52, 54, 55},
			RequiredEMVTags:  []string{"5A", "5F24"},
			DE55RequiredTags: []string{"4F", "9A", "9C", "5F2A", "9F1A"},
		},
		{
			Kind: KindRefund, Name: "Refund", Description: "Refund/Return transaction",
			MTI: iso8583.MTIFinancialRequest, ProcessingCode: "200000", EMVTransactionType: 0x20,
			RequiredFields:   []int{2, 3, 4, 11, 12, 13, 14, 22, 25, 35, 37, 41, 42, 49},
			OptionalFields:   []int{23, 32, 38, 39, 43, 55},
			RequiredEMVTags:  []string{"5A", "5F24"},
			DE55RequiredTags: lightDE55Tags,
		},
		{
			Kind: KindPreAuth, Name: "Pre-Authorization", Description: "Pre-authorization hold transaction",
			MTI: iso8583.MTIAuthorizationRequest, ProcessingCode: "000000", EMVTransactionType: 0x00,
			RequiredFields:   []int{2, 3, 4, 11, 12, 13, 14, 22, 23, 25, 35, 41, 42, 49, 55},
			OptionalFields:   []int{32, 37, 38, 39, 43, 52, 54},
			RequiredEMVTags:  chipRequiredTags,
			DE55RequiredTags: chipDE55Tags,
		},
		{
			Kind: KindPreAuthCompletion, Name: "Pre-Auth Completion", Description: "Completion of an earlier pre-authorization",
			MTI: iso8583.MTIFinancialRequest, ProcessingCode: "000000", EMVTransactionType: 0x00,
			RequiredFields: []int{2, 3, 4, 11, 12, 13, 22, 25, 37, 38, 41, 42, 49},
			OptionalFields: []int{14, 23, 32, 35, 39, 43, 55},
		},
		{
			Kind: KindVoid, Name: "Void", Description: "Void/Cancel transaction",
			MTI: iso8583.MTIReversalRequest, ProcessingCode: "000000", EMVTransactionType: 0x00,
			RequiredFields:   []int{2, 3, 4, 11, 12, 13, 22, 25, 37, 38, 41, 42, 49},
			OptionalFields:   []int{14, 23, 32, 35, 39, 43, 55},
			RequiredEMVTags:  []string{"5A"},
			DE55RequiredTags: lightDE55Tags,
		},
		{
			Kind: KindReversal, Name: "Reversal", Description: "Reversal of an unanswered or failed transaction",
			MTI: iso8583.MTIReversalRequest, ProcessingCode: "000000", EMVTransactionType: 0x00,
			RequiredFields: []int{3, 4, 7, 11, 12, 13, 41, 49, 56, 90},
			OptionalFields: []int{2, 42},
		},
		{
			Kind: KindCashAdvance, Name: "Cash Advance", Description: "Over-the-counter cash advance",
			MTI: iso8583.MTIFinancialRequest, ProcessingCode: "010000", EMVTransactionType: 0x01,
			RequiredFields:   []int{2, 3, 4, 11, 12, 13, 14, 22, 25, 35, 41, 42, 49, 55},
			OptionalFields:   []int{23, 32, 37, 38, 39, 43, 52},
			RequiredEMVTags:  chipRequiredTags,
			DE55RequiredTags: chipDE55Tags,
		},
		{
			Kind: KindQRPayment, Name: "QR Payment", Description: "QR code based payment",
			MTI: iso8583.MTIFinancialRequest, ProcessingCode: "000000", EMVTransactionType: 0x00,
			RequiredFields: []int{3, 4, 11, 12, 13, 25, 41, 42, 49},
			OptionalFields: []int{2, 32, 37, 38, 39, 43, 102, 103},
		},
	}

	m := make(map[Kind]*Profile, len(list))
	for _, p := range list {
		m[p.Kind] = p
	}
	return m
})

// ProfileFor returns the profile for k.
func ProfileFor(k Kind) (*Profile, bool) {
	p, ok := profiles()[k]
	return p, ok
}

// Profiles returns every profile ordered by kind.
func Profiles() []*Profile {
	m := profiles()
	out := make([]*Profile, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// ProfileCheck lists what a message lacks relative to its profile.
type ProfileCheck struct {
	MissingFields   []int
	MissingEMVTags  []string
	MissingDE55Tags []string
	MissingOptional []int
}

// Complete reports whether every required field and tag is present.
// Optional fields do not count.
func (c ProfileCheck) Complete() bool {
	return len(c.MissingFields) == 0 && len(c.MissingEMVTags) == 0 && len(c.MissingDE55Tags) == 0
}

// Check compares msg and its parsed chip data against the profile. chip may
// be nil when the request carried no DE55.
func (p *Profile) Check(msg *iso8583.Message, chip *emv.ParsedEmvData) ProfileCheck {
	var c ProfileCheck
	for _, de := range p.RequiredFields {
		if !msg.HasField(de) {
			c.MissingFields = append(c.MissingFields, de)
		}
	}
	for _, de := range p.OptionalFields {
		if !msg.HasField(de) {
			c.MissingOptional = append(c.MissingOptional, de)
		}
	}
	c.MissingEMVTags = missingTags(chip, p.RequiredEMVTags)
	c.MissingDE55Tags = missingTags(chip, p.DE55RequiredTags)
	return c
}

func missingTags(chip *emv.ParsedEmvData, tags []string) []string {
	var missing []string
	for _, tag := range tags {
		if chip == nil {
			missing = append(missing, tag)
			continue
		}
		if _, ok := chip.Get(tag); !ok {
			missing = append(missing, tag)
		}
	}
	return missing
}

// requestValidator covers the fields the switch builds itself, so it holds
// for every kind regardless of the card data a terminal sent.
var requestValidator = sync.OnceValue(func() *iso8583.Validator {
	return iso8583.NewValidator(
		iso8583.FieldProcessingCode,
		iso8583.FieldAmount,
		iso8583.FieldSTAN,
		iso8583.FieldLocalTime,
		iso8583.FieldLocalDate,
		iso8583.FieldPOSEntryMode,
		iso8583.FieldPOSCondition,
		iso8583.FieldTerminalID,
		iso8583.FieldCurrency,
	).
		AddRule(iso8583.FieldPAN, &iso8583.NumericRule{}).
		AddRule(iso8583.FieldPAN, &iso8583.LengthRule{MinLength: 12, MaxLength: 19}).
		AddRule(iso8583.FieldTerminalID, &iso8583.LengthRule{MinLength: 1, MaxLength: 8}).
		AddRule(iso8583.FieldAmount, &iso8583.NumericRule{}).
		AddRule(iso8583.FieldICCData, &iso8583.HexRule{})
})
