package transaction

// ResponseCode is an ISO8583 DE39 value.
type ResponseCode string

const (
	RCApproved           ResponseCode = "00"
	RCDoNotHonor         ResponseCode = "05"
	RCInvalidTransaction ResponseCode = "12"
	RCInvalidAmount      ResponseCode = "13"
	RCInvalidCardNumber  ResponseCode = "14"
	RCFormatError        ResponseCode = "30"
	RCInsufficientFunds  ResponseCode = "51"
	RCExpiredCard        ResponseCode = "54"
	RCIncorrectPIN       ResponseCode = "55"
	RCNotPermittedCard   ResponseCode = "57"
	RCNotPermittedTerm   ResponseCode = "58"
	RCExceedsLimit       ResponseCode = "61"
	RCIssuerInoperative  ResponseCode = "91"
	RCSystemMalfunction  ResponseCode = "96"
)

// RCReversed is written to DE39 of a record once it has been reversed. It
// is a switch-internal marker, not an issuer reply.
const RCReversed = "99"

var responseDescriptions = map[ResponseCode]string{
	RCApproved:           "Approved",
	RCDoNotHonor:         "Do not honor",
	RCInvalidTransaction: "Invalid transaction",
	RCInvalidAmount:      "Invalid amount",
	RCInvalidCardNumber:  "Invalid card number",
	RCFormatError:        "Format error",
	RCInsufficientFunds:  "Insufficient funds",
	RCExpiredCard:        "Expired card",
	RCIncorrectPIN:       "Incorrect PIN",
	RCNotPermittedCard:   "Transaction not permitted to cardholder",
	RCNotPermittedTerm:   "Transaction not permitted to terminal",
	RCExceedsLimit:       "Exceeds withdrawal amount limit",
	RCIssuerInoperative:  "Issuer or switch inoperative",
	RCSystemMalfunction:  "System malfunction",
}

// ParseResponseCode returns the code when it is one the switch knows.
func ParseResponseCode(s string) (ResponseCode, bool) {
	rc := ResponseCode(s)
	_, ok := responseDescriptions[rc]
	return rc, ok
}

func (rc ResponseCode) String() string {
	return string(rc)
}

func (rc ResponseCode) Description() string {
	if d, ok := responseDescriptions[rc]; ok {
		return d
	}
	return "Unknown response"
}

// State maps a known code to its transaction state: only 00 approves.
func (rc ResponseCode) State() State {
	if rc == RCApproved {
		return StateApproved
	}
	return StateDeclined
}

// StateForResponse maps a raw DE39 value. A missing or unrecognised code is
// a failure and yields no ResponseCode.
func StateForResponse(raw string, present bool) (State, ResponseCode, bool) {
	if !present {
		return StateFailed, "", false
	}
	rc, ok := ParseResponseCode(raw)
	if !ok {
		return StateFailed, "", false
	}
	return rc.State(), rc, true
}

// DescribeResponse returns the description for a raw DE39 value.
func DescribeResponse(raw string) string {
	return ResponseCode(raw).Description()
}
