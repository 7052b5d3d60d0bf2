package iso8583

const (
	MTIAuthorizationRequest  = "0100"
	MTIAuthorizationResponse = "0110"
	MTIFinancialRequest      = "0200"
	MTIFinancialResponse     = "0210"
	MTIFinancialAdvice       = "0220"
	MTIReversalRequest       = "0400"
	MTIReversalResponse      = "0410"
	MTINetworkRequest        = "0800"
	MTINetworkResponse       = "0810"
)

// Data element numbers referenced by name elsewhere in the module.
const (
	FieldBitmap               = 1
	FieldPAN                  = 2
	FieldProcessingCode       = 3
	FieldAmount               = 4
	FieldTransmissionDateTime = 7
	FieldSTAN                 = 11
	FieldLocalTime            = 12
	FieldLocalDate            = 13
	FieldExpiry               = 14
	FieldPOSEntryMode         = 22
	FieldCardSequence         = 23
	FieldPOSCondition         = 25
	FieldTrack2               = 35
	FieldRRN                  = 37
	FieldAuthCode             = 38
	FieldResponseCode         = 39
	FieldTerminalID           = 41
	FieldMerchantID           = 42
	FieldCurrency             = 49
	FieldPINBlock             = 52
	FieldICCData              = 55
	FieldReversalReason       = 56
	FieldMAC                  = 64
	FieldOriginalDataElements = 90
	FieldSecondaryMAC         = 128
)

// DefaultFieldFormats is the data element format table used by DefaultPackager.
var DefaultFieldFormats = map[int]FieldFormat{
	// Field 1 is the secondary bitmap flag and never carries a payload.

	2:   {Kind: Llvar, Length: 19},        // Primary Account Number (PAN)
	3:   {Kind: FixedNumeric, Length: 6},  // Processing Code
	4:   {Kind: FixedNumeric, Length: 12}, // Amount, Transaction
	7:   {Kind: FixedNumeric, Length: 10}, // Transmission Date & Time (MMDDhhmmss)
	11:  {Kind: FixedNumeric, Length: 6},  // System Trace Audit Number (STAN)
	12:  {Kind: FixedNumeric, Length: 6},  // Time, Local Transaction (hhmmss)
	13:  {Kind: FixedNumeric, Length: 4},  // Date, Local Transaction (MMDD)
	14:  {Kind: FixedNumeric, Length: 4},  // Date, Expiration (YYMM)
	18:  {Kind: FixedNumeric, Length: 4},  // Merchant Type
	22:  {Kind: FixedNumeric, Length: 3},  // Point of Service Entry Mode
	23:  {Kind: FixedNumeric, Length: 3},  // Application PAN Sequence Number
	25:  {Kind: FixedNumeric, Length: 2},  // Point of Service Condition Code
	32:  {Kind: Llvar, Length: 11},        // Acquiring Institution Identification Code
	35:  {Kind: Llvar, Length: 37},        // Track 2 Data
	37:  {Kind: FixedAlpha, Length: 12},   // Retrieval Reference Number
	38:  {Kind: FixedAlpha, Length: 6},    // Authorization Identification Response
	39:  {Kind: FixedAlpha, Length: 2},    // Response Code
	41:  {Kind: FixedAlpha, Length: 8},    // Card Acceptor Terminal Identification
	42:  {Kind: FixedAlpha, Length: 15},   // Card Acceptor Identification Code
	43:  {Kind: FixedAlpha, Length: 40},   // Card Acceptor Name/Location
	49:  {Kind: FixedNumeric, Length: 3},  // Currency Code, Transaction
	52:  {Kind: Binary, Length: 8},        // PIN Data
	54:  {Kind: Lllvar, Length: 120},      // Additional Amounts
	55:  {Kind: Lllvar, Length: 999},      // ICC Data (EMV)
	56:  {Kind: Llvar, Length: 35},        // Reversal Reason
	60:  {Kind: Lllvar, Length: 999},      // Reserved for National Use
	61:  {Kind: Lllvar, Length: 999},      // Reserved for National Use
	62:  {Kind: Lllvar, Length: 999},      // Reserved for Private Use
	63:  {Kind: Lllvar, Length: 999},      // Reserved for Private Use
	64:  {Kind: Binary, Length: 8},        // Message Authentication Code (MAC)
	70:  {Kind: FixedNumeric, Length: 3},  // Network Management Information Code
	90:  {Kind: FixedNumeric, Length: 42}, // Original Data Elements
	95:  {Kind: FixedAlpha, Length: 42},   // Replacement Amounts
	102: {Kind: Llvar, Length: 28},        // Account Identification 1
	103: {Kind: Llvar, Length: 28},        // Account Identification 2
	123: {Kind: Lllvar, Length: 999},      // Reserved for Private Use
	127: {Kind: Lllvar, Length: 999},      // Reserved for Private Use
	128: {Kind: Binary, Length: 8},        // Message Authentication Code (MAC)
}
