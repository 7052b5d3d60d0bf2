package emv

import (
	"strings"
	"sync"
)

// Common EMV tags, upper-case hex.
const (
	TagAID                  = "4F"
	TagApplicationLabel     = "50"
	TagTrack2               = "57"
	TagPAN                  = "5A"
	TagCardholderName       = "5F20"
	TagExpiry               = "5F24"
	TagEffectiveDate        = "5F25"
	TagIssuerCountry        = "5F28"
	TagCurrencyCode         = "5F2A"
	TagServiceCode          = "5F30"
	TagPANSequence          = "5F34"
	TagAIP                  = "82"
	TagDFName               = "84"
	TagTVR                  = "95"
	TagTransactionDate      = "9A"
	TagTransactionType      = "9C"
	TagAmountAuthorized     = "9F02"
	TagAmountOther          = "9F03"
	TagAppVersion           = "9F09"
	TagIAD                  = "9F10"
	TagTerminalCountry      = "9F1A"
	TagIFDSerial            = "9F1E"
	TagTransactionTime      = "9F21"
	TagCryptogram           = "9F26"
	TagCID                  = "9F27"
	TagTerminalCapabilities = "9F33"
	TagCVMResults           = "9F34"
	TagTerminalType         = "9F35"
	TagATC                  = "9F36"
	TagUnpredictableNumber  = "9F37"
	TagPOSEntryMode         = "9F39"
)

// DE55 is the ISO field carrying the raw chip data itself.
const DE55 = 55

var tagDescriptions = map[string]string{
	"4F":     "Application Identifier (AID)",
	"50":     "Application Label",
	"57":     "Track 2 Equivalent Data",
	"5A":     "Application Primary Account Number (PAN)",
	"5F20":   "Cardholder Name",
	"5F24":   "Application Expiration Date",
	"5F25":   "Application Effective Date",
	"5F28":   "Issuer Country Code",
	"5F2A":   "Transaction Currency Code",
	"5F2D":   "Language Preference",
	"5F30":   "Service Code",
	"5F34":   "PAN Sequence Number",
	"82":     "Application Interchange Profile (AIP)",
	"84":     "Dedicated File (DF) Name",
	"8C":     "Card Risk Management Data Object List 1 (CDOL1)",
	"8D":     "Card Risk Management Data Object List 2 (CDOL2)",
	"8E":     "Cardholder Verification Method (CVM) List",
	"94":     "Application File Locator (AFL)",
	"95":     "Terminal Verification Results (TVR)",
	"9A":     "Transaction Date",
	"9C":     "Transaction Type",
	"9F02":   "Amount, Authorized (Numeric)",
	"9F03":   "Amount, Other (Numeric)",
	"9F06":   "Application Identifier (AID) - Terminal",
	"9F07":   "Application Usage Control",
	"9F09":   "Application Version Number",
	"9F10":   "Issuer Application Data (IAD)",
	"9F11":   "Issuer Code Table Index",
	"9F12":   "Application Preferred Name",
	"9F1A":   "Terminal Country Code",
	"9F1E":   "Interface Device (IFD) Serial Number",
	"9F21":   "Transaction Time",
	"9F26":   "Application Cryptogram (AC)",
	"9F27":   "Cryptogram Information Data (CID)",
	"9F33":   "Terminal Capabilities",
	"9F34":   "Cardholder Verification Method (CVM) Results",
	"9F35":   "Terminal Type",
	"9F36":   "Application Transaction Counter (ATC)",
	"9F37":   "Unpredictable Number",
	"9F38":   "Processing Options Data Object List (PDOL)",
	"9F39":   "Point-of-Service (POS) Entry Mode",
	"9F40":   "Additional Terminal Capabilities",
	"9F41":   "Transaction Sequence Counter",
	"9F42":   "Application Currency Code",
	"9F53":   "Transaction Category Code",
	"9F66":   "Terminal Transaction Qualifiers (TTQ)",
	"DF8101": "Online Response Data",
}

// Describe returns the human-readable name of an EMV tag.
func Describe(tag string) string {
	if d, ok := tagDescriptions[strings.ToUpper(tag)]; ok {
		return d
	}
	return "Unknown Tag"
}

// Tags whose value maps onto a standalone ISO data element. Everything else
// listed in chipSubtags travels inside DE55.
var standaloneFields = map[string]int{
	TagPAN:          2,
	TagExpiry:       14,
	TagPOSEntryMode: 22,
	TagPANSequence:  23,
	TagTrack2:       35,
	TagIFDSerial:    41,
	TagCurrencyCode: 49,
}

var chipSubtags = []string{
	TagAID, TagAIP, TagATC, TagCryptogram, TagCID, TagIAD, TagTVR,
	TagTransactionDate, TagTransactionType, TagAmountAuthorized, TagAmountOther,
	TagTerminalCountry, TagUnpredictableNumber, TagTerminalCapabilities,
	TagCVMResults, TagTerminalType, TagAppVersion, TagDFName,
}

var isoMapping = sync.OnceValue(func() map[string]int {
	m := make(map[string]int, len(standaloneFields)+len(chipSubtags))
	for tag, de := range standaloneFields {
		m[tag] = de
	}
	for _, tag := range chipSubtags {
		m[tag] = DE55
	}
	return m
})

// ISOFieldFor returns the ISO8583 data element that carries tag.
func ISOFieldFor(tag string) (int, bool) {
	de, ok := isoMapping()[strings.ToUpper(tag)]
	return de, ok
}

// TagsForField lists the tags mapped to de, in no particular order.
func TagsForField(de int) []string {
	var tags []string
	for tag, f := range isoMapping() {
		if f == de {
			tags = append(tags, tag)
		}
	}
	return tags
}
