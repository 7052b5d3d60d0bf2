package iso8583

import "strings"

const hexTableUpper = "0123456789ABCDEF"

// encodeHexUpper converts src to uppercase hex and writes it to dst.
func encodeHexUpper(dst, src []byte) {
	for i, v := range src {
		dst[i*2] = hexTableUpper[v>>4]
		dst[i*2+1] = hexTableUpper[v&0x0f]
	}
}

func hexUpper(src []byte) string {
	buf := make([]byte, len(src)*2)
	encodeHexUpper(buf, src)
	return string(buf)
}

// MaskPAN keeps the first six and last four digits of a card number.
// Values of ten characters or fewer are masked entirely.
func MaskPAN(pan string) string {
	if len(pan) <= 10 {
		return strings.Repeat("*", len(pan))
	}
	return pan[:6] + strings.Repeat("*", len(pan)-10) + pan[len(pan)-4:]
}
