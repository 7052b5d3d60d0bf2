// Package repository stores transaction records in PostgreSQL or in memory.
package repository

import "fmt"

// persistedFields are the data elements that have a field_NNN column in
// iso8583_payment. Other elements stay in the wire message only.
var persistedFields = []int{
	2, 3, 4, 7, 11, 12, 13, 14, 22, 23, 25, 32, 35, 37, 38, 39, 41, 42, 43,
	49, 52, 54, 55, 56, 60, 61, 62, 63, 64, 70, 90, 95, 102, 103, 123, 127, 128,
}

var keyColumns = []string{"tr_dt", "tr_tm", "tr_uniq_no", "trm_id", "msg_typ", "field_000", "field_001"}

func fieldColumn(de int) string {
	return fmt.Sprintf("field_%03d", de)
}

// IsPersisted reports whether de has its own column.
func IsPersisted(de int) bool {
	for _, f := range persistedFields {
		if f == de {
			return true
		}
	}
	return false
}
