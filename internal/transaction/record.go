package transaction

import (
	"sort"
	"time"

	"github.com/mkadit/payswitch/iso8583"
)

const (
	DateLayout = "20060102"
	TimeLayout = "150405"
)

// Key identifies a persisted transaction row.
type Key struct {
	Date     string // YYYYMMDD
	Time     string // HHMMSS
	UniqueNo string
}

// Record is the audit row for one ISO8583 message sent by the switch. Fields
// holds every data element of the request as it was built; DE0 and DE1 live
// in MTI and Bitmap.
type Record struct {
	Key
	TerminalID string
	MTI        string
	Bitmap     string
	Fields     map[int]string
	State      State
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// NewRecord derives a record in state CREATED from a built request.
func NewRecord(msg *iso8583.Message, uniqueNo, terminalID string, now time.Time) *Record {
	return &Record{
		Key: Key{
			Date:     now.Format(DateLayout),
			Time:     now.Format(TimeLayout),
			UniqueNo: uniqueNo,
		},
		TerminalID: terminalID,
		MTI:        msg.MTI(),
		Bitmap:     msg.BitmapHex(),
		Fields:     msg.Fields(),
		State:      StateCreated,
		InsertedAt: now,
	}
}

func (r *Record) Field(de int) (string, bool) {
	v, ok := r.Fields[de]
	return v, ok
}

func (r *Record) FieldOr(de int, fallback string) string {
	if v, ok := r.Fields[de]; ok {
		return v
	}
	return fallback
}

// STAN returns DE11.
func (r *Record) STAN() string {
	return r.Fields[iso8583.FieldSTAN]
}

// FieldNumbers returns the present data elements in ascending order.
func (r *Record) FieldNumbers() []int {
	des := make([]int, 0, len(r.Fields))
	for de := range r.Fields {
		des = append(des, de)
	}
	sort.Ints(des)
	return des
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Fields = make(map[int]string, len(r.Fields))
	for de, v := range r.Fields {
		c.Fields[de] = v
	}
	return &c
}

// ResponseUpdate carries the outcome written back to a record. Empty strings
// leave the stored value unchanged.
type ResponseUpdate struct {
	ResponseCode string
	AuthCode     string
	RRN          string
	State        State
}

// Apply merges u into r.
func (u ResponseUpdate) Apply(r *Record, now time.Time) {
	set := func(de int, v string) {
		if v != "" {
			r.Fields[de] = v
		}
	}
	if r.Fields == nil {
		r.Fields = make(map[int]string)
	}
	set(iso8583.FieldResponseCode, u.ResponseCode)
	set(iso8583.FieldAuthCode, u.AuthCode)
	set(iso8583.FieldRRN, u.RRN)
	r.State = u.State
	r.UpdatedAt = now
}
