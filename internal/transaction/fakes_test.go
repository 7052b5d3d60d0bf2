package transaction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mkadit/payswitch/iso8583"
)

var fixedNow = time.Date(2025, 10, 18, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type fakeRepo struct {
	mu        sync.Mutex
	records   map[Key]*Record
	insertErr error
	updateErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[Key]*Record)}
}

func (f *fakeRepo) Insert(_ context.Context, rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.records[rec.Key]; ok {
		return errors.New("duplicate key")
	}
	f.records[rec.Key] = rec.Clone()
	return nil
}

func (f *fakeRepo) UpdateResponse(_ context.Context, key Key, u ResponseUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	rec, ok := f.records[key]
	if !ok {
		return ErrTransactionNotFound
	}
	u.Apply(rec, fixedNow)
	return nil
}

func (f *fakeRepo) FindByKey(_ context.Context, key Key) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return rec.Clone(), nil
}

func (f *fakeRepo) FindByStanToday(_ context.Context, stan string) (*Record, error) {
	return f.find(func(r *Record) bool {
		return r.Date == fixedNow.Format(DateLayout) && r.STAN() == stan
	})
}

func (f *fakeRepo) FindByTransactionIDAndTerminal(_ context.Context, id, terminal string) (*Record, error) {
	return f.find(func(r *Record) bool {
		return r.UniqueNo == id && r.TerminalID == terminal
	})
}

func (f *fakeRepo) find(match func(*Record) bool) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if match(r) {
			return r.Clone(), nil
		}
	}
	return nil, ErrTransactionNotFound
}

// byMTI returns every stored record with the given MTI.
func (f *fakeRepo) byMTI(mti string) []*Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Record
	for _, r := range f.records {
		if r.MTI == mti {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (f *fakeRepo) put(rec *Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.Key] = rec.Clone()
}

type responderFunc func(ctx context.Context, req *iso8583.Message) (*iso8583.Message, error)

func (fn responderFunc) Respond(ctx context.Context, req *iso8583.Message) (*iso8583.Message, error) {
	return fn(ctx, req)
}

type fakeMetrics struct {
	mu        sync.Mutex
	completed []State
	reversals []string
}

func (m *fakeMetrics) TransactionCompleted(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, s)
}

func (m *fakeMetrics) ReversalSent(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reversals = append(m.reversals, reason)
}

func (m *fakeMetrics) ResponderDuration(time.Duration) {}

type sentEvent struct {
	topic   string
	key     string
	payload any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
	err    error
}

func (n *fakeNotifier) Send(_ context.Context, topic, key string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{topic: topic, key: key, payload: payload})
	return n.err
}

// replyWith answers every request with the response MTI and rc.
func replyWith(rc string) responderFunc {
	return func(_ context.Context, req *iso8583.Message) (*iso8583.Message, error) {
		mti, err := iso8583.ResponseMTI(req.MTI())
		if err != nil {
			return nil, err
		}
		return iso8583.NewBuilder(mti).
			CopyFrom(req, iso8583.FieldSTAN, iso8583.FieldTerminalID).
			ResponseCode(rc).
			Build()
	}
}
