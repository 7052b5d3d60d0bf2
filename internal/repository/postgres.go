package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkadit/payswitch/internal/transaction"
)

const uniqueViolation = "23505"

// Compile-time interface checks.
var (
	_ transaction.Repository = (*Postgres)(nil)
	_ transaction.Repository = (*Memory)(nil)
)

// Postgres stores records in the iso8583_payment table. The transaction
// state lives in tr_type.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

var (
	selectColumns = strings.Join(allColumns(), ", ")
	insertSQL     = buildInsert()
)

func allColumns() []string {
	cols := append([]string{}, keyColumns...)
	for _, de := range persistedFields {
		cols = append(cols, fieldColumn(de))
	}
	return append(cols, "tr_type", "inst_dtm", "updt_dtm")
}

func buildInsert() string {
	cols := allColumns()
	cols = cols[:len(cols)-1] // updt_dtm stays NULL until the first update
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO iso8583_payment (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.Join(marks, ", "))
}

func (r *Postgres) Insert(ctx context.Context, rec *transaction.Record) error {
	args := []any{rec.Date, rec.Time, rec.UniqueNo, nullable(rec.TerminalID), rec.MTI, rec.MTI, nullable(rec.Bitmap)}
	for _, de := range persistedFields {
		if v, ok := rec.Field(de); ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	inserted := rec.InsertedAt
	if inserted.IsZero() {
		inserted = r.now()
	}
	args = append(args, rec.State.String(), inserted)

	if _, err := r.pool.Exec(ctx, insertSQL, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s/%s/%s", ErrDuplicateKey, rec.Date, rec.Time, rec.UniqueNo)
		}
		return fmt.Errorf("insert iso8583_payment: %w", err)
	}
	return nil
}

func (r *Postgres) UpdateResponse(ctx context.Context, key transaction.Key, update transaction.ResponseUpdate) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE iso8583_payment SET
			field_039 = COALESCE(NULLIF($4, ''), field_039),
			field_038 = COALESCE(NULLIF($5, ''), field_038),
			field_037 = COALESCE(NULLIF($6, ''), field_037),
			tr_type   = $7,
			updt_dtm  = $8
		WHERE tr_dt = $1 AND tr_tm = $2 AND tr_uniq_no = $3
	`, key.Date, key.Time, key.UniqueNo,
		update.ResponseCode, update.AuthCode, update.RRN,
		update.State.String(), r.now(),
	)
	if err != nil {
		return fmt.Errorf("update iso8583_payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound
	}
	return nil
}

func (r *Postgres) FindByKey(ctx context.Context, key transaction.Key) (*transaction.Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+`
		FROM iso8583_payment
		WHERE tr_dt = $1 AND tr_tm = $2 AND tr_uniq_no = $3`,
		key.Date, key.Time, key.UniqueNo)
	return scanRecord(row)
}

func (r *Postgres) FindByStanToday(ctx context.Context, stan string) (*transaction.Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+`
		FROM iso8583_payment
		WHERE tr_dt = $1 AND field_011 = $2
		ORDER BY tr_tm DESC
		LIMIT 1`,
		r.now().Format(transaction.DateLayout), stan)
	return scanRecord(row)
}

func (r *Postgres) FindByTransactionIDAndTerminal(ctx context.Context, transactionID, terminalID string) (*transaction.Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+`
		FROM iso8583_payment
		WHERE tr_uniq_no = $1 AND trm_id = $2
		ORDER BY tr_dt DESC, tr_tm DESC
		LIMIT 1`,
		transactionID, terminalID)
	return scanRecord(row)
}

func scanRecord(row pgx.Row) (*transaction.Record, error) {
	var (
		rec        transaction.Record
		terminalID *string
		mti        *string
		field000   *string
		bitmap     *string
		state      string
		insertedAt time.Time
		updatedAt  *time.Time
	)
	values := make([]*string, len(persistedFields))

	dest := []any{&rec.Date, &rec.Time, &rec.UniqueNo, &terminalID, &mti, &field000, &bitmap}
	for i := range values {
		dest = append(dest, &values[i])
	}
	dest = append(dest, &state, &insertedAt, &updatedAt)

	if err := row.Scan(dest...); err != nil {
		if err == pgx.ErrNoRows {
			return nil, transaction.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("query iso8583_payment: %w", err)
	}

	rec.TerminalID = deref(terminalID)
	rec.MTI = deref(mti)
	if rec.MTI == "" {
		rec.MTI = deref(field000)
	}
	rec.Bitmap = deref(bitmap)
	rec.Fields = make(map[int]string)
	for i, v := range values {
		if v != nil {
			rec.Fields[persistedFields[i]] = *v
		}
	}
	parsed, err := transaction.ParseState(state)
	if err != nil {
		return nil, err
	}
	rec.State = parsed
	rec.InsertedAt = insertedAt
	if updatedAt != nil {
		rec.UpdatedAt = *updatedAt
	}
	return &rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
