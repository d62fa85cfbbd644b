package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/feed"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// notifyChannel carries every written row as JSON so listeners never re-query.
const notifyChannel = "call_records"

const schema = `
CREATE TABLE IF NOT EXISTS call_records (
	id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	caller_id     text        NOT NULL,
	caller_name   text        NOT NULL,
	receiver_id   text        NOT NULL,
	receiver_name text        NOT NULL,
	type          text        NOT NULL,
	status        text        NOT NULL,
	start_time    timestamptz NOT NULL,
	end_time      timestamptz,
	duration      bigint,
	updated_at    timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS call_records_receiver_status ON call_records (receiver_id, status);
`

const columns = `id::text, caller_id, caller_name, receiver_id, receiver_name, type, status, start_time, end_time, duration`

// CallRepository implements port.CallRecordStore on Postgres. Writes notify
// on notifyChannel inside the same transaction, so a listener sees a change
// exactly when it becomes visible.
type CallRepository struct {
	pool *pgxpool.Pool
}

func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// Migrate creates the schema if it does not exist yet.
func (r *CallRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate call_records: %w", err)
	}
	return nil
}

func (r *CallRepository) Create(ctx context.Context, rec domain.CallRecord) (domain.CallID, error) {
	if rec.ID != "" && !validID(rec.ID) {
		return "", fmt.Errorf("%w: call id %q is not a uuid", domain.ErrInvalidArgument, rec.ID)
	}
	var created domain.CallRecord
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO call_records (id, caller_id, caller_name, receiver_id, receiver_name, type, status, start_time, end_time, duration)
			VALUES (COALESCE(NULLIF($1::text, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING `+columns,
			rec.ID.String(), rec.CallerID, rec.CallerName, rec.ReceiverID, rec.ReceiverName,
			rec.Type, rec.Status, rec.StartTime, rec.EndTime, rec.DurationSeconds,
		)
		var err error
		if created, err = scanRecord(row); err != nil {
			return err
		}
		return notify(ctx, tx, created)
	})
	if err != nil {
		return "", fmt.Errorf("%w: insert call record: %v", domain.ErrStoreWrite, err)
	}
	return created.ID, nil
}

func (r *CallRepository) Update(ctx context.Context, id domain.CallID, upd domain.RecordUpdate) error {
	if !validID(id) {
		return domain.ErrCallNotFound
	}
	var from []string
	if len(upd.From) > 0 {
		from = make([]string, len(upd.From))
		for i, s := range upd.From {
			from[i] = string(s)
		}
	}

	var outcome error
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE call_records SET
				status     = COALESCE(NULLIF($2, ''), status),
				start_time = COALESCE($3, start_time),
				end_time   = COALESCE($4, end_time),
				duration   = COALESCE($5, duration),
				updated_at = now()
			WHERE id = $1::uuid AND ($6::text[] IS NULL OR status = ANY($6::text[]))
			RETURNING `+columns,
			id, upd.Status, upd.StartTime, upd.EndTime, upd.DurationSeconds, from,
		)
		rec, err := scanRecord(row)
		if errors.Is(err, pgx.ErrNoRows) {
			outcome = r.classifyMiss(ctx, tx, id)
			return nil
		}
		if err != nil {
			return err
		}
		return notify(ctx, tx, rec)
	})
	if err != nil {
		return fmt.Errorf("%w: update call record: %v", domain.ErrStoreWrite, err)
	}
	return outcome
}

// classifyMiss tells a guard rejection from a missing row.
func (r *CallRepository) classifyMiss(ctx context.Context, tx pgx.Tx, id domain.CallID) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM call_records WHERE id = $1::uuid`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrCallNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	return fmt.Errorf("%w: %s is %s", domain.ErrStaleTransition, id, status)
}

func (r *CallRepository) Get(ctx context.Context, id domain.CallID) (domain.CallRecord, error) {
	if !validID(id) {
		return domain.CallRecord{}, domain.ErrCallNotFound
	}
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM call_records WHERE id = $1::uuid`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CallRecord{}, domain.ErrCallNotFound
	}
	return rec, err
}

func (r *CallRepository) List(ctx context.Context, filter domain.RecordFilter) ([]domain.CallRecord, error) {
	return selectRecords(ctx, r.pool, filter)
}

// Subscribe holds a dedicated connection for LISTEN. It listens before it
// reads the current rows, so nothing written in between is lost.
func (r *CallRepository) Subscribe(ctx context.Context, filter domain.RecordFilter) (port.Subscription[domain.RecordChange], error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	initial, err := selectRecords(ctx, conn, filter)
	if err != nil {
		conn.Release()
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	f := feed.New[domain.RecordChange](cancel)
	tracker := domain.NewChangeTracker(filter)
	for _, rec := range initial {
		if ch, ok := tracker.Observe(rec); ok {
			f.Push(ch)
		}
	}

	go func() {
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil {
					log.Error().Err(err).Msg("Call record listener stopped")
					// Close the connection rather than return it mid-LISTEN.
					conn.Conn().Close(context.Background())
				} else {
					unlisten(conn)
				}
				return
			}
			var rec domain.CallRecord
			if err := json.Unmarshal([]byte(n.Payload), &rec); err != nil {
				log.Warn().Err(err).Msg("Discarding malformed call record notification")
				continue
			}
			if ch, ok := tracker.Observe(rec); ok {
				f.Push(ch)
			}
		}
	}()
	return f, nil
}

func unlisten(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, "UNLISTEN "+notifyChannel); err != nil {
		conn.Conn().Close(ctx)
	}
}

func notify(ctx context.Context, tx pgx.Tx, rec domain.CallRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload))
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func selectRecords(ctx context.Context, q querier, filter domain.RecordFilter) ([]domain.CallRecord, error) {
	where, args := buildFilter(filter)
	rows, err := q.Query(ctx, `SELECT `+columns+` FROM call_records`+where+` ORDER BY start_time`, args...)
	if err != nil {
		return nil, fmt.Errorf("query call records: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CallRecord, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan call records: %w", err)
	}
	return recs, nil
}

// buildFilter renders the equality filter as a WHERE clause.
func buildFilter(f domain.RecordFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(col string, v string) {
		args = append(args, v)
		cast := ""
		if col == "id" {
			cast = "::uuid"
		}
		conds = append(conds, col+" = $"+strconv.Itoa(len(args))+cast)
	}
	if f.ID != "" {
		add("id", f.ID.String())
	}
	if f.CallerID != "" {
		add("caller_id", f.CallerID.String())
	}
	if f.ReceiverID != "" {
		add("receiver_id", f.ReceiverID.String())
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRecord(row pgx.Row) (domain.CallRecord, error) {
	var (
		rec      domain.CallRecord
		id       string
		typ      string
		status   string
		duration *int64
	)
	err := row.Scan(&id, &rec.CallerID, &rec.CallerName, &rec.ReceiverID, &rec.ReceiverName,
		&typ, &status, &rec.StartTime, &rec.EndTime, &duration)
	if err != nil {
		return domain.CallRecord{}, err
	}
	rec.ID = domain.CallID(id)
	rec.Type = domain.CallType(typ)
	rec.Status = domain.CallStatus(status)
	rec.DurationSeconds = duration
	return rec, nil
}

func validID(id domain.CallID) bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}
