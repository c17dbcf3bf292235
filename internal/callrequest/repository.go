package callrequest

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"musicmatch-platform/pkg/utils"
)

// PostgresRepo persists call requests in Postgres.
//
// Assumed schema:
//
//	CREATE TABLE call_requests (
//	  id           TEXT PRIMARY KEY,
//	  pair_a       TEXT NOT NULL,
//	  pair_b       TEXT NOT NULL,
//	  initiator    TEXT NOT NULL,
//	  state        TEXT NOT NULL,
//	  room_id      TEXT NOT NULL,
//	  reason       TEXT NOT NULL DEFAULT '',
//	  requested_at TIMESTAMPTZ NOT NULL,
//	  responded_at TIMESTAMPTZ,
//	  seq          BIGSERIAL
//	);
//
//	-- The single-pending-per-pair invariant. The whole state machine
//	-- leans on this partial unique index acting as a distributed CAS.
//	CREATE UNIQUE INDEX call_requests_pending_uniq
//	  ON call_requests (pair_a, pair_b) WHERE state = 'pending';
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callRequestColumns = `id, pair_a, pair_b, initiator, state, room_id, reason, requested_at, responded_at`

func (r *PostgresRepo) FindOrCreatePending(ctx context.Context, req CallRequest) (CallRequest, bool, error) {
	var (
		out     CallRequest
		created bool
	)

	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Insert guarded by the pending partial unique index. ON CONFLICT
		// with the index predicate makes the lost race a no-op instead of
		// an error, then the re-read returns whichever row won.
		const ins = `
INSERT INTO call_requests (id, pair_a, pair_b, initiator, state, room_id, reason, requested_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (pair_a, pair_b) WHERE state = 'pending' DO NOTHING
`
		res, err := tx.ExecContext(ctx, ins,
			req.ID,
			req.PairA,
			req.PairB,
			req.Initiator,
			req.State,
			req.RoomID,
			req.Reason,
			req.RequestedAt,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			created = true
			out = req
			return nil
		}

		const sel = `
SELECT ` + callRequestColumns + `
FROM call_requests
WHERE pair_a = $1 AND pair_b = $2 AND state = 'pending'
LIMIT 1
`
		row := tx.QueryRowContext(ctx, sel, req.PairA, req.PairB)
		got, err := scanCallRequest(row)
		if err != nil {
			return err
		}
		out = got
		return nil
	})
	if err != nil {
		return CallRequest{}, false, err
	}
	return out, created, nil
}

func (r *PostgresRepo) CancelPendingByInitiator(ctx context.Context, pairA, pairB, initiator, reason string, respondedAt time.Time) (int, error) {
	const q = `
UPDATE call_requests
SET state = $1, reason = $2, responded_at = $3
WHERE pair_a = $4 AND pair_b = $5 AND initiator = $6 AND state = 'pending'
`
	res, err := r.db.ExecContext(ctx, q, StateCancelled, reason, respondedAt, pairA, pairB, initiator)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *PostgresRepo) ClosePendingFromInitiator(ctx context.Context, pairA, pairB, initiator string, newState State, reason string, respondedAt time.Time) (CallRequest, bool, error) {
	const q = `
UPDATE call_requests
SET state = $1, reason = $2, responded_at = $3
WHERE pair_a = $4 AND pair_b = $5 AND initiator = $6 AND state = 'pending'
RETURNING ` + callRequestColumns + `
`
	row := r.db.QueryRowContext(ctx, q, newState, reason, respondedAt, pairA, pairB, initiator)
	out, err := scanCallRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CallRequest{}, false, nil
	}
	if err != nil {
		return CallRequest{}, false, err
	}
	return out, true, nil
}

func (r *PostgresRepo) LastByPair(ctx context.Context, pairA, pairB string) (CallRequest, bool, error) {
	const q = `
SELECT ` + callRequestColumns + `
FROM call_requests
WHERE pair_a = $1 AND pair_b = $2
ORDER BY requested_at DESC, seq DESC
LIMIT 1
`
	row := r.db.QueryRowContext(ctx, q, pairA, pairB)
	out, err := scanCallRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CallRequest{}, false, nil
	}
	if err != nil {
		return CallRequest{}, false, err
	}
	return out, true, nil
}

func (r *PostgresRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]CallRequest, error) {
	const q = `
SELECT ` + callRequestColumns + `
FROM call_requests
WHERE state = 'pending' AND requested_at < $1
ORDER BY requested_at ASC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRequest, 0)
	for rows.Next() {
		cur, err := scanCallRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cur)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCallRequest(row rowScanner) (CallRequest, error) {
	var (
		out         CallRequest
		reason      sql.NullString
		respondedAt sql.NullTime
	)
	if err := row.Scan(
		&out.ID,
		&out.PairA,
		&out.PairB,
		&out.Initiator,
		&out.State,
		&out.RoomID,
		&reason,
		&out.RequestedAt,
		&respondedAt,
	); err != nil {
		return CallRequest{}, err
	}
	out.Reason = reason.String
	if respondedAt.Valid {
		t := respondedAt.Time
		out.RespondedAt = &t
	}
	return out, nil
}
