package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnqueueJob inserts a pending delivery job and returns its id.
func (s *Store) EnqueueJob(ctx context.Context, j Job) (int64, error) {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_jobs(recipient_id, kind, product_id, message_text, created_at)
		 VALUES(?,?,?,?,?)`,
		j.RecipientID, string(j.Kind), nullInt(j.ProductID), nullStr(j.MessageText), toMillis(j.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	return res.LastInsertId()
}

// PendingJobs returns up to limit unsent jobs of the given kind, oldest first.
func (s *Store) PendingJobs(ctx context.Context, kind JobKind, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient_id, kind, product_id, message_text, created_at, sent_at
		 FROM delivery_jobs
		 WHERE kind = ? AND sent_at IS NULL
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		string(kind), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch pending jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkJobSent stamps sent_at on a pending job. Idempotent: marking an
// already-sent job is a no-op, so sent_at is only ever written once.
func (s *Store) MarkJobSent(ctx context.Context, jobID int64, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE delivery_jobs SET sent_at = ? WHERE id = ? AND sent_at IS NULL`,
		toMillis(at), jobID,
	)
	if err != nil {
		return fmt.Errorf("mark job sent: %w", err)
	}
	return nil
}

// RecentSendCount counts jobs of the given kind sent to the recipient
// since the cutoff. This is the rate-limit window; it is always recomputed,
// never materialized.
func (s *Store) RecentSendCount(ctx context.Context, recipientID int64, kind JobKind, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_jobs
		 WHERE recipient_id = ? AND kind = ? AND sent_at IS NOT NULL AND sent_at > ?`,
		recipientID, string(kind), toMillis(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("recent send count: %w", err)
	}
	return n, nil
}

// Job returns a single job by id, or nil when it does not exist.
func (s *Store) Job(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, recipient_id, kind, product_id, message_text, created_at, sent_at
		 FROM delivery_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (Job, error) {
	var (
		j       Job
		kind    string
		prodID  sql.NullInt64
		msg     sql.NullString
		created int64
		sent    sql.NullInt64
	)
	if err := r.Scan(&j.ID, &j.RecipientID, &kind, &prodID, &msg, &created, &sent); err != nil {
		return Job{}, err
	}
	j.Kind = JobKind(kind)
	j.ProductID = prodID.Int64
	j.MessageText = msg.String
	j.CreatedAt = fromMillis(created)
	if sent.Valid {
		j.SentAt = fromMillis(sent.Int64)
	}
	return j, nil
}
