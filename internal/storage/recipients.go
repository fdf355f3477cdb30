package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UpsertRecipient records an interaction: first contact creates the row,
// later contacts bump last_seen and keep the delivery channel current.
func (s *Store) UpsertRecipient(ctx context.Context, id int64, username, channel string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	ms := toMillis(at)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recipients(recipient_id, username, delivery_channel, first_seen, last_seen)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(recipient_id) DO UPDATE SET
		   username = excluded.username,
		   delivery_channel = excluded.delivery_channel,
		   last_seen = excluded.last_seen,
		   interaction_count = interaction_count + 1`,
		id, nullStr(username), nullStr(channel), ms, ms,
	)
	if err != nil {
		return fmt.Errorf("upsert recipient %d: %w", id, err)
	}
	return nil
}

// Recipient returns the recipient row, or nil when it does not exist.
func (s *Store) Recipient(ctx context.Context, id int64) (*Recipient, error) {
	var (
		r        Recipient
		username sql.NullString
		channel  sql.NullString
		enabled  int
		blocked  int
		first    int64
		last     int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT recipient_id, username, delivery_channel, notifications_enabled, is_blocked, language, first_seen, last_seen
		 FROM recipients WHERE recipient_id = ?`, id,
	).Scan(&r.ID, &username, &channel, &enabled, &blocked, &r.Language, &first, &last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load recipient %d: %w", id, err)
	}
	r.Username = username.String
	r.DeliveryChannel = channel.String
	r.NotificationsEnabled = enabled == 1
	r.Blocked = blocked == 1
	r.FirstSeen = fromMillis(first)
	r.LastSeen = fromMillis(last)
	return &r, nil
}

// SubscribedRecipients lists ids with notifications enabled and not blocked,
// excluding the given ids (admins).
func (s *Store) SubscribedRecipients(ctx context.Context, exclude []int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipient_id FROM recipients
		 WHERE notifications_enabled = 1 AND is_blocked = 0
		 ORDER BY recipient_id`)
	if err != nil {
		return nil, fmt.Errorf("list subscribed recipients: %w", err)
	}
	defer rows.Close()

	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if _, ok := skip[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AllRecipients lists every recipient, optionally skipping blocked ones.
// Used by broadcast fan-out.
func (s *Store) AllRecipients(ctx context.Context, excludeBlocked bool) ([]Recipient, error) {
	q := `SELECT recipient_id, username, delivery_channel, notifications_enabled, is_blocked, language, first_seen, last_seen
	      FROM recipients`
	if excludeBlocked {
		q += ` WHERE is_blocked = 0`
	}
	q += ` ORDER BY recipient_id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var (
			r        Recipient
			username sql.NullString
			channel  sql.NullString
			enabled  int
			blocked  int
			first    int64
			last     int64
		)
		if err := rows.Scan(&r.ID, &username, &channel, &enabled, &blocked, &r.Language, &first, &last); err != nil {
			return nil, err
		}
		r.Username = username.String
		r.DeliveryChannel = channel.String
		r.NotificationsEnabled = enabled == 1
		r.Blocked = blocked == 1
		r.FirstSeen = fromMillis(first)
		r.LastSeen = fromMillis(last)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SetNotificationsEnabled(ctx context.Context, id int64, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE recipients SET notifications_enabled = ? WHERE recipient_id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("set notifications_enabled for %d: %w", id, err)
	}
	return nil
}

func (s *Store) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	v := 0
	if blocked {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE recipients SET is_blocked = ? WHERE recipient_id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("set is_blocked for %d: %w", id, err)
	}
	return nil
}

func (s *Store) IsBlocked(ctx context.Context, id int64) (bool, error) {
	var blocked int
	err := s.db.QueryRowContext(ctx,
		`SELECT is_blocked FROM recipients WHERE recipient_id = ?`, id).Scan(&blocked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is_blocked for %d: %w", id, err)
	}
	return blocked == 1, nil
}

func (s *Store) SetLanguage(ctx context.Context, id int64, lang string) error {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = "en"
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE recipients SET language = ? WHERE recipient_id = ?`, lang, id)
	if err != nil {
		return fmt.Errorf("set language for %d: %w", id, err)
	}
	return nil
}

// DeleteRecipient removes the recipient and cascades its queued jobs, in
// one transaction. Called when delivery reports the account permanently gone.
func (s *Store) DeleteRecipient(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete recipient %d: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM delivery_jobs WHERE recipient_id = ?`, id); err != nil {
		return fmt.Errorf("delete jobs for %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recipients WHERE recipient_id = ?`, id); err != nil {
		return fmt.Errorf("delete recipient %d: %w", id, err)
	}
	return tx.Commit()
}
