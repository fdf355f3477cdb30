package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CachedTranslation looks up a previous translation and bumps its last_used
// stamp on a hit.
func (s *Store) CachedTranslation(ctx context.Context, text, targetLang string) (string, bool, error) {
	var out string
	err := s.db.QueryRowContext(ctx,
		`SELECT translated_text FROM translation_cache
		 WHERE source_text = ? AND target_lang = ?`,
		text, targetLang,
	).Scan(&out)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("translation lookup: %w", err)
	}
	_, _ = s.db.ExecContext(ctx,
		`UPDATE translation_cache SET last_used = ? WHERE source_text = ? AND target_lang = ?`,
		toMillis(time.Now()), text, targetLang)
	return out, true, nil
}

func (s *Store) PutTranslation(ctx context.Context, text, targetLang, translated string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	ms := toMillis(at)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translation_cache(source_text, target_lang, translated_text, created_at, last_used)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(source_text, target_lang) DO UPDATE SET
		   translated_text = excluded.translated_text,
		   last_used = excluded.last_used`,
		text, targetLang, translated, ms, ms,
	)
	if err != nil {
		return fmt.Errorf("store translation: %w", err)
	}
	return nil
}
