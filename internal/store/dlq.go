package store

import (
	"database/sql"
	"fmt"
	"time"
)

// DeadLetter is a permanently-failed task preserved for operator inspection.
type DeadLetter struct {
	ID        int64
	TaskName  string
	Error     string
	CreatedAt time.Time
}

// InsertDeadLetter records a task that exhausted its retries. The entry is
// not retried until an operator intervenes.
func (s *Store) InsertDeadLetter(taskName, errMsg string) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO dead_letter_queue (task_name, error, created_at)
			VALUES (?, ?, ?)`, taskName, errMsg, time.Now().UTC())
		return err
	})
}

// ListDeadLetters returns DLQ entries, newest first.
func (s *Store) ListDeadLetters(limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn().Query(`SELECT id, task_name, error, created_at
		FROM dead_letter_queue ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var entries []DeadLetter
	for rows.Next() {
		var e DeadLetter
		if err := rows.Scan(&e.ID, &e.TaskName, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeDeadLetter removes an entry after operator intervention.
func (s *Store) PurgeDeadLetter(id int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM dead_letter_queue WHERE id = ?`, id)
		return err
	})
}
