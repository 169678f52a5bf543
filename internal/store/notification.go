package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// UpsertNotification inserts or updates a notification (idempotent on id).
func (db *DB) UpsertNotification(n *Notification) error {
	ctx, err := json.Marshal(contextOrEmpty(n.Context))
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO notifications (id, category, title_template, body_template, context_json, redirect, read, created_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			title_template = excluded.title_template,
			body_template = excluded.body_template,
			context_json = excluded.context_json,
			redirect = excluded.redirect,
			read = excluded.read,
			created_at = excluded.created_at`,
		n.ID, n.Category, n.TitleTmpl, n.BodyTmpl, string(ctx), n.Redirect, n.Read, n.CreatedAt, n.Position)
	return err
}

// ListNotifications returns all cached notifications, newest insertion first.
func (db *DB) ListNotifications() ([]*Notification, error) {
	rows, err := db.Query(`
		SELECT id, category, title_template, body_template, context_json, redirect, read, created_at, position
		FROM notifications
		ORDER BY position DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var list []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// SetNotificationRead updates the read flag of a single notification.
func (db *DB) SetNotificationRead(id int64, read bool) error {
	_, err := db.Exec(`UPDATE notifications SET read = ? WHERE id = ?`, read, id)
	return err
}

// MarkAllNotificationsRead sets the read flag on every cached notification.
func (db *DB) MarkAllNotificationsRead() error {
	_, err := db.Exec(`UPDATE notifications SET read = 1`)
	return err
}

// DeleteNotification removes a single notification.
func (db *DB) DeleteNotification(id int64) error {
	_, err := db.Exec(`DELETE FROM notifications WHERE id = ?`, id)
	return err
}

// DeleteAllNotifications clears the notification cache.
func (db *DB) DeleteAllNotifications() error {
	_, err := db.Exec(`DELETE FROM notifications`)
	return err
}

// ReplaceNotifications atomically swaps the cached collection for the given
// list. Positions are assigned from list order, head first.
func (db *DB) ReplaceNotifications(list []*Notification) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM notifications`); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}

	for i, n := range list {
		ctx, err := json.Marshal(contextOrEmpty(n.Context))
		if err != nil {
			return fmt.Errorf("marshal context: %w", err)
		}
		pos := int64(len(list) - i)
		if _, err := tx.Exec(`
			INSERT INTO notifications (id, category, title_template, body_template, context_json, redirect, read, created_at, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.Category, n.TitleTmpl, n.BodyTmpl, string(ctx), n.Redirect, n.Read, n.CreatedAt, pos); err != nil {
			return fmt.Errorf("insert notification %d: %w", n.ID, err)
		}
		n.Position = pos
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func scanNotification(rows *sql.Rows) (*Notification, error) {
	var n Notification
	var ctxJSON string
	if err := rows.Scan(&n.ID, &n.Category, &n.TitleTmpl, &n.BodyTmpl, &ctxJSON, &n.Redirect, &n.Read, &n.CreatedAt, &n.Position); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ctxJSON), &n.Context); err != nil {
		// Corrupt context degrades to no substitutions, not a failed load.
		n.Context = map[string]string{}
	}
	return &n, nil
}

func contextOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
