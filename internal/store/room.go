package store

import (
	"database/sql"
	"time"
)

// UpsertRoom inserts or updates a room summary record.
func (db *DB) UpsertRoom(r *Room) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO rooms (room_id, kind, name, thumbnail, preview, last_activity_at, unread_count, participants, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, kind) DO UPDATE SET
			name = excluded.name,
			thumbnail = excluded.thumbnail,
			preview = excluded.preview,
			last_activity_at = excluded.last_activity_at,
			unread_count = excluded.unread_count,
			participants = excluded.participants,
			updated_at = excluded.updated_at`,
		r.RoomID, r.Kind, r.Name, r.Thumbnail, r.Preview, r.LastActivityAt, r.UnreadCount, r.Participants, now)
	return err
}

// ListRooms returns room summaries of one kind, most recent activity first.
func (db *DB) ListRooms(kind string) ([]*Room, error) {
	rows, err := db.Query(`
		SELECT room_id, kind, name, thumbnail, preview, last_activity_at, unread_count, participants
		FROM rooms
		WHERE kind = ?
		ORDER BY last_activity_at DESC`, kind)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var list []*Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.RoomID, &r.Kind, &r.Name, &r.Thumbnail, &r.Preview, &r.LastActivityAt, &r.UnreadCount, &r.Participants); err != nil {
			return nil, err
		}
		list = append(list, &r)
	}
	return list, rows.Err()
}

// GetRoom returns a single room summary, or nil if unknown.
func (db *DB) GetRoom(roomID, kind string) (*Room, error) {
	var r Room
	err := db.QueryRow(`
		SELECT room_id, kind, name, thumbnail, preview, last_activity_at, unread_count, participants
		FROM rooms
		WHERE room_id = ? AND kind = ?`, roomID, kind).
		Scan(&r.RoomID, &r.Kind, &r.Name, &r.Thumbnail, &r.Preview, &r.LastActivityAt, &r.UnreadCount, &r.Participants)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
