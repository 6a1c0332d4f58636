package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id          TEXT PRIMARY KEY,
	host_id     TEXT NOT NULL,
	max_guests  INTEGER NOT NULL,
	status      TEXT NOT NULL DEFAULT 'active',
	created_at  TIMESTAMP NOT NULL,
	ended_at    TIMESTAMP,
	ended_by    TEXT
);
CREATE TABLE IF NOT EXISTS chat_messages (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_room_created ON chat_messages (room_id, created_at);
CREATE TABLE IF NOT EXISTS analytics_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	detail     TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS screen_shares (
	id             TEXT PRIMARY KEY,
	room_id        TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	rtc_session_id TEXT,
	source         TEXT,
	started_at     TIMESTAMP NOT NULL,
	stopped_at     TIMESTAMP
);
`

// SQLiteStore persists rooms, chat and telemetry in a single sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the sqlite database at path and
// ensures the schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRoom(ctx context.Context, meta RoomMeta) error {
	status := meta.Status
	if status == "" {
		status = RoomActive
	}
	query := "INSERT INTO rooms (id, host_id, max_guests, status, created_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, query, meta.RoomID, meta.HostID, meta.MaxGuests, status, time.Now()); err != nil {
		return fmt.Errorf("failed to insert room %q: %w", meta.RoomID, err)
	}
	return nil
}

func (s *SQLiteStore) FetchRoomByID(ctx context.Context, roomID string) (RoomMeta, error) {
	query := "SELECT id, host_id, max_guests, status FROM rooms WHERE id = ?"

	var meta RoomMeta
	if err := s.db.QueryRowContext(ctx, query, roomID).Scan(&meta.RoomID, &meta.HostID, &meta.MaxGuests, &meta.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RoomMeta{}, ErrNotFound
		}
		return RoomMeta{}, fmt.Errorf("error querying room %q: %w", roomID, err)
	}
	return meta, nil
}

func (s *SQLiteStore) EndRoom(ctx context.Context, roomID, actorID string) error {
	query := "UPDATE rooms SET status = ?, ended_at = ?, ended_by = ? WHERE id = ?"
	res, err := s.db.ExecContext(ctx, query, RoomEnded, time.Now(), actorID, roomID)
	if err != nil {
		return fmt.Errorf("failed to end room %q: %w", roomID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AppendChatMessage(ctx context.Context, msg ChatRecord) error {
	query := "INSERT INTO chat_messages (id, room_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendAnalyticsLog(ctx context.Context, event AnalyticsEvent) error {
	query := "INSERT INTO analytics_log (room_id, user_id, kind, detail, created_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, query, event.RoomID, event.UserID, event.Kind, event.Detail, event.At); err != nil {
		return fmt.Errorf("failed to insert analytics event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) StartScreenShareRecord(ctx context.Context, rec ShareRecord) error {
	query := "INSERT INTO screen_shares (id, room_id, user_id, rtc_session_id, source, started_at) VALUES (?, ?, ?, ?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.RoomID, rec.UserID, rec.RTCSessionID, rec.Source, rec.StartedAt); err != nil {
		return fmt.Errorf("failed to insert screen share record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) StopScreenShareRecord(ctx context.Context, sessionID string) error {
	query := "UPDATE screen_shares SET stopped_at = ? WHERE id = ? AND stopped_at IS NULL"
	if _, err := s.db.ExecContext(ctx, query, time.Now(), sessionID); err != nil {
		return fmt.Errorf("failed to stop screen share record %q: %w", sessionID, err)
	}
	return nil
}
