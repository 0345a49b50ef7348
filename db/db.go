// Package db archives live chat batches. Postgres DSNs open through the pgx
// stdlib driver; anything else is treated as a SQLite path or file: URI and
// opened with modernc.org/sqlite.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "modernc.org/sqlite"            // pure-Go sqlite driver registered as 'sqlite'

	"github.com/csb6/purple-youtube/chat"
)

// Driver names as registered with database/sql.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Archive stores streams and their chat messages.
type Archive struct {
	db     *sql.DB
	driver string
}

// DriverFor picks the database/sql driver for dsn.
func DriverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Archive, error) {
	if dsn == "" {
		return nil, fmt.Errorf("archive: empty dsn")
	}
	driver := DriverFor(dsn)
	if driver == DriverSQLite && !strings.Contains(dsn, "_pragma=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	a := &Archive{db: sqlDB, driver: driver}
	if err := a.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the underlying pool.
func (a *Archive) Close() error { return a.db.Close() }

// Driver returns the database/sql driver name in use.
func (a *Archive) Driver() string { return a.driver }

// Ping checks connectivity.
func (a *Archive) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }

// ph returns the n-th (1-based) bind placeholder for the driver.
func (a *Archive) ph(n int) string {
	if a.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (a *Archive) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = a.ph(i + 1)
	}
	return strings.Join(parts, ", ")
}

// timeArg converts t for storage. SQLite keeps RFC 3339 text.
func (a *Archive) timeArg(t time.Time) any {
	if a.driver == DriverSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

// RecordStream upserts the stream a session is connected to.
func (a *Archive) RecordStream(ctx context.Context, videoID, title, liveChatID string) error {
	q := `INSERT INTO streams (video_id, title, live_chat_id, last_connected_at) VALUES (` + a.placeholders(4) + `)
		ON CONFLICT (video_id) DO UPDATE SET title = excluded.title, live_chat_id = excluded.live_chat_id, last_connected_at = excluded.last_connected_at`
	if _, err := a.db.ExecContext(ctx, q, videoID, title, liveChatID, a.timeArg(time.Now())); err != nil {
		return fmt.Errorf("record stream %s: %w", videoID, err)
	}
	return nil
}

// InsertBatch stores a batch in one transaction. Messages already archived
// under the same provider id are skipped.
func (a *Archive) InsertBatch(ctx context.Context, videoID string, batch []chat.Message) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chat_messages (video_id, message_id, author, message, published_at) VALUES (`+
		a.placeholders(5)+`) ON CONFLICT DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range batch {
		id := sql.NullString{String: m.ID, Valid: m.ID != ""}
		if _, err := stmt.ExecContext(ctx, videoID, id, m.DisplayName, m.Content, a.timeArg(m.Timestamp)); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to limit archived messages for videoID, oldest first.
func (a *Archive) Recent(ctx context.Context, videoID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT message_id, author, message, published_at FROM (
		SELECT id, message_id, author, message, published_at FROM chat_messages
		WHERE video_id = ` + a.ph(1) + ` ORDER BY id DESC LIMIT ` + a.ph(2) + `
	) recent ORDER BY id ASC`
	rows, err := a.db.QueryContext(ctx, q, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	out := make([]chat.Message, 0)
	for rows.Next() {
		var (
			m         chat.Message
			id        sql.NullString
			published any
		)
		if err := rows.Scan(&id, &m.DisplayName, &m.Content, &published); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m.ID = id.String
		if m.Timestamp, err = scanTime(published); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	}
	return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
}
