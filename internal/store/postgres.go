// Package store reads studios and sessions from the studio Postgres database
// and caches loaded session windows.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	// Postgres driver registered as "postgres".
	_ "github.com/lib/pq"

	"studiocal/internal/apperror"
	"studiocal/internal/model"
)

const defaultSessionCapacity = 256

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sessionColumns lists columns returned by session SELECT queries.
var sessionColumns = []string{
	"s.id", "s.studio_id", "s.start_time", "s.end_time", "s.status",
	"s.client_id", "c.name",
	"s.room_id", "r.name",
	"s.engineer_id", "p.full_name", "p.email",
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("database url is empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// PostgresSource reads studios and their sessions.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a source over db.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Studio returns the studio with id, or a not-found error.
func (s *PostgresSource) Studio(ctx context.Context, id string) (*model.Studio, error) {
	query, args, err := psq.Select("id", "name", "timezone").
		From("studios").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building studio query: %w", err)
	}

	var st model.Studio
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&st.ID, &st.Name, &st.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("studio %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying studio: %w", err)
	}
	return &st, nil
}

// ListSessions returns the studio's sessions overlapping [from, to), ordered
// by start time.
func (s *PostgresSource) ListSessions(ctx context.Context, studioID string, from, to time.Time) ([]model.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("sessions s").
		LeftJoin("clients c ON c.id = s.client_id").
		LeftJoin("rooms r ON r.id = s.room_id").
		LeftJoin("profiles p ON p.id = s.engineer_id").
		Where(sq.Eq{"s.studio_id": studioID}).
		Where(sq.Lt{"s.start_time": to}).
		Where(sq.Gt{"s.end_time": from}).
		OrderBy("s.start_time ASC", "s.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]model.Session, 0, defaultSessionCapacity)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

func scanSession(rows *sql.Rows) (model.Session, error) {
	var (
		sess                            model.Session
		status                          string
		clientID, clientName            sql.NullString
		roomID, roomName                sql.NullString
		engineerID, engineerName, email sql.NullString
	)
	err := rows.Scan(
		&sess.ID,
		&sess.StudioID,
		&sess.StartTime,
		&sess.EndTime,
		&status,
		&clientID, &clientName,
		&roomID, &roomName,
		&engineerID, &engineerName, &email,
	)
	if err != nil {
		return sess, fmt.Errorf("scanning session row: %w", err)
	}

	sess.Source = model.SourceDB
	sess.Status = model.Status(status)
	sess.StartTime = sess.StartTime.UTC()
	sess.EndTime = sess.EndTime.UTC()
	if clientID.Valid {
		sess.Client = &model.Client{ID: clientID.String, Name: clientName.String}
	}
	if roomID.Valid {
		sess.Room = &model.Room{ID: roomID.String, Name: roomName.String}
	}
	if engineerID.Valid {
		sess.Engineer = &model.Engineer{ID: engineerID.String, FullName: engineerName.String, Email: email.String}
	}
	return sess, nil
}
