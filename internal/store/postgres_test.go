package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiocal/internal/apperror"
	"studiocal/internal/model"
)

func TestStudio(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, name, timezone FROM studios WHERE id = \\$1").
		WithArgs("studio-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "timezone"}).
			AddRow("studio-1", "Blue Room", "America/New_York"))

	src := NewPostgresSource(db)
	st, err := src.Studio(context.Background(), "studio-1")
	require.NoError(t, err)
	assert.Equal(t, "Blue Room", st.Name)
	assert.Equal(t, "America/New_York", st.Timezone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudioNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM studios").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "timezone"}))

	_, err = NewPostgresSource(db).Studio(context.Background(), "missing")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2024, 3, 10, 22, 30, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	rows := sqlmock.NewRows([]string{
		"id", "studio_id", "start_time", "end_time", "status",
		"client_id", "name", "room_id", "name", "engineer_id", "full_name", "email",
	}).
		AddRow("sess-1", "studio-1", start, end, "scheduled",
			"client-1", "Ada", nil, nil, "eng-1", nil, "eng@example.com").
		AddRow("sess-2", "studio-1", end, end.Add(time.Hour), "cancelled",
			nil, nil, "room-1", "Live Room", nil, nil, nil)

	mock.ExpectQuery("SELECT .+ FROM sessions s LEFT JOIN clients c .+ LEFT JOIN rooms r .+ LEFT JOIN profiles p .+ ORDER BY s.start_time ASC").
		WithArgs("studio-1", to, from).
		WillReturnRows(rows)

	sessions, err := NewPostgresSource(db).ListSessions(context.Background(), "studio-1", from, to)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	first := sessions[0]
	assert.Equal(t, "sess-1", first.ID)
	assert.Equal(t, model.SourceDB, first.Source)
	assert.Equal(t, model.StatusScheduled, first.Status)
	assert.True(t, first.StartTime.Equal(start))
	require.NotNil(t, first.Client)
	assert.Equal(t, "Ada", first.Client.Name)
	assert.Nil(t, first.Room)
	require.NotNil(t, first.Engineer)
	assert.Equal(t, "eng@example.com", first.Engineer.DisplayName())

	second := sessions[1]
	assert.Equal(t, model.StatusCancelled, second.Status)
	assert.Nil(t, second.Client)
	assert.Nil(t, second.Engineer)
	assert.Equal(t, "Live Room", second.RoomName())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessionsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM sessions s").WillReturnError(errors.New("connection reset"))

	_, err = NewPostgresSource(db).ListSessions(context.Background(), "studio-1", time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestOpenRejectsEmptyURL(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "000001_studio_calendar.up.sql")
	assert.Contains(t, names, "000001_studio_calendar.down.sql")
}
