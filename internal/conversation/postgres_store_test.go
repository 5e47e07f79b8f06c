package conversation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPostgresStoreWithQuerier(mock), mock
}

func TestPostgresStoreInsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(testConversationID, "pending", int64(1), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stored, err := s.PutIfVersion(context.Background(), &Conversation{ID: testConversationID, Status: StatusPending}, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec("UPDATE conversations").
		WithArgs(testConversationID, "completed", int64(3), pgxmock.AnyArg(), pgxmock.AnyArg(), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := s.PutIfVersion(context.Background(), &Conversation{ID: testConversationID, Status: StatusCompleted}, 2)
	assert.ErrorIs(t, err, ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDuplicateInsertConflicts(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err := s.PutIfVersion(context.Background(), &Conversation{ID: testConversationID}, 0)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestPostgresStoreGet(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	data, err := json.Marshal(&Conversation{ID: testConversationID, Status: StatusAwaitingResponse, Questions: []Question{{ID: "4", Text: "a"}}})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data, version FROM conversations WHERE id").
		WithArgs(testConversationID).
		WillReturnRows(pgxmock.NewRows([]string{"data", "version"}).AddRow(data, int64(5)))
	mock.ExpectQuery("SELECT data, version FROM conversations WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.Get(context.Background(), testConversationID)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingResponse, got.Status)
	assert.EqualValues(t, 5, got.Version)
	assert.Equal(t, QuestionID("4"), got.Questions[0].ID)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreList(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a, _ := json.Marshal(&Conversation{ID: "a"})
	b, _ := json.Marshal(&Conversation{ID: "b"})
	mock.ExpectQuery("SELECT data, version FROM conversations ORDER BY created_at DESC").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"data", "version"}).AddRow(a, int64(1)).AddRow(b, int64(2)))

	list, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.EqualValues(t, 2, list[1].Version)
}
