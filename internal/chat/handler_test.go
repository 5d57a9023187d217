package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	myMiddleware "dholuo-chat/internal/middleware"
)

type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (int64, string, error) {
	if token != "good" {
		return 0, "", errors.New("invalid token")
	}
	return 1, "akinyi", nil
}

func newTestRouter(t *testing.T) (http.Handler, pgxmock.PgxPoolIface) {
	t.Helper()
	svc, mock := newMockService(t, &recordingPublisher{})
	h := NewHandler(svc, svc.log)

	r := chi.NewRouter()
	r.Use(myMiddleware.NewAuthMiddleware(staticValidator{}).Handle)
	r.Get("/api/conversations", h.ListConversations)
	r.Post("/api/conversations", h.StartConversation)
	r.Get("/api/conversations/{id}", h.GetConversation)
	r.Put("/api/conversations/{id}", h.UpdateConversation)
	r.Delete("/api/conversations/{id}", h.DeleteConversation)
	return r, mock
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_GetConversation(t *testing.T) {
	r, mock := newTestRouter(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM conversations WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(conversationColumns).AddRow(int64(3), int64(1), "Lessons", "luo", now))
	mock.ExpectQuery("SELECT (.+) FROM messages").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(messageColumns).
			AddRow(int64(1), int64(3), "hello", true, nil, nil, nil, now))

	rec := do(t, r, http.MethodGet, "/api/conversations/3", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body ConversationWithMessages
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Lessons", body.Conversation.Title)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "hello", body.Messages[0].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_ConversationErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		setup      func(mock pgxmock.PgxPoolIface)
		wantStatus int
	}{
		{
			name:   "not found",
			method: http.MethodGet,
			path:   "/api/conversations/8",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM conversations WHERE id").WithArgs(int64(8)).
					WillReturnError(pgx.ErrNoRows)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "other owner",
			method: http.MethodDelete,
			path:   "/api/conversations/8",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM conversations WHERE id").WithArgs(int64(8)).
					WillReturnRows(pgxmock.NewRows(conversationColumns).AddRow(int64(8), int64(2), "x", "eng", time.Now()))
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "bad id",
			method:     http.MethodGet,
			path:       "/api/conversations/abc",
			setup:      func(pgxmock.PgxPoolIface) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing title",
			method:     http.MethodPost,
			path:       "/api/conversations",
			body:       `{"language":"luo"}`,
			setup:      func(pgxmock.PgxPoolIface) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "database down",
			method: http.MethodGet,
			path:   "/api/conversations",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM conversations").WithArgs(int64(1)).WillReturnError(errors.New("connection refused"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newTestRouter(t)
			tt.setup(mock)

			rec := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_DeleteConversation(t *testing.T) {
	r, mock := newTestRouter(t)

	mock.ExpectQuery("FROM conversations WHERE id").WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(conversationColumns).AddRow(int64(3), int64(1), "Lessons", "luo", time.Now()))
	mock.ExpectExec("DELETE FROM conversations").WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	rec := do(t, r, http.MethodDelete, "/api/conversations/3", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_RequiresToken(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
