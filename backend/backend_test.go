package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type taskRow struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(server.URL, "service-key", zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New("", "key", zap.NewNop())
	assert.Error(t, err)

	_, err = New("http://localhost", "", zap.NewNop())
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/tasks", r.URL.Path)
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "id,title,status", q.Get("select"))
		assert.Equal(t, "eq.p1", q.Get("project_id"))
		assert.Equal(t, "lte.2024-05-01", q.Get("due_date"))
		assert.Equal(t, "not.is.null", q.Get("title"))
		assert.Equal(t, "created_at.desc.nullslast", q.Get("order"))
		assert.Equal(t, "5", q.Get("limit"))

		_, _ = w.Write([]byte(`[{"id":"t1","title":"a","status":"open"},{"id":"t2","title":"b","status":"done"}]`))
	})

	var rows []taskRow
	err := c.Select(Query{
		Table:   "tasks",
		Columns: "id, title, status",
		Filters: []Filter{Eq("project_id", "p1"), Lte("due_date", "2024-05-01"), NotNull("title")},
		OrderBy: "created_at",
		Limit:   5,
	}, &rows)
	require.NoError(t, err)
	assert.Equal(t, []taskRow{{"t1", "a", "open"}, {"t2", "b", "done"}}, rows)
}

func TestSelect_RejectsBadFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL)
	})

	var rows []taskRow
	err := c.Select(Query{Table: "tasks", Filters: []Filter{{Column: "x", Op: "between", Value: "1"}}}, &rows)
	assert.Error(t, err)

	err = c.Select(Query{Table: "tasks", Filters: []Filter{Gte("created_at", "a"), Lte("created_at", "b")}}, &rows)
	assert.Error(t, err)

	err = c.Select(Query{}, &rows)
	assert.Error(t, err)
}

func TestSelect_ServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"42P01","message":"relation \"public.nope\" does not exist"}`))
	})

	var rows []taskRow
	err := c.Select(Query{Table: "nope"}, &rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "42P01")
}

func TestSingle(t *testing.T) {
	empty := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		if empty {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"t1","title":"a","status":"open"}]`))
	})

	var row taskRow
	require.NoError(t, c.Single(Query{Table: "tasks", Filters: []Filter{Eq("id", "t1")}}, &row))
	assert.Equal(t, "a", row.Title)

	empty = true
	err := c.Single(Query{Table: "tasks", Filters: []Filter{Eq("id", "missing")}}, &row)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, "is.null", r.URL.Query().Get("embedding"))
		w.Header().Set("Content-Range", "*/42")
	})

	count, err := c.Count(Query{Table: "document_chunks", Columns: "id", Filters: []Filter{IsNull("embedding")}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}

func TestInsert(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		body, _ := io.ReadAll(r.Body)
		var sent map[string]any
		assert.NoError(t, json.Unmarshal(body, &sent))
		assert.Equal(t, "write tests", sent["title"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"t9","title":"write tests","status":"open"}]`))
	})

	var created []taskRow
	err := c.Insert("tasks", map[string]any{"title": "write tests", "status": "open"}, &created)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "t9", created[0].ID)
}

func TestUpdate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.t1", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`[{"id":"t1","title":"a","status":"done"}]`))
	})

	var updated []taskRow
	err := c.Update("tasks", map[string]any{"status": "done"}, nil, &updated)
	assert.Error(t, err)

	err = c.Update("tasks", map[string]any{"status": "done"}, []Filter{Eq("id", "t1")}, &updated)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "done", updated[0].Status)
}

func TestRpc(t *testing.T) {
	fail := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/match_documents", r.URL.Path)
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"PGRST202","message":"Could not find the function"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"similarity":0.9}]`))
	})

	var out []map[string]any
	require.NoError(t, c.Rpc("match_documents", map[string]any{"match_count": 1}, &out))
	require.Len(t, out, 1)
	assert.Equal(t, 0.9, out[0]["similarity"])

	fail = true
	err := c.Rpc("match_documents", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PGRST202")
}

func TestSendPasswordReset(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/recover", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user@example.com", req["email"])
		_, _ = w.Write([]byte(`{}`))
	})

	assert.NoError(t, c.SendPasswordReset("user@example.com"))
}

func TestSignIn(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		_, _ = w.Write([]byte(`{
			"access_token": "secret",
			"refresh_token": "also-secret",
			"token_type": "bearer",
			"expires_in": 3600,
			"expires_at": 1700000000,
			"user": {"id": "0b9f7a1e-8c1f-4f55-9a9f-6a2c9c1d2e3f", "email": "user@example.com"}
		}`))
	})

	session, err := c.SignIn("user@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "0b9f7a1e-8c1f-4f55-9a9f-6a2c9c1d2e3f", session.UserID)
	assert.Equal(t, "user@example.com", session.Email)
	assert.Equal(t, 3600, session.ExpiresIn)
	assert.Equal(t, int64(1700000000), session.ExpiresAt.Unix())
}
