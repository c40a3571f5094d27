package fake

import (
	"errors"
	"testing"

	"github.com/andrejsstepanovs/supadiag/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Priority int     `json:"priority,omitempty"`
	Due      *string `json:"due,omitempty"`
}

func seeded() *Backend {
	b := New()
	due := "2024-05-01"
	b.Seed("items",
		item{ID: "1", Name: "Alpha", Priority: 3, Due: &due},
		item{ID: "2", Name: "beta", Priority: 10},
		item{ID: "3", Name: "Gamma", Priority: 1},
	)
	return b
}

func TestSelect_FiltersOrderLimit(t *testing.T) {
	tests := []struct {
		name  string
		query backend.Query
		want  []string
	}{
		{
			name:  "numeric ordering desc",
			query: backend.Query{Table: "items", OrderBy: "priority"},
			want:  []string{"2", "1", "3"},
		},
		{
			name:  "ascending with limit",
			query: backend.Query{Table: "items", OrderBy: "priority", Ascending: true, Limit: 2},
			want:  []string{"3", "1"},
		},
		{
			name:  "range",
			query: backend.Query{Table: "items", Filters: []backend.Filter{backend.Gte("priority", "3")}, OrderBy: "id", Ascending: true},
			want:  []string{"1", "2"},
		},
		{
			name:  "ilike",
			query: backend.Query{Table: "items", Filters: []backend.Filter{backend.Ilike("name", "%A%")}, OrderBy: "id", Ascending: true},
			want:  []string{"1", "2", "3"},
		},
		{
			name:  "null checks",
			query: backend.Query{Table: "items", Filters: []backend.Filter{backend.NotNull("due")}},
			want:  []string{"1"},
		},
		{
			name:  "is null",
			query: backend.Query{Table: "items", Filters: []backend.Filter{backend.IsNull("due")}, OrderBy: "id", Ascending: true},
			want:  []string{"2", "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []item
			require.NoError(t, seeded().Select(tt.query, &got))
			ids := make([]string, 0, len(got))
			for _, it := range got {
				ids = append(ids, it.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSelect_Projection(t *testing.T) {
	var got []map[string]any
	require.NoError(t, seeded().Select(backend.Query{Table: "items", Columns: "id, name", Limit: 1, OrderBy: "id", Ascending: true}, &got))
	assert.Equal(t, []map[string]any{{"id": "1", "name": "Alpha"}}, got)
}

func TestSingleCountInsertUpdate(t *testing.T) {
	b := seeded()

	var one item
	err := b.Single(backend.Query{Table: "items", Filters: []backend.Filter{backend.Eq("id", "9")}}, &one)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	n, err := b.Count(backend.Query{Table: "items", Filters: []backend.Filter{backend.Lt("priority", "5")}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var created []map[string]any
	require.NoError(t, b.Insert("items", map[string]any{"name": "Delta"}, &created))
	require.Len(t, created, 1)
	assert.NotEmpty(t, created[0]["id"])
	assert.NotEmpty(t, created[0]["created_at"])

	var updated []item
	assert.Error(t, b.Update("items", map[string]any{"priority": 7}, nil, &updated))
	require.NoError(t, b.Update("items", map[string]any{"priority": 7}, []backend.Filter{backend.Eq("id", "3")}, &updated))
	require.Len(t, updated, 1)
	assert.Equal(t, 7, updated[0].Priority)
}

func TestFailuresAndRpc(t *testing.T) {
	b := seeded()
	boom := errors.New("boom")
	b.Fail("count", "items", boom)

	_, err := b.Count(backend.Query{Table: "items"})
	assert.ErrorIs(t, err, boom)

	var out []int
	assert.Error(t, b.Rpc("missing", nil, &out))

	b.Handle("double", func(args map[string]any) (any, error) {
		return []float64{args["n"].(float64) * 2}, nil
	})
	require.NoError(t, b.Rpc("double", map[string]any{"n": 21}, &out))
	assert.Equal(t, []int{42}, out)
	assert.Contains(t, b.Calls, "rpc:double")
}

func TestAuth(t *testing.T) {
	b := New()
	acc, err := b.SignUp("a@example.com", "pw", nil)
	require.NoError(t, err)

	_, err = b.SignUp("A@example.com", "pw", nil)
	assert.Error(t, err)

	session, err := b.SignIn("a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, session.UserID)

	_, err = b.SignIn("a@example.com", "wrong")
	assert.Error(t, err)

	require.NoError(t, b.SendPasswordReset("a@example.com"))
	assert.Equal(t, []string{"a@example.com"}, b.Resets)
}
