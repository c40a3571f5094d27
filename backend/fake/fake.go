// Package fake is an in-memory stand-in for the hosted data service, used by
// command tests.
package fake

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andrejsstepanovs/supadiag/backend"
	"github.com/google/uuid"
)

type row = map[string]any

// RpcFunc handles a database function call.
type RpcFunc func(args map[string]any) (any, error)

type account struct {
	id       string
	email    string
	password string
}

// Backend implements backend.Rows, backend.Caller and backend.Auth.
type Backend struct {
	mu       sync.Mutex
	tables   map[string][]row
	rpcs     map[string]RpcFunc
	failures map[string]error
	accounts map[string]account

	// Calls records every operation as "op:table".
	Calls []string
	// Resets records addresses a password reset was sent to.
	Resets []string
	Now    func() time.Time
}

var (
	_ backend.Rows   = (*Backend)(nil)
	_ backend.Caller = (*Backend)(nil)
	_ backend.Auth   = (*Backend)(nil)
)

func New() *Backend {
	return &Backend{
		tables:   map[string][]row{},
		rpcs:     map[string]RpcFunc{},
		failures: map[string]error{},
		accounts: map[string]account{},
		Now:      time.Now,
	}
}

// Seed appends rows (structs or maps) to table as they would be stored.
func (b *Backend) Seed(table string, rows ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range rows {
		m, err := toRow(r)
		if err != nil {
			panic(fmt.Sprintf("fake: cannot seed %s: %v", table, err))
		}
		b.tables[table] = append(b.tables[table], m)
	}
}

// Rows returns a copy of the stored rows of table.
func (b *Backend) Rows(table string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0, len(b.tables[table]))
	for _, r := range b.tables[table] {
		out = append(out, clone(r))
	}
	return out
}

// Fail makes every subsequent op on target return err. op is one of select,
// single, count, insert, update, rpc or auth; target is the table, function
// name or auth method.
func (b *Backend) Fail(op, target string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op+":"+target] = err
}

// Handle registers a database function.
func (b *Backend) Handle(name string, fn RpcFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rpcs[name] = fn
}

// AddAccount registers credentials for SignIn and returns the user id.
func (b *Backend) AddAccount(email, password string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.NewString()
	b.accounts[strings.ToLower(email)] = account{id: id, email: email, password: password}
	return id
}

func (b *Backend) Select(q backend.Query, into any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("select", q.Table); err != nil {
		return err
	}
	rows, err := b.query(q)
	if err != nil {
		return err
	}
	return decode(rows, into)
}

func (b *Backend) Single(q backend.Query, into any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("single", q.Table); err != nil {
		return err
	}
	q.Limit = 1
	rows, err := b.query(q)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s: %w", q.Table, backend.ErrNotFound)
	}
	return decode(rows[0], into)
}

func (b *Backend) Count(q backend.Query) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("count", q.Table); err != nil {
		return 0, err
	}
	q.Limit = 0
	rows, err := b.query(q)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (b *Backend) Insert(table string, r any, into any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("insert", table); err != nil {
		return err
	}

	m, err := toRow(r)
	if err != nil {
		return err
	}
	if id, ok := m["id"]; !ok || id == nil || id == "" {
		m["id"] = uuid.NewString()
	}
	if ts, ok := m["created_at"]; !ok || ts == nil {
		m["created_at"] = b.Now().UTC().Format(time.RFC3339Nano)
	}
	b.tables[table] = append(b.tables[table], m)
	return decode([]row{clone(m)}, into)
}

func (b *Backend) Update(table string, values any, filters []backend.Filter, into any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("update", table); err != nil {
		return err
	}
	if len(filters) == 0 {
		return fmt.Errorf("refusing to update %s without a filter", table)
	}

	patch, err := toRow(values)
	if err != nil {
		return err
	}
	updated := []row{}
	for _, r := range b.tables[table] {
		ok, err := matches(r, filters)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		updated = append(updated, clone(r))
	}
	return decode(updated, into)
}

func (b *Backend) Rpc(name string, args any, into any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("rpc", name); err != nil {
		return err
	}
	fn, ok := b.rpcs[name]
	if !ok {
		return fmt.Errorf("rpc %s failed: (PGRST202) Could not find the function public.%s", name, name)
	}

	params := row{}
	if args != nil {
		var err error
		if params, err = toRow(args); err != nil {
			return err
		}
	}
	out, err := fn(params)
	if err != nil {
		return fmt.Errorf("rpc %s failed: %w", name, err)
	}
	return decode(out, into)
}

func (b *Backend) SendPasswordReset(email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("auth", "reset"); err != nil {
		return err
	}
	b.Resets = append(b.Resets, email)
	return nil
}

func (b *Backend) SignUp(email, password string, data map[string]any) (*backend.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("auth", "signup"); err != nil {
		return nil, err
	}
	key := strings.ToLower(email)
	if _, exists := b.accounts[key]; exists {
		return nil, errors.New("failed to sign up: user already registered")
	}
	acc := account{id: uuid.NewString(), email: email, password: password}
	b.accounts[key] = acc
	return &backend.Account{ID: acc.id, Email: email, ConfirmationSent: true}, nil
}

func (b *Backend) SignIn(email, password string) (*backend.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("auth", "signin"); err != nil {
		return nil, err
	}
	acc, ok := b.accounts[strings.ToLower(email)]
	if !ok || acc.password != password {
		return nil, errors.New("failed to sign in: invalid login credentials")
	}
	return &backend.Session{
		UserID:    acc.id,
		Email:     acc.email,
		ExpiresIn: 3600,
		ExpiresAt: b.Now().Add(time.Hour).Truncate(time.Second),
	}, nil
}

func (b *Backend) check(op, target string) error {
	b.Calls = append(b.Calls, op+":"+target)
	if target == "" && op != "auth" {
		return errors.New("query has no table")
	}
	return b.failures[op+":"+target]
}

func (b *Backend) query(q backend.Query) ([]row, error) {
	var out []row
	for _, r := range b.tables[q.Table] {
		ok, err := matches(r, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			x, y := out[i][q.OrderBy], out[j][q.OrderBy]
			// nulls last in either direction
			if x == nil || y == nil {
				return x != nil && y == nil
			}
			c := compare(x, y)
			if q.Ascending {
				return c < 0
			}
			return c > 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	projected := make([]row, 0, len(out))
	cols := projection(q.Columns)
	for _, r := range out {
		projected = append(projected, project(r, cols))
	}
	return projected, nil
}

func matches(r row, filters []backend.Filter) (bool, error) {
	seen := map[string]bool{}
	for _, f := range filters {
		if f.Column == "" {
			return false, fmt.Errorf("filter %q has no column", f.Op)
		}
		if seen[f.Column] {
			return false, fmt.Errorf("column %s is filtered more than once", f.Column)
		}
		seen[f.Column] = true

		v, present := r[f.Column]
		if !present {
			v = nil
		}
		var ok bool
		switch f.Op {
		case backend.OpEq:
			ok = v != nil && compare(v, f.Value) == 0
		case backend.OpNeq:
			ok = v != nil && compare(v, f.Value) != 0
		case backend.OpGt:
			ok = v != nil && compare(v, f.Value) > 0
		case backend.OpGte:
			ok = v != nil && compare(v, f.Value) >= 0
		case backend.OpLt:
			ok = v != nil && compare(v, f.Value) < 0
		case backend.OpLte:
			ok = v != nil && compare(v, f.Value) <= 0
		case backend.OpLike:
			ok = v != nil && like(stringify(v), f.Value, false)
		case backend.OpIlike:
			ok = v != nil && like(stringify(v), f.Value, true)
		case backend.OpIs:
			ok = isValue(v, f.Value)
		case backend.OpNotIs:
			ok = !isValue(v, f.Value)
		default:
			return false, fmt.Errorf("unsupported filter operator %q on %s", f.Op, f.Column)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func isValue(v any, want string) bool {
	switch want {
	case "null":
		return v == nil
	case "true":
		return v == true
	case "false":
		return v == false
	}
	return false
}

// compare orders numerically when both sides are numbers, lexically otherwise.
func compare(a, b any) int {
	as, bs := stringify(a), stringify(b)
	af, aerr := strconv.ParseFloat(as, 64)
	bf, berr := strconv.ParseFloat(bs, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(as, bs)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}

func like(value, pattern string, fold bool) bool {
	var sb strings.Builder
	sb.WriteString("^")
	if fold {
		sb.WriteString("(?is)")
	} else {
		sb.WriteString("(?s)")
	}
	for _, r := range pattern {
		switch r {
		case '%', '*':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String()).MatchString(value)
}

func projection(columns string) []string {
	if columns == "" || columns == "*" {
		return nil
	}
	var cols []string
	for _, c := range strings.Split(columns, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func project(r row, cols []string) row {
	if cols == nil {
		return clone(r)
	}
	out := make(row, len(cols))
	for _, c := range cols {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func toRow(v any) (row, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m row
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("row must encode as a JSON object: %w", err)
	}
	if m == nil {
		m = row{}
	}
	return m, nil
}

func clone(r row) row {
	out := make(row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func decode(v any, into any) error {
	if into == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}
