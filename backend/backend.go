// Package backend wraps the hosted relational data service (PostgREST + GoTrue)
// behind the handful of row and auth operations the commands need.
package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/supabase-community/gotrue-go/types"
	postgrest "github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Single when no row matched.
var ErrNotFound = errors.New("row not found")

// Rows is row-level access to named tables.
type Rows interface {
	Select(q Query, into any) error
	Single(q Query, into any) error
	Count(q Query) (int64, error)
	Insert(table string, row any, into any) error
	Update(table string, values any, filters []Filter, into any) error
}

// Caller invokes database functions.
type Caller interface {
	Rpc(name string, args any, into any) error
}

// Auth is the subset of the authentication service the commands use.
type Auth interface {
	SendPasswordReset(email string) error
	SignUp(email, password string, data map[string]any) (*Account, error)
	SignIn(email, password string) (*Session, error)
}

// Account is a freshly registered user.
type Account struct {
	ID               string
	Email            string
	Confirmed        bool
	ConfirmationSent bool
}

// Session describes a successful sign-in. The tokens are deliberately not kept.
type Session struct {
	UserID    string
	Email     string
	ExpiresIn int
	ExpiresAt time.Time
}

// Client implements Rows, Caller and Auth on top of supabase-go.
type Client struct {
	sb  *supabase.Client
	log *zap.Logger
}

// New opens a client. Nothing is sent over the network until the first request.
func New(url, key string, log *zap.Logger) (*Client, error) {
	sb, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return &Client{sb: sb, log: log}, nil
}

// Select fetches rows matching q into a pointer to a slice.
func (c *Client) Select(q Query, into any) error {
	fb, err := c.query(q, "", false)
	if err != nil {
		return err
	}
	if _, err := fb.ExecuteTo(into); err != nil {
		return fmt.Errorf("failed to select from %s: %w", q.Table, err)
	}
	return nil
}

// Single fetches the first row matching q into a pointer to a struct.
func (c *Client) Single(q Query, into any) error {
	q.Limit = 1
	var rows []json.RawMessage
	if err := c.Select(q, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s: %w", q.Table, ErrNotFound)
	}
	if err := json.Unmarshal(rows[0], into); err != nil {
		return fmt.Errorf("failed to decode %s row: %w", q.Table, err)
	}
	return nil
}

// Count runs a head-only exact count.
func (c *Client) Count(q Query) (int64, error) {
	fb, err := c.query(q, "exact", true)
	if err != nil {
		return 0, err
	}
	_, count, err := fb.Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.Table, err)
	}
	return count, nil
}

// Insert adds row and decodes the stored representation into a pointer to a slice.
func (c *Client) Insert(table string, row any, into any) error {
	c.log.Debug("insert", zap.String("table", table))
	fb := c.sb.From(table).Insert(row, false, "", "representation", "")
	if _, err := fb.ExecuteTo(into); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// Update sets values on every row matching filters and decodes the updated rows.
// At least one filter is required.
func (c *Client) Update(table string, values any, filters []Filter, into any) error {
	if len(filters) == 0 {
		return fmt.Errorf("refusing to update %s without a filter", table)
	}
	c.log.Debug("update", zap.String("table", table), zap.Int("filters", len(filters)))

	fb, err := applyFilters(c.sb.From(table).Update(values, "representation", ""), filters)
	if err != nil {
		return err
	}
	if _, err := fb.ExecuteTo(into); err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	return nil
}

// Rpc calls a database function and decodes its JSON result.
func (c *Client) Rpc(name string, args any, into any) error {
	c.log.Debug("rpc", zap.String("function", name))
	body := c.sb.Rpc(name, "", args)
	if body == "" {
		return fmt.Errorf("rpc %s returned no response", name)
	}

	if err := json.Unmarshal([]byte(body), into); err != nil {
		var execErr postgrest.ExecuteError
		if json.Unmarshal([]byte(body), &execErr) == nil && execErr.Message != "" {
			return fmt.Errorf("rpc %s failed: (%s) %s", name, execErr.Code, execErr.Message)
		}
		return fmt.Errorf("failed to decode rpc %s response: %w", name, err)
	}
	return nil
}

// SendPasswordReset asks the auth service to email a recovery link.
func (c *Client) SendPasswordReset(email string) error {
	if err := c.sb.Auth.Recover(types.RecoverRequest{Email: email}); err != nil {
		return fmt.Errorf("failed to send password reset: %w", err)
	}
	return nil
}

// SignUp registers a user with optional metadata.
func (c *Client) SignUp(email, password string, data map[string]any) (*Account, error) {
	resp, err := c.sb.Auth.Signup(types.SignupRequest{
		Email:    email,
		Password: password,
		Data:     data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}

	return &Account{
		ID:               resp.User.ID.String(),
		Email:            resp.User.Email,
		Confirmed:        resp.User.EmailConfirmedAt != nil,
		ConfirmationSent: resp.User.ConfirmationSentAt != nil,
	}, nil
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(email, password string) (*Session, error) {
	token, err := c.sb.Auth.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	session := &Session{
		UserID:    token.User.ID.String(),
		Email:     token.User.Email,
		ExpiresIn: token.ExpiresIn,
	}
	if token.ExpiresAt > 0 {
		session.ExpiresAt = time.Unix(token.ExpiresAt, 0)
	}
	return session, nil
}

func (c *Client) query(q Query, count string, head bool) (*postgrest.FilterBuilder, error) {
	if q.Table == "" {
		return nil, errors.New("query has no table")
	}
	c.log.Debug("select",
		zap.String("table", q.Table),
		zap.String("columns", q.columns()),
		zap.Int("filters", len(q.Filters)),
		zap.Bool("count", head),
	)

	fb, err := applyFilters(c.sb.From(q.Table).Select(q.columns(), count, head), q.Filters)
	if err != nil {
		return nil, err
	}
	if q.OrderBy != "" {
		fb = fb.Order(q.OrderBy, &postgrest.OrderOpts{Ascending: q.Ascending})
	}
	if q.Limit > 0 {
		fb = fb.Limit(q.Limit, "")
	}
	return fb, nil
}
