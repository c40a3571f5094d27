// Package accounts looks up user profiles and exercises the auth service.
package accounts

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/andrejsstepanovs/supadiag/backend"
	"github.com/andrejsstepanovs/supadiag/models"
	"go.uber.org/zap"
)

const profilesTable = "profiles"

type Service struct {
	rows backend.Rows
	auth backend.Auth
	log  *zap.Logger
	now  func() time.Time
}

// New builds the service. auth may be nil for profile lookups only.
func New(rows backend.Rows, auth backend.Auth, log *zap.Logger) *Service {
	return &Service{rows: rows, auth: auth, log: log, now: time.Now}
}

type Profiles []models.Profile

func (p Profiles) Header() []string {
	return []string{"ID", "EMAIL", "NAME", "ROLE", "CREATED"}
}

func (p Profiles) Rows() [][]string {
	rows := make([][]string, 0, len(p))
	for _, u := range p {
		rows = append(rows, []string{u.ID, u.Email, u.FullName, u.Role, u.CreatedAt.Format(time.DateTime)})
	}
	return rows
}

// Find returns the profile with the given email, matched case-insensitively.
func (s *Service) Find(email string) (*models.Profile, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	var p models.Profile
	err = s.rows.Single(backend.Query{
		Table:   profilesTable,
		Columns: "id,email,full_name,role,created_at",
		Filters: []backend.Filter{backend.Ilike("email", email)},
	}, &p)
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", email, err)
	}
	return &p, nil
}

// Recent lists profiles created at or after since, newest first.
func (s *Service) Recent(since time.Duration, limit int) (Profiles, error) {
	if since <= 0 {
		return nil, errors.New("since must be positive")
	}
	if limit <= 0 {
		limit = 50
	}
	from := s.now().UTC().Add(-since)

	var list Profiles
	err := s.rows.Select(backend.Query{
		Table:   profilesTable,
		Columns: "id,email,full_name,role,created_at",
		Filters: []backend.Filter{backend.Gte("created_at", from.Format(time.RFC3339))},
		OrderBy: "created_at",
		Limit:   limit,
	}, &list)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent users: %w", err)
	}
	s.log.Info("recent users", zap.Time("since", from), zap.Int("count", len(list)))
	return list, nil
}

// ResetPassword asks the auth service to send a recovery email.
func (s *Service) ResetPassword(email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := s.requireAuth(); err != nil {
		return err
	}
	if err := s.auth.SendPasswordReset(email); err != nil {
		return err
	}
	s.log.Info("password reset requested", zap.String("email", email))
	return nil
}

type SignUpResult struct {
	backend.Account
}

func (r SignUpResult) Header() []string { return []string{"FIELD", "VALUE"} }

func (r SignUpResult) Rows() [][]string {
	return [][]string{
		{"user id", r.ID},
		{"email", r.Email},
		{"confirmed", strconv.FormatBool(r.Confirmed)},
		{"confirmation sent", strconv.FormatBool(r.ConfirmationSent)},
	}
}

// SignUp registers a user; name, when set, is stored as full_name metadata.
func (s *Service) SignUp(email, password, name string) (*SignUpResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}
	if err := s.requireAuth(); err != nil {
		return nil, err
	}

	var data map[string]any
	if name = strings.TrimSpace(name); name != "" {
		data = map[string]any{"full_name": name}
	}
	acc, err := s.auth.SignUp(email, password, data)
	if err != nil {
		return nil, err
	}
	s.log.Info("user signed up", zap.String("user", acc.ID), zap.Bool("confirmed", acc.Confirmed))
	return &SignUpResult{Account: *acc}, nil
}

type SignInResult struct {
	backend.Session
}

func (r SignInResult) Header() []string { return []string{"FIELD", "VALUE"} }

func (r SignInResult) Rows() [][]string {
	expires := "-"
	if !r.ExpiresAt.IsZero() {
		expires = r.ExpiresAt.UTC().Format(time.DateTime)
	}
	return [][]string{
		{"user id", r.UserID},
		{"email", r.Email},
		{"expires in", (time.Duration(r.ExpiresIn) * time.Second).String()},
		{"expires at", expires},
	}
}

// SignIn checks credentials. Tokens are never part of the result.
func (s *Service) SignIn(email, password string) (*SignInResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, errors.New("password is required")
	}
	if err := s.requireAuth(); err != nil {
		return nil, err
	}
	session, err := s.auth.SignIn(email, password)
	if err != nil {
		return nil, err
	}
	s.log.Info("signed in", zap.String("user", session.UserID))
	return &SignInResult{Session: *session}, nil
}

func (s *Service) requireAuth() error {
	if s.auth == nil {
		return errors.New("auth service is not configured")
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("invalid email address %q", email)
	}
	return strings.ToLower(email), nil
}
