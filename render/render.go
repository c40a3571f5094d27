// Package render prints command results as a table, JSON or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Tabular is implemented by results that have a table form.
type Tabular interface {
	Header() []string
	Rows() [][]string
}

type Printer struct {
	w      io.Writer
	format string
}

func New(w io.Writer, format string) (*Printer, error) {
	switch strings.ToLower(format) {
	case "", FormatTable:
		return &Printer{w: w, format: FormatTable}, nil
	case FormatJSON, FormatYAML:
		return &Printer{w: w, format: strings.ToLower(format)}, nil
	}
	return nil, fmt.Errorf("unsupported output format %q (use table, json or yaml)", format)
}

func (p *Printer) Format() string {
	return p.format
}

// Print writes v. In table mode v must be Tabular, a string, or a fmt.Stringer.
func (p *Printer) Print(v any) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		return p.yaml(v)
	}

	switch t := v.(type) {
	case Tabular:
		return p.table(t)
	case fmt.Stringer:
		_, err := fmt.Fprintln(p.w, t.String())
		return err
	case string:
		_, err := fmt.Fprintln(p.w, t)
		return err
	}
	return fmt.Errorf("%T has no table form", v)
}

func (p *Printer) table(t Tabular) error {
	rows := t.Rows()
	if len(rows) == 0 {
		_, err := fmt.Fprintln(p.w, "(no rows)")
		return err
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t.Header()...).
		Rows(rows...)
	_, err := fmt.Fprintln(p.w, tbl.String())
	return err
}

// yaml goes through JSON first so keys follow the json tags of the models.
func (p *Printer) yaml(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// Preview shortens s to at most n runes on a single line.
func Preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// KV is a two column field/value table for single records.
type KV [][2]string

func (kv KV) Header() []string { return []string{"FIELD", "VALUE"} }

func (kv KV) Rows() [][]string {
	rows := make([][]string, 0, len(kv))
	for _, pair := range kv {
		rows = append(rows, []string{pair[0], pair[1]})
	}
	return rows
}
