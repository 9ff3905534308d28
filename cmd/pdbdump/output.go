package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/vmihailenco/msgpack/v5"
)

// printer writes command results in the configured format.
type printer struct {
	w      io.Writer
	format string
	pretty bool
	color  bool
}

// print writes v as JSON or msgpack, or the table built by tab in table
// format. msgpack output uses the json struct tags so both encodings carry
// the same field names.
func (p *printer) print(v any, tab func() *table) error {
	switch p.format {
	case "msgpack":
		enc := msgpack.NewEncoder(p.w)
		enc.SetCustomStructTag("json")
		return enc.Encode(v)
	case "table":
		return tab().render(p.w, p.color)
	default:
		enc := json.NewEncoder(p.w)
		enc.SetEscapeHTML(false)
		if p.pretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(v)
	}
}

// table is a titled grid of cells rendered in aligned columns.
type table struct {
	title  string
	header []string
	rows   [][]string
	next   *table
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) add(cells ...any) {
	row := make([]string, len(cells))
	for i, c := range cells {
		row[i] = fmt.Sprint(c)
	}
	t.rows = append(t.rows, row)
}

// then chains another table rendered after t, separated by a blank line.
func (t *table) then(n *table) *table {
	last := t
	for last.next != nil {
		last = last.next
	}
	last.next = n
	return t
}

func (t *table) render(w io.Writer, useColor bool) error {
	titleColor := color.New(color.FgYellow, color.Bold)
	headColor := color.New(color.FgCyan, color.Bold)
	if useColor {
		titleColor.EnableColor()
		headColor.EnableColor()
	} else {
		titleColor.DisableColor()
		headColor.DisableColor()
	}

	for cur := t; cur != nil; cur = cur.next {
		if cur != t {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := cur.write(w, titleColor, headColor); err != nil {
			return err
		}
	}
	return nil
}

func (t *table) write(w io.Writer, titleColor, headColor *color.Color) error {
	if t.title != "" {
		if _, err := fmt.Fprintln(w, titleColor.Sprint(t.title)); err != nil {
			return err
		}
	}

	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(c))
			}
		}
	}

	line := func(cells []string, c *color.Color) error {
		var b strings.Builder
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			if i < len(cells)-1 && i < len(widths) {
				cell = runewidth.FillRight(cell, widths[i])
			}
			if c != nil {
				cell = c.Sprint(cell)
			}
			b.WriteString(cell)
		}
		_, err := fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
		return err
	}

	if len(t.header) > 0 {
		if err := line(t.header, headColor); err != nil {
			return err
		}
	}
	for _, row := range t.rows {
		if err := line(row, nil); err != nil {
			return err
		}
	}
	return nil
}
