// Package markdown extracts GitHub-flavoured pipe tables from markdown, the
// format the receipt extractor emits for line items.
package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Alignment is a column alignment from the delimiter row.
type Alignment string

const (
	AlignNone   Alignment = ""
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// Table is a parsed pipe table. Every row has len(Header) cells.
type Table struct {
	Header []string
	Align  []Alignment
	Rows   [][]string
}

// Column returns the index of the header named name (case-insensitive), or
// -1.
func (t Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// Parser parses markdown documents, optionally through a Cache.
type Parser struct {
	md    goldmark.Markdown
	cache *Cache
}

// NewParser creates a Parser. cache may be nil.
func NewParser(cache *Cache) *Parser {
	return &Parser{
		md:    goldmark.New(goldmark.WithExtensions(extension.Table)),
		cache: cache,
	}
}

// ParseTables returns the tables in src without caching.
func ParseTables(src []byte) []Table {
	return NewParser(nil).Parse(src)
}

// Parse returns the tables in src in document order. Cached results are
// shared between callers and must not be modified.
func (p *Parser) Parse(src []byte) []Table {
	if p.cache == nil {
		return p.parse(src)
	}
	key := Key(src)
	if tables, ok := p.cache.Get(key); ok {
		return tables
	}
	tables := p.parse(src)
	p.cache.Add(key, tables)
	return tables
}

func (p *Parser) parse(src []byte) []Table {
	doc := p.md.Parser().Parse(text.NewReader(src))

	var tables []Table
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		tbl, ok := n.(*east.Table)
		if !ok {
			return ast.WalkContinue, nil
		}
		tables = append(tables, convert(tbl, src))
		return ast.WalkSkipChildren, nil
	})
	return tables
}

func convert(tbl *east.Table, src []byte) Table {
	var t Table
	for _, a := range tbl.Alignments {
		t.Align = append(t.Align, alignment(a))
	}
	for row := tbl.FirstChild(); row != nil; row = row.NextSibling() {
		cells := rowCells(row, src)
		switch row.(type) {
		case *east.TableHeader:
			t.Header = cells
		case *east.TableRow:
			t.Rows = append(t.Rows, cells)
		}
	}

	width := len(t.Header)
	for i, r := range t.Rows {
		t.Rows[i] = normalize(r, width)
	}
	t.Align = normalizeAlign(t.Align, width)
	return t
}

func rowCells(row ast.Node, src []byte) []string {
	var cells []string
	for c := row.FirstChild(); c != nil; c = c.NextSibling() {
		cells = append(cells, cellText(c, src))
	}
	return cells
}

func cellText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func alignment(a east.Alignment) Alignment {
	switch a {
	case east.AlignLeft:
		return AlignLeft
	case east.AlignCenter:
		return AlignCenter
	case east.AlignRight:
		return AlignRight
	default:
		return AlignNone
	}
}

func normalize(cells []string, width int) []string {
	if len(cells) == width {
		return cells
	}
	out := make([]string, width)
	copy(out, cells)
	return out
}

func normalizeAlign(al []Alignment, width int) []Alignment {
	if len(al) == width {
		return al
	}
	out := make([]Alignment, width)
	copy(out, al)
	return out
}
