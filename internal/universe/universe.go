// Package universe loads the list of symbols a run should process.
package universe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/pkg/httputil"
)

// Options controls how a universe source is read
type Options struct {
	Column    string // HTML header to read symbols from (default "Symbol")
	Selector  string // HTML table selector (default "table")
	DotToDash bool   // BRK.B → BRK-B (provider ticker convention)
}

// Loader resolves a universe source: a local text/CSV file, a local HTML file or a URL
// ⭐ SSOT: 유니버스 로딩은 여기서만
type Loader struct {
	httpClient *httputil.Client
	opts       Options
}

// NewLoader creates a new loader. httpClient is only needed for URL sources.
func NewLoader(httpClient *httputil.Client, opts Options) *Loader {
	if opts.Column == "" {
		opts.Column = "Symbol"
	}
	if opts.Selector == "" {
		opts.Selector = "table"
	}
	return &Loader{httpClient: httpClient, opts: opts}
}

// Load returns normalised, de-duplicated symbols in source order
func (l *Loader) Load(ctx context.Context, src string) ([]string, error) {
	var (
		symbols []string
		err     error
	)

	switch {
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		if l.httpClient == nil {
			return nil, fmt.Errorf("universe %s: no http client configured", src)
		}
		var body []byte
		body, err = l.httpClient.GetBody(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("fetch universe: %w", err)
		}
		symbols, err = ParseHTML(bytes.NewReader(body), l.opts.Selector, l.opts.Column)

	case isHTML(src):
		var f *os.File
		f, err = os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("open universe: %w", err)
		}
		defer f.Close()
		symbols, err = ParseHTML(f, l.opts.Selector, l.opts.Column)

	default:
		var f *os.File
		f, err = os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("open universe: %w", err)
		}
		defer f.Close()
		symbols, err = ParseList(f)
	}
	if err != nil {
		return nil, err
	}

	if l.opts.DotToDash {
		for i, s := range symbols {
			symbols[i] = strings.ReplaceAll(s, ".", "-")
		}
	}
	return contracts.NormalizeSymbols(symbols), nil
}

// ParseList reads one symbol per line. The first comma/whitespace separated field
// is used, '#' starts a comment and a "symbol"/"ticker" header row is skipped.
func ParseList(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ';' || r == '\t' || r == ' '
		})
		if len(fields) == 0 {
			continue
		}
		sym := strings.Trim(fields[0], `"'`)
		switch strings.ToLower(sym) {
		case "", "symbol", "ticker":
			continue
		}
		out = append(out, sym)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	return out, nil
}

// ParseHTML reads the column named column from the first table matching selector
// that has such a header.
func ParseHTML(r io.Reader, selector, column string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse universe html: %w", err)
	}

	var (
		out   []string
		found bool
	)
	doc.Find(selector).EachWithBreak(func(_ int, table *goquery.Selection) bool {
		col := -1
		table.Find("tr").First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
			if col < 0 && strings.EqualFold(strings.TrimSpace(cell.Text()), column) {
				col = i
			}
		})
		if col < 0 {
			return true
		}

		found = true
		table.Find("tr").Each(func(i int, row *goquery.Selection) {
			if i == 0 {
				return
			}
			cells := row.Find("td")
			if cells.Length() <= col {
				return
			}
			if sym := strings.TrimSpace(cells.Eq(col).Text()); sym != "" {
				out = append(out, sym)
			}
		})
		return false
	})

	if !found {
		return nil, fmt.Errorf("no table %q with column %q", selector, column)
	}
	return out, nil
}

func isHTML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	}
	return false
}
