package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

// Result is the plain text of a document. PageStarts holds the rune offset
// where each page begins, when the format has pages.
type Result struct {
	Text       string
	PageStarts []int
	Metadata   map[string]interface{}
}

type Extractor func(ctx context.Context, data []byte) (*Result, error)

// ErrUnsupported is also an ErrInvalid.
var ErrUnsupported = errors.New("unsupported file type")

var registry = map[string]Extractor{}

func register(fileType string, fn Extractor) {
	registry[fileType] = fn
}

func init() {
	register("txt", extractPlain)
	register("csv", extractCSV)
}

// FileType returns the normalised type of filename, or ErrInvalid when no
// extractor handles it.
func FileType(filename string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch ext {
	case "markdown":
		ext = "md"
	case "htm":
		ext = "html"
	case "text":
		ext = "txt"
	}
	if _, ok := registry[ext]; !ok {
		return "", fmt.Errorf("%w %q: %w", ErrUnsupported, ext, appErr.ErrInvalid)
	}
	return ext, nil
}

func SupportedTypes() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

func Extract(ctx context.Context, fileType string, data []byte) (*Result, error) {
	fn, ok := registry[fileType]
	if !ok {
		return nil, fmt.Errorf("%w %q: %w", ErrUnsupported, fileType, appErr.ErrInvalid)
	}
	res, err := fn(ctx, data)
	if err != nil {
		return nil, err
	}
	trimLeadingSpace(res)
	if res.Metadata == nil {
		res.Metadata = map[string]interface{}{}
	}
	return res, nil
}

func extractPlain(ctx context.Context, data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}
	return &Result{Text: cleanText(string(data))}, nil
}

func extractCSV(ctx context.Context, data []byte) (*Result, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w: %w", appErr.ErrInvalid, err)
	}
	return &Result{
		Text:     tableText(records),
		Metadata: map[string]interface{}{"rows": len(records)},
	}, nil
}

// tableText renders rows as "header: value" lines so each chunk keeps the
// column names next to the numbers.
func tableText(records [][]string) string {
	if len(records) == 0 {
		return ""
	}
	header := records[0]
	var sb strings.Builder
	sb.WriteString(strings.Join(header, " | "))
	sb.WriteString("\n")
	for _, row := range records[1:] {
		parts := make([]string, 0, len(row))
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				parts = append(parts, strings.TrimSpace(header[i])+": "+cell)
			} else {
				parts = append(parts, cell)
			}
		}
		if len(parts) == 0 {
			continue
		}
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\x00", "")
}

func trimLeadingSpace(res *Result) {
	trimmed := strings.TrimLeftFunc(res.Text, unicode.IsSpace)
	shift := utf8.RuneCountInString(res.Text) - utf8.RuneCountInString(trimmed)
	res.Text = strings.TrimRightFunc(trimmed, unicode.IsSpace)
	for i := range res.PageStarts {
		res.PageStarts[i] -= shift
		if res.PageStarts[i] < 0 {
			res.PageStarts[i] = 0
		}
	}
}
