package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

func init() {
	register("pdf", extractPDF)
}

func extractPDF(ctx context.Context, data []byte) (*Result, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w: %w", appErr.ErrInvalid, err)
	}
	var sb strings.Builder
	starts := make([]int, 0, r.NumPage())
	offset := 0
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		starts = append(starts, offset)
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		text = cleanText(text) + "\n\n"
		sb.WriteString(text)
		offset += utf8.RuneCountInString(text)
	}
	return &Result{
		Text:       sb.String(),
		PageStarts: starts,
		Metadata:   map[string]interface{}{"pages": r.NumPage()},
	}, nil
}
