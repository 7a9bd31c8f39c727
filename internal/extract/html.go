package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

func init() {
	register("html", extractHTML)
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "table": true, "pre": true,
}

func extractHTML(ctx context.Context, data []byte) (*Result, error) {
	z := html.NewTokenizer(bytes.NewReader(data))
	var sb strings.Builder
	title := ""
	skip := 0
	inTitle := false
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != nil && err != io.EOF {
				return nil, fmt.Errorf("parse html: %w: %w", appErr.ErrInvalid, err)
			}
			meta := map[string]interface{}{}
			if title != "" {
				meta["title"] = title
			}
			return &Result{Text: collapseBlankLines(sb.String()), Metadata: meta}, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch tag {
			case "script", "style", "noscript":
				if tt == html.StartTagToken {
					skip++
				}
			case "title":
				inTitle = true
			}
			if blockTags[tag] {
				sb.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch tag {
			case "script", "style", "noscript":
				if skip > 0 {
					skip--
				}
			case "title":
				inTitle = false
			}
			if blockTags[tag] {
				sb.WriteString("\n")
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			txt := strings.TrimSpace(string(z.Text()))
			if txt == "" {
				continue
			}
			if inTitle {
				title = txt
				continue
			}
			sb.WriteString(txt)
			sb.WriteString(" ")
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
