package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

func init() {
	register("xlsx", extractXLSX)
}

func extractXLSX(ctx context.Context, data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w: %w", appErr.ErrInvalid, err)
	}
	defer f.Close()
	var sb strings.Builder
	sheets := f.GetSheetList()
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		sb.WriteString("Sheet: " + sheet + "\n")
		sb.WriteString(tableText(rows))
		sb.WriteString("\n")
	}
	return &Result{
		Text:     sb.String(),
		Metadata: map[string]interface{}{"sheets": sheets},
	}, nil
}
