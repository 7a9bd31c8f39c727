package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

func TestFileType(t *testing.T) {
	cases := map[string]string{
		"report.PDF":  "pdf",
		"notes.md":    "md",
		"a.markdown":  "md",
		"page.htm":    "html",
		"data.csv":    "csv",
		"sheet.xlsx":  "xlsx",
		"letter.docx": "docx",
		"plain.txt":   "txt",
	}
	for name, want := range cases {
		got, err := FileType(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}
	_, err := FileType("binary.exe")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = FileType("noext")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestExtractPlainTrims(t *testing.T) {
	res, err := Extract(context.Background(), "txt", []byte("\r\n  hello\r\nworld  \n"))
	require.NoError(t, err)
	require.Equal(t, "hello\nworld", res.Text)
	require.NotNil(t, res.Metadata)
}

func TestExtractCSVKeepsHeaders(t *testing.T) {
	res, err := Extract(context.Background(), "csv", []byte("year,revenue\n2022,4.1\n2023,5.0\n"))
	require.NoError(t, err)
	require.Contains(t, res.Text, "year: 2023, revenue: 5.0")
	require.Equal(t, 3, res.Metadata["rows"])
}

func TestExtractMarkdown(t *testing.T) {
	md := "# Title\n\nSome *bold* text.\n\n- one\n- two\n\n```go\nfmt.Println(1)\n```\n"
	res, err := Extract(context.Background(), "md", []byte(md))
	require.NoError(t, err)
	require.Contains(t, res.Text, "Title")
	require.Contains(t, res.Text, "Some bold text.")
	require.Contains(t, res.Text, "fmt.Println(1)")
	require.NotContains(t, res.Text, "*")
	require.Equal(t, 1, res.Metadata["headings"])
}

func TestExtractHTMLSkipsScripts(t *testing.T) {
	page := `<html><head><title>Doc</title><script>var x = 1;</script></head><body><h1>Header</h1><p>First para.</p><p>Second para.</p></body></html>`
	res, err := Extract(context.Background(), "html", []byte(page))
	require.NoError(t, err)
	require.Equal(t, "Header\nFirst para.\nSecond para.", res.Text)
	require.Equal(t, "Doc", res.Metadata["title"])
}

func TestExtractDOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p><w:p><w:r><w:t>Second</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	res, err := Extract(context.Background(), "docx", buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "Hello world\nSecond", res.Text)
	require.Equal(t, 2, res.Metadata["paragraphs"])
}

func TestExtractDOCXInvalid(t *testing.T) {
	_, err := Extract(context.Background(), "docx", []byte("not a zip"))
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestExtractXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "region"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "sales"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "north"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 42))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	res, err := Extract(context.Background(), "xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Contains(t, res.Text, "Sheet: Sheet1")
	require.Contains(t, res.Text, "region: north, sales: 42")
}

func TestTrimLeadingSpaceShiftsPages(t *testing.T) {
	res := &Result{Text: "  abc\n\ndef", PageStarts: []int{0, 7}}
	trimLeadingSpace(res)
	require.Equal(t, "abc\n\ndef", res.Text)
	require.Equal(t, []int{0, 5}, res.PageStarts)
}
