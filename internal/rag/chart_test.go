package rag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/model"
)

func TestExtractChartFenced(t *testing.T) {
	answer := "Revenue rose from 4.1 to 5.0 [Source 1].\n\n```chart\n{\"type\": \"line\", \"title\": \"Revenue\", \"data\": [{\"name\": \"2022\", \"value\": 4.1}, {\"name\": \"2023\", \"value\": 5.0}]}\n```"
	text, chart := ExtractChart(answer)
	require.Equal(t, "Revenue rose from 4.1 to 5.0 [Source 1].", text)
	require.NotNil(t, chart)
	require.Equal(t, model.ChartLine, chart.Type)
	require.Equal(t, "Revenue", chart.Title)
	require.Len(t, chart.Data, 2)
	require.Equal(t, "2023", chart.Data[1]["name"])
	require.Equal(t, 5.0, chart.Data[1]["value"])
}

func TestExtractChartLegacyLabels(t *testing.T) {
	answer := "Here you go.\n```json\n{\"chart_type\": \"Bar\", \"title\": \"Sales\", \"labels\": [\"north\", \"south\"], \"values\": [3, 7]}\n```\n"
	text, chart := ExtractChart(answer)
	require.Equal(t, "Here you go.", text)
	require.NotNil(t, chart)
	require.Equal(t, model.ChartBar, chart.Type)
	require.Equal(t, []map[string]interface{}{
		{"name": "north", "value": 3.0},
		{"name": "south", "value": 7.0},
	}, chart.Data)
}

func TestExtractChartBareObject(t *testing.T) {
	answer := "Split by region.\n{\"type\": \"pie\", \"title\": \"Share\", \"data\": [{\"name\": \"a\", \"value\": 1}]}"
	text, chart := ExtractChart(answer)
	require.Equal(t, "Split by region.", text)
	require.NotNil(t, chart)
	require.Equal(t, model.ChartPie, chart.Type)
}

func TestExtractChartMalformed(t *testing.T) {
	cases := []string{
		"No chart here.",
		"```chart\n{\"type\": \"bar\", \"data\": [\n```",
		"```chart\n{\"type\": \"radar\", \"data\": [{\"name\": \"a\"}]}\n```",
		"```chart\n{\"type\": \"bar\", \"data\": []}\n```",
		"```chart\n{\"type\": \"bar\", \"labels\": [\"a\"], \"values\": [1, 2]}\n```",
		"```go\nfmt.Println(1)\n```",
	}
	for _, answer := range cases {
		text, chart := ExtractChart(answer)
		require.Nil(t, chart, answer)
		require.Equal(t, answer, text)
	}
}
