package rag

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/xxxsen/docqa/internal/model"
)

var fencedBlock = regexp.MustCompile("(?s)```(chart|json)?\\s*\\n(.*?)```")

type rawChart struct {
	Type      string                   `json:"type"`
	ChartType string                   `json:"chart_type"`
	Title     string                   `json:"title"`
	Data      []map[string]interface{} `json:"data"`
	Labels    []interface{}            `json:"labels"`
	Values    []interface{}            `json:"values"`
}

// ExtractChart looks for a chart definition in the model output. It returns
// the answer text with the parsed block removed and the normalized chart, or
// the original text and nil when nothing usable is found.
func ExtractChart(answer string) (string, *model.ChartData) {
	for _, m := range fencedBlock.FindAllStringSubmatchIndex(answer, -1) {
		body := answer[m[4]:m[5]]
		chart := parseChart(body)
		if chart == nil {
			continue
		}
		text := strings.TrimSpace(answer[:m[0]] + answer[m[1]:])
		return text, chart
	}
	trimmed := strings.TrimSpace(answer)
	start := strings.LastIndex(trimmed, "\n{")
	if strings.HasPrefix(trimmed, "{") {
		start = -1
	}
	candidate := trimmed[start+1:]
	if strings.HasSuffix(candidate, "}") {
		if chart := parseChart(candidate); chart != nil {
			return strings.TrimSpace(trimmed[:start+1]), chart
		}
	}
	return answer, nil
}

func parseChart(body string) *model.ChartData {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "{") {
		return nil
	}
	var raw rawChart
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil
	}
	typ := raw.Type
	if typ == "" {
		typ = raw.ChartType
	}
	ct, ok := normalizeChartType(typ)
	if !ok {
		return nil
	}
	data := raw.Data
	if len(data) == 0 && len(raw.Labels) > 0 && len(raw.Labels) == len(raw.Values) {
		data = make([]map[string]interface{}, 0, len(raw.Labels))
		for i := range raw.Labels {
			data = append(data, map[string]interface{}{
				"name":  raw.Labels[i],
				"value": raw.Values[i],
			})
		}
	}
	if len(data) == 0 {
		return nil
	}
	for _, row := range data {
		if _, ok := row["name"]; !ok {
			return nil
		}
	}
	return &model.ChartData{Type: ct, Title: strings.TrimSpace(raw.Title), Data: data}
}

func normalizeChartType(t string) (model.ChartType, bool) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "bar", "column":
		return model.ChartBar, true
	case "line":
		return model.ChartLine, true
	case "pie", "doughnut":
		return model.ChartPie, true
	}
	return "", false
}
