package model

type AnswerOutcome string

const (
	OutcomeAnswered   AnswerOutcome = "answered"
	OutcomeNoEvidence AnswerOutcome = "no_evidence"
	OutcomeDegraded   AnswerOutcome = "degraded"
	OutcomeIndexError AnswerOutcome = "index_error"
)

type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartLine ChartType = "line"
	ChartPie  ChartType = "pie"
)

type ChartData struct {
	Type  ChartType                `json:"type"`
	Title string                   `json:"title"`
	Data  []map[string]interface{} `json:"data"`
}

type AnswerResult struct {
	Text       string         `json:"message"`
	Sources    []EvidenceItem `json:"sources"`
	Confidence float64        `json:"confidence"`
	Chart      *ChartData     `json:"chart_data,omitempty"`
	Outcome    AnswerOutcome  `json:"outcome"`
}
