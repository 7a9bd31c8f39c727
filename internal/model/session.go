package model

type Session struct {
	ID         string `json:"id"`
	UserAgent  string `json:"user_agent"`
	IP         string `json:"ip"`
	Ctime      int64  `json:"ctime"`
	LastActive int64  `json:"last_active"`
}

type QueryLog struct {
	ID             int64         `json:"id"`
	SessionID      string        `json:"session_id"`
	Query          string        `json:"query"`
	ResponseTimeMs int64         `json:"response_time_ms"`
	ResultFound    bool          `json:"result_found"`
	Confidence     float64       `json:"confidence"`
	Outcome        AnswerOutcome `json:"outcome"`
	Ctime          int64         `json:"ctime"`
}

type QueryStats struct {
	TotalQueries      int64      `json:"total_queries"`
	SuccessfulQueries int64      `json:"successful_queries"`
	SuccessRate       float64    `json:"success_rate"`
	AvgResponseTimeMs float64    `json:"avg_response_time_ms"`
	AvgConfidence     float64    `json:"avg_confidence"`
	Recent            []QueryLog `json:"recent"`
}
