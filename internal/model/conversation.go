package model

const DefaultConversationTitle = "New Conversation"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type Conversation struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Ctime     int64  `json:"ctime"`
	Mtime     int64  `json:"mtime"`
}

type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Seq            int64          `json:"seq"`
	Role           MessageRole    `json:"role"`
	Content        string         `json:"content"`
	Sources        []EvidenceItem `json:"sources,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Chart          *ChartData     `json:"chart_data,omitempty"`
	Outcome        AnswerOutcome  `json:"outcome,omitempty"`
	ResponseTimeMs int64          `json:"response_time_ms,omitempty"`
	Ctime          int64          `json:"ctime"`
}
