package models

const (
	JobKindWebhook = "webhook"
	JobKindEmail   = "email"

	JobStatusPending = "pending"
	JobStatusDone    = "done"
	JobStatusDead    = "dead"
)

// OutboxJob is a durable side effect waiting for the delivery worker.
type OutboxJob struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	TargetID      string  `json:"target_id"`
	Event         string  `json:"event"`
	Payload       []byte  `json:"payload"`
	Status        string  `json:"status"`
	Attempts      int     `json:"attempts"`
	NextAttemptAt int64   `json:"next_attempt_at"`
	LastError     *string `json:"last_error,omitempty"`
	CreatedAt     int64   `json:"created_at"`
	UpdatedAt     int64   `json:"updated_at"`
}

type ExportToken struct {
	TokenHash  string `json:"-"`
	FormID     string `json:"form_id"`
	BusinessID string `json:"business_id"`
	CreatedBy  string `json:"created_by"`
	ExpiresAt  int64  `json:"expires_at"`
	CreatedAt  int64  `json:"created_at"`
}

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

type ChatMessage struct {
	ID         string  `json:"id"`
	FormID     string  `json:"form_id"`
	BusinessID string  `json:"business_id"`
	UserID     string  `json:"user_id"`
	Role       string  `json:"role"`
	Content    string  `json:"content"`
	StreamID   *string `json:"stream_id,omitempty"`
	CreatedAt  int64   `json:"created_at"`
}
