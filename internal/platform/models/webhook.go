package models

const (
	DeliveryStatusSuccess = "success"
	DeliveryStatusFailed  = "failed"
)

// Webhook is a tenant's delivery target. A nil FormID matches every form of
// the business.
type Webhook struct {
	ID              string  `json:"id"`
	BusinessID      string  `json:"business_id"`
	FormID          *string `json:"form_id,omitempty"`
	URL             string  `json:"url"`
	Secret          string  `json:"secret"`
	Enabled         bool    `json:"enabled"`
	LastTriggeredAt *int64  `json:"last_triggered_at,omitempty"`
	LastStatus      *string `json:"last_status,omitempty"`
	CreatedAt       int64   `json:"created_at"`
	UpdatedAt       int64   `json:"updated_at"`
}

// WebhookEntry records one delivery attempt.
type WebhookEntry struct {
	ID         string  `json:"id"`
	WebhookID  string  `json:"webhook_id"`
	Event      string  `json:"event"`
	Status     string  `json:"status"`
	StatusCode *int    `json:"status_code,omitempty"`
	Response   *string `json:"response,omitempty"`
	Error      *string `json:"error,omitempty"`
	CreatedAt  int64   `json:"created_at"`
}

// WebhookEvent is the JSON body posted to webhook targets.
type WebhookEvent struct {
	ID         string      `json:"id"`
	Event      string      `json:"event"`
	Timestamp  int64       `json:"timestamp"`
	BusinessID string      `json:"business_id"`
	FormID     string      `json:"form_id"`
	Data       interface{} `json:"data"`
}

type Notification struct {
	ID         string   `json:"id"`
	BusinessID string   `json:"business_id"`
	FormID     *string  `json:"form_id,omitempty"`
	Recipients []string `json:"recipients"` // JSON array in DB
	Enabled    bool     `json:"enabled"`
	CreatedAt  int64    `json:"created_at"`
	UpdatedAt  int64    `json:"updated_at"`
}
