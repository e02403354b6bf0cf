package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Reply statuses. sent, rejected and failed are terminal.
const (
	ReplyStatusPending  = "pending"
	ReplyStatusApproved = "approved"
	ReplyStatusRejected = "rejected"
	ReplyStatusSent     = "sent"
	ReplyStatusFailed   = "failed"
)

// Activity log entry types.
const (
	LogTypeReplySent     = "reply_sent"
	LogTypeReplyFailed   = "reply_failed"
	LogTypeEmailFiltered = "email_filtered"
	LogTypeError         = "error"
)

// StringList stores a list of strings as a JSON column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
}

// Metadata stores an open key-value map as a JSON column.
type Metadata map[string]interface{}

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		m = Metadata{}
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type %T for Metadata", value)
	}
}

// EmailMessage represents one email retrieved from the mailbox. It is never
// persisted; the ID is the mailbox-assigned identifier used for read-flag
// operations and log correlation.
type EmailMessage struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
	IsRead     bool      `json:"is_read"`
}

// Reply represents a generated auto-reply and its lifecycle state.
type Reply struct {
	ID              string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	OriginalEmailID string     `json:"original_email_id" gorm:"type:varchar(255);not null;index"`
	ToAddress       string     `json:"to" gorm:"type:varchar(255);not null"`
	Subject         string     `json:"subject" gorm:"type:varchar(998);not null"`
	Body            string     `json:"body" gorm:"type:text;not null"`
	Status          string     `json:"status" gorm:"type:varchar(20);not null;index"`
	GeneratedAt     time.Time  `json:"generated_at"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	ApprovedBy      string     `json:"approved_by,omitempty" gorm:"type:varchar(255)"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Reply
func (Reply) TableName() string {
	return "replies"
}

// ActivityLog is a write-once record of a pipeline event.
type ActivityLog struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Type      string    `json:"type" gorm:"type:varchar(40);not null;index"`
	EmailID   string    `json:"email_id" gorm:"type:varchar(255);index"`
	ReplyID   *string   `json:"reply_id,omitempty" gorm:"type:varchar(36);index"`
	Details   string    `json:"details" gorm:"type:text;not null"`
	Metadata  Metadata  `json:"metadata,omitempty" gorm:"type:json"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for ActivityLog
func (ActivityLog) TableName() string {
	return "activity_logs"
}

// Settings is the runtime configuration row. A single row exists; updates
// produce a new in-memory snapshot, never in-place edits visible mid-cycle.
type Settings struct {
	ID                   uint       `json:"-" gorm:"primaryKey"`
	KeywordsEnabled      bool       `json:"keywords_enabled"`
	Keywords             StringList `json:"keywords" gorm:"type:json"`
	ExcludedDomains      StringList `json:"excluded_domains" gorm:"type:json"`
	ManualConfirmation   bool       `json:"manual_confirmation"`
	ReplyTemplate        string     `json:"reply_template" gorm:"type:text"`
	CheckIntervalSeconds int        `json:"check_interval_seconds"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Settings
func (Settings) TableName() string {
	return "settings"
}

// Clone returns a deep copy so consumers can hold a snapshot safely.
func (s *Settings) Clone() *Settings {
	cp := *s
	cp.Keywords = append(StringList{}, s.Keywords...)
	cp.ExcludedDomains = append(StringList{}, s.ExcludedDomains...)
	return &cp
}

// SettingsUpdateRequest is the partial-update body for the config endpoint.
// Nil fields are left unchanged.
type SettingsUpdateRequest struct {
	KeywordsEnabled      *bool     `json:"keywords_enabled"`
	Keywords             *[]string `json:"keywords"`
	ExcludedDomains      *[]string `json:"excluded_domains"`
	ManualConfirmation   *bool     `json:"manual_confirmation"`
	ReplyTemplate        *string   `json:"reply_template"`
	CheckIntervalSeconds *int      `json:"check_interval_seconds"`
}

// ConfirmationRequest is the body for approving a pending reply.
type ConfirmationRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// StatusResponse is the dashboard status view.
type StatusResponse struct {
	Monitoring         bool       `json:"monitoring"`
	State              string     `json:"state"`
	ManualConfirmation bool       `json:"manual_confirmation"`
	PendingCount       int        `json:"pending_count"`
	SentCount          int64      `json:"sent_count"`
	NextRun            *time.Time `json:"next_run,omitempty"`
	LastRun            *time.Time `json:"last_run,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Monitor   string            `json:"monitor"`
	Details   map[string]string `json:"details,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
