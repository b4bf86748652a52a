package models

import "time"

// IssueSource identifies which producer normalized an Issue.
type IssueSource string

const (
	SourceChat       IssueSource = "chat"
	SourceSupportDesk IssueSource = "support-desk"
	SourceTracker    IssueSource = "tracker"
	SourceAPI        IssueSource = "api"
	SourceLocal      IssueSource = "local"
)

// IssuePriority is the ticket's urgency band.
type IssuePriority string

const (
	PriorityHigh IssuePriority = "H"
	PriorityLow  IssuePriority = "L"
)

// LogArtifact references one log bundle attached to an Issue. Payload is set
// when the producer embedded the bytes directly; OpaqueToken is set when the
// bytes must be fetched through an external resolver. Exactly one is non-empty.
type LogArtifact struct {
	Name        string `json:"name" db:"name"`
	OpaqueToken string `json:"opaque_token,omitempty" db:"opaque_token"`
	Payload     []byte `json:"payload,omitempty" db:"-"`
	Size        int64  `json:"size" db:"size"`
}

// Issue is a normalized support ticket — the unit of analysis.
type Issue struct {
	RecordID      string        `json:"record_id" db:"record_id"`
	Description   string        `json:"description" db:"description"`
	Priority      IssuePriority `json:"priority" db:"priority"`
	DeviceSerial  string        `json:"device_serial" db:"device_serial"`
	Firmware      string        `json:"firmware" db:"firmware"`
	AppVersion    string        `json:"app_version" db:"app_version"`
	Platform      string        `json:"platform" db:"platform"`
	Category      string        `json:"category" db:"category"`
	Source        IssueSource   `json:"source" db:"source"`
	ExternalLinks []string      `json:"external_links,omitempty" db:"external_links"`
	CreatedBy     string        `json:"created_by" db:"created_by"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	LogArtifacts  []LogArtifact `json:"log_artifacts,omitempty" db:"-"`
	WebhookURL    string        `json:"webhook_url,omitempty" db:"webhook_url"`
	EventDateHint *time.Time    `json:"event_date_hint,omitempty" db:"event_date_hint"`
	SoftDeleted   bool          `json:"soft_deleted" db:"soft_deleted"`
}

// IssueFilter narrows a paginated issue listing (§4.J).
type IssueFilter struct {
	CreatedBy     string
	Platform      string
	Category      string
	IncludeDeleted bool
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}
