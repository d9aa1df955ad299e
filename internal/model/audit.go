package model

import (
	"time"
)

// AuditLog is one complete request-level audit record.
type AuditLog struct {
	ID        string `json:"id"`
	Principal string `json:"principal"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`

	// Request/response bodies are stored post-redaction.
	RequestBody  string `json:"request_body"`
	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"`
	LatencyMs    int64  `json:"latency_ms"`

	// Business context filled in by handlers (delegation id, tx ref,
	// rejection reason, ...).
	Context map[string]interface{} `json:"context"`

	CreatedAt time.Time `json:"created_at"`
}
