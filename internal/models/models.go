package models

// ==================== Webhook Models ====================

// WebhookRequest is the body posted to the remote webhook
type WebhookRequest struct {
	Action    string `json:"action"`
	ChatInput string `json:"chatInput"`
	SessionID string `json:"sessionId"`
}

// DisplayItem is one normalized result card.
// The JSON keys are ones the normalizer recognizes, so a serialized
// sequence of items normalizes back to itself.
type DisplayItem struct {
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	MetaText string `json:"description,omitempty" yaml:"description,omitempty"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
}

// ==================== JSON API Models ====================

// SearchRequest represents a POST /api/search request
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse represents a successful POST /api/search response
type SearchResponse struct {
	Items []DisplayItem `json:"items"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
