package model

// APIResponse is the common HTTP response envelope.
type APIResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
