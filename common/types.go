package common

// ApiResponse is the envelope for JSON responses of the authenticated API.
type ApiResponse[T any] struct {
	Data    T      `json:"data"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
