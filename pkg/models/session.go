package models

// CreateSessionResponse is the payload returned by POST /session
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// ChatRequest is the payload for POST /chat
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

// ChatResponse is the payload returned by POST /chat
type ChatResponse struct {
	Response string `json:"response"`
}

// DeleteSessionResponse is the payload returned by DELETE /session/{id}
type DeleteSessionResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the uniform error payload
type ErrorResponse struct {
	Error string `json:"error"`
}
