package server

import "github.com/becomeliminal/nim-memory/core"

// Frame types.
const (
	TypeMessage  = "message"
	TypeProgress = "progress"
	TypeDelta    = "delta"
	TypeResponse = "response"
	TypeError    = "error"
)

// ClientFrame is a frame sent by the client.
type ClientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ServerFrame is a frame sent to the client.
type ServerFrame struct {
	Type      string `json:"type"`
	Step      string `json:"step,omitempty"`
	Status    string `json:"status,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Content   string `json:"content,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Persisted bool   `json:"persisted,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HistoryResponse is the body of the history endpoint.
type HistoryResponse struct {
	UserID   string      `json:"user_id"`
	ThreadID string      `json:"thread_id"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Turns    []core.Turn `json:"turns"`
}
