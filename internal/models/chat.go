package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is one of the roles the model API accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

type TurnStatus string

const (
	TurnOK     TurnStatus = "ok"
	TurnFailed TurnStatus = "failed"
)

// Turn is one entry of a conversation. Values are copied out of the history
// store, so a Turn held by a caller never changes.
type Turn struct {
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	Status    TurnStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse carries the turns appended by one submission.
type ChatResponse struct {
	Turns []Turn `json:"turns"`
}

// HistoryResponse carries the full session transcript.
type HistoryResponse struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}
