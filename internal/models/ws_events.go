package models

// WebSocket event payload types for status broadcasts.

// WSGatewayStatus is the payload for "gateway_status" broadcasts.
type WSGatewayStatus struct {
	GatewayID string `json:"gateway_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	Phone     string `json:"phone,omitempty"`
	Message   string `json:"message,omitempty"`
}

// WSAgentStatus is the payload for "agent_status" broadcasts.
type WSAgentStatus struct {
	AgentID   string `json:"agent_id"`
	UserID    string `json:"user_id"`
	GatewayID string `json:"gateway_id,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// Owner reports the tenant an event belongs to.
func (e WSGatewayStatus) Owner() string { return e.UserID }

func (e WSAgentStatus) Owner() string { return e.UserID }
