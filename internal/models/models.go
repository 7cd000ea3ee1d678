package models

import "time"

// Gateway lifecycle states.
const (
	GatewayCreated   = "created"
	GatewayStarting  = "starting"
	GatewayPairing   = "pairing"
	GatewayConnected = "connected"
	GatewayStopped   = "stopped"
	GatewayError     = "error"
)

// Agent lifecycle states.
const (
	AgentCreated = "created"
	AgentLinking = "linking"
	AgentActive  = "active"
	AgentPaused  = "paused"
	AgentError   = "error"
)

var gatewayStatuses = map[string]bool{
	GatewayCreated: true, GatewayStarting: true, GatewayPairing: true,
	GatewayConnected: true, GatewayStopped: true, GatewayError: true,
}

var agentStatuses = map[string]bool{
	AgentCreated: true, AgentLinking: true, AgentActive: true,
	AgentPaused: true, AgentError: true,
}

// ValidGatewayStatus reports whether s is a known gateway state.
func ValidGatewayStatus(s string) bool { return gatewayStatuses[s] }

// ValidAgentStatus reports whether s is a known agent state.
func ValidAgentStatus(s string) bool { return agentStatuses[s] }

// User is a tenant. Phone is the normalized (digits only) contact address
// used as the allow-listed peer for routing.
type User struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

type Gateway struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Profile   string    `json:"profile"`
	Port      int       `json:"port"`
	Status    string    `json:"status"`
	Phone     *string   `json:"phone"`
	PID       *int      `json:"pid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PhoneValue returns the paired contact address or "".
func (g *Gateway) PhoneValue() string {
	if g.Phone == nil {
		return ""
	}
	return *g.Phone
}

type Agent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	TemplateID  string    `json:"template_id"`
	Personality string    `json:"personality"`
	Rules       string    `json:"rules"`
	Status      string    `json:"status"`
	GatewayID   *string   `json:"gateway_id"`
	Workspace   string    `json:"workspace"`
	ConfigJSON  string    `json:"config_json"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AgentConfig is the blob stored in agents.config_json: the rendered
// identity text plus the original wizard inputs.
type AgentConfig struct {
	Identity    string `json:"identity"`
	Template    string `json:"template"`
	AgentName   string `json:"agentName"`
	UserName    string `json:"userName"`
	Personality string `json:"personality"`
	Rules       string `json:"rules"`
}

type AgentUsage struct {
	Date        string `json:"date"`
	MessagesIn  int    `json:"messages_in"`
	MessagesOut int    `json:"messages_out"`
	TokensUsed  int    `json:"tokens_used"`
}

type UsageTotals struct {
	MessagesIn  int `json:"total_messages_in"`
	MessagesOut int `json:"total_messages_out"`
	Tokens      int `json:"total_tokens"`
}

type AuditLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Category  string    `json:"category"`
	Target    string    `json:"target"`
	TargetID  string    `json:"target_id"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
