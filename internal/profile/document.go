package profile

import "time"

// Document is the initial configuration written for a new profile. Later
// edits go through openclaw.ConfigEditor, which preserves keys not listed
// here.
type Document struct {
	Meta     Meta            `json:"meta"`
	Models   Models          `json:"models"`
	Gateway  GatewaySettings `json:"gateway"`
	Channels Channels        `json:"channels"`
	Agents   []any           `json:"agents"`
	Bindings []any           `json:"bindings"`
}

type Meta struct {
	LastTouchedVersion string `json:"lastTouchedVersion"`
	LastTouchedAt      string `json:"lastTouchedAt"`
}

type Models struct {
	Providers Providers `json:"providers"`
}

type Providers struct {
	Anthropic Provider `json:"anthropic"`
}

type Provider struct {
	BaseURL string  `json:"baseUrl"`
	APIKey  string  `json:"apiKey"`
	Models  []Model `json:"models"`
}

type Model struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}

type GatewaySettings struct {
	Mode string `json:"mode"`
	Bind string `json:"bind"`
	Port int    `json:"port"`
}

type Channels struct {
	WhatsApp WhatsApp `json:"whatsapp"`
}

// WhatsApp starts closed: both policies are allowlist and both lists empty.
type WhatsApp struct {
	Enabled        bool     `json:"enabled"`
	DMPolicy       string   `json:"dmPolicy"`
	GroupPolicy    string   `json:"groupPolicy"`
	AllowFrom      []string `json:"allowFrom"`
	GroupAllowFrom []string `json:"groupAllowFrom"`
	AckEmoji       string   `json:"ackEmoji"`
}

func (m *Manager) initialDocument(port int, apiKey string) Document {
	return Document{
		Meta: Meta{
			LastTouchedVersion: runtimeVersion,
			LastTouchedAt:      m.now().UTC().Format(time.RFC3339Nano),
		},
		Models: Models{Providers: Providers{Anthropic: Provider{
			BaseURL: anthropicBaseURL,
			APIKey:  apiKey,
			Models:  []Model{{ID: m.model, Name: defaultModelName, IsDefault: true}},
		}}},
		Gateway: GatewaySettings{Mode: "local", Bind: "loopback", Port: port},
		Channels: Channels{WhatsApp: WhatsApp{
			Enabled:        true,
			DMPolicy:       "allowlist",
			GroupPolicy:    "allowlist",
			AllowFrom:      []string{},
			GroupAllowFrom: []string{},
			AckEmoji:       ackEmoji,
		}},
		Agents:   []any{},
		Bindings: []any{},
	}
}
