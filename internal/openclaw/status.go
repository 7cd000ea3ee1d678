package openclaw

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChannelStatus is the WhatsApp channel state of one profile. A zero value
// with an empty QR means the runtime is still waiting.
type ChannelStatus struct {
	Connected bool   `json:"connected"`
	Phone     string `json:"phone,omitempty"`
	QR        string `json:"qr,omitempty"`
	State     string `json:"state,omitempty"`
}

// RuntimeStatus summarizes `status --json` for the whole runtime.
type RuntimeStatus struct {
	Running  bool `json:"running"`
	Agents   int  `json:"agents"`
	Sessions int  `json:"sessions"`
}

type whatsappState struct {
	QR        string `json:"qr"`
	Connected any    `json:"connected"`
	State     string `json:"state"`
	Phone     string `json:"phone"`
	Me        struct {
		ID string `json:"id"`
	} `json:"me"`
}

// ParseChannelStatus accepts the channel under either channels.whatsapp or a
// top-level whatsapp key. Log lines printed before the JSON are skipped.
func ParseChannelStatus(out string) (ChannelStatus, error) {
	var doc struct {
		Channels struct {
			WhatsApp *whatsappState `json:"whatsapp"`
		} `json:"channels"`
		WhatsApp *whatsappState `json:"whatsapp"`
	}
	if err := decodeObject(out, &doc); err != nil {
		return ChannelStatus{}, err
	}

	wa := doc.Channels.WhatsApp
	if wa == nil {
		wa = doc.WhatsApp
	}
	if wa == nil {
		return ChannelStatus{}, nil
	}

	st := ChannelStatus{QR: wa.QR, State: wa.State}
	st.Connected = truthy(wa.Connected) || wa.State == "connected"
	st.Phone = wa.Phone
	if st.Phone == "" {
		st.Phone = wa.Me.ID
	}
	return st, nil
}

func ParseRuntimeStatus(out string) (RuntimeStatus, error) {
	var doc struct {
		Agents   json.RawMessage `json:"agents"`
		Sessions struct {
			Active int `json:"active"`
		} `json:"sessions"`
	}
	if err := decodeObject(out, &doc); err != nil {
		return RuntimeStatus{}, err
	}
	return RuntimeStatus{Running: true, Agents: countAgents(doc.Agents), Sessions: doc.Sessions.Active}, nil
}

// countAgents handles both a list of agents and a bare count.
func countAgents(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		return len(list)
	}
	var n int
	if json.Unmarshal(raw, &n) == nil {
		return n
	}
	return 0
}

func decodeObject(out string, v any) error {
	start := strings.IndexByte(out, '{')
	if start < 0 {
		return fmt.Errorf("%w: no JSON object in %q", ErrMalformedOutput, truncate(out, 120))
	}
	dec := json.NewDecoder(strings.NewReader(out[start:]))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "connected"
	case float64:
		return t != 0
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
