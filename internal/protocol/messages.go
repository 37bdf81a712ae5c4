package protocol

import "time"

// TranscriptUpdate mirrors the display sink on the bus. An empty Text clears the display.
type TranscriptUpdate struct {
	NodeID    string    `json:"node_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ModeChange is published after every completed mode transition.
type ModeChange struct {
	NodeID    string    `json:"node_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ButtonPress is sent by an external GPIO daemon when a hardware button edge fires.
type ButtonPress struct {
	Button    string    `json:"button"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceStatus is the periodic heartbeat of a device.
type DeviceStatus struct {
	NodeID       string    `json:"node_id"`
	Mode         string    `json:"mode"`
	BaseLanguage string    `json:"base_language"`
	Gender       string    `json:"gender"`
	PairBase     string    `json:"pair_base,omitempty"`
	PairTarget   string    `json:"pair_target,omitempty"`
	Listening    bool      `json:"listening"`
	Timestamp    time.Time `json:"timestamp"`
}

const (
	SubjectTranscript    = "display.transcript"
	SubjectModeChange    = "device.mode"
	SubjectButtonPrefix  = "device.button"
	SubjectStatusPrefix  = "device.status"
	SubjectButtonPresses = SubjectButtonPrefix + ".*"
)
