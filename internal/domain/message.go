package domain

// Fan-out message operations. Every message pushed to an overlay client
// carries exactly one of these.
const (
	// OpBootstrap is sent once to each newly attached observer and carries
	// the full latest-events snapshot.
	OpBootstrap = "bootstrap"
	// OpLatestUpdate announces that the latest event of a kind changed.
	OpLatestUpdate = "latest_update"
	// OpAlert triggers a one-shot overlay animation for a single event.
	OpAlert = "alert"
)

// Message is one fan-out frame on the overlay WebSocket.
type Message struct {
	Op     string  `json:"op"`
	Kind   Kind    `json:"kind,omitempty"`
	Data   any     `json:"data,omitempty"`
	Latest *Latest `json:"latest,omitempty"`
}

// BootstrapMessage builds the snapshot frame a fresh observer receives before
// any live update.
func BootstrapMessage(latest Latest) Message {
	return Message{Op: OpBootstrap, Latest: &latest}
}

// LatestUpdateMessage builds the state-update frame for a new event.
func LatestUpdateMessage(kind Kind, data any) Message {
	return Message{Op: OpLatestUpdate, Kind: kind, Data: data}
}

// AlertMessage builds the animation-trigger frame for a new event.
func AlertMessage(kind Kind, data any) Message {
	return Message{Op: OpAlert, Kind: kind, Data: data}
}
