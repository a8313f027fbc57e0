package eventsub

import "encoding/json"

// The EventSub wire format has moved its interesting fields between the top
// level and a payload envelope across protocol revisions, so descriptors are
// accepted from either location.

type sessionDescriptor struct {
	ID string `json:"id"`
}

type subscriptionInfo struct {
	Type string `json:"type"`
}

type framePayload struct {
	Session      *sessionDescriptor `json:"session"`
	Subscription *subscriptionInfo  `json:"subscription"`
	Event        json.RawMessage    `json:"event"`
}

type frameMetadata struct {
	Session *sessionDescriptor `json:"session"`
}

// frame is one inbound JSON message from the EventSub connection.
type frame struct {
	Session      *sessionDescriptor `json:"session"`
	Metadata     frameMetadata      `json:"metadata"`
	Payload      framePayload       `json:"payload"`
	Subscription *subscriptionInfo  `json:"subscription"`
	Event        json.RawMessage    `json:"event"`
}

// sessionID extracts the session descriptor from a welcome frame, wherever it
// sits.
func (f *frame) sessionID() (string, bool) {
	for _, s := range []*sessionDescriptor{f.Session, f.Payload.Session, f.Metadata.Session} {
		if s != nil && s.ID != "" {
			return s.ID, true
		}
	}
	return "", false
}

// notification extracts the (subscription type, event) pair from an event
// frame. Frames carrying neither are keepalives or session metadata.
func (f *frame) notification() (string, json.RawMessage, bool) {
	sub := f.Subscription
	if sub == nil {
		sub = f.Payload.Subscription
	}
	event := f.Event
	if len(event) == 0 {
		event = f.Payload.Event
	}
	if sub == nil || sub.Type == "" || len(event) == 0 {
		return "", nil, false
	}
	return sub.Type, event, true
}
