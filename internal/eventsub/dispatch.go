package eventsub

import (
	"encoding/json"
	"log/slog"

	"github.com/Mournian-ai/Mournian-Overlay/internal/domain"
	"github.com/Mournian-ai/Mournian-Overlay/internal/metrics"
	"github.com/Mournian-ai/Mournian-Overlay/internal/store"
	"github.com/Mournian-ai/Mournian-Overlay/internal/twitch"
)

// Publisher delivers a message to every attached overlay client.
type Publisher interface {
	Publish(msg domain.Message)
}

// dispatcher normalizes classified inbound events, updates the durable store,
// and republishes them. Unrecognized types are dropped without side effects.
type dispatcher struct {
	store *store.Store
	pub   Publisher
	log   *slog.Logger
}

func (d *dispatcher) dispatch(subType string, raw json.RawMessage) {
	switch subType {
	case twitch.SubTypeFollow:
		d.handleFollow(raw)
	case twitch.SubTypeSubscribe:
		d.handleSub(raw)
	case twitch.SubTypeCheer:
		d.handleCheer(raw)
	default:
		metrics.EventSubUnknownEventsTotal.Inc()
		d.log.Debug("Dropping event with unrecognized subscription type", "type", subType)
	}
}

func (d *dispatcher) handleFollow(raw json.RawMessage) {
	var payload struct {
		UserName   string `json:"user_name"`
		UserLogin  string `json:"user_login"`
		UserID     string `json:"user_id"`
		FollowedAt string `json:"followed_at"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		d.log.Warn("Failed to decode follow event", "error", err)
		return
	}

	name := payload.UserName
	if name == "" {
		name = payload.UserLogin
	}
	ev := domain.FollowEvent{
		UserName:   name,
		UserID:     payload.UserID,
		FollowedAt: payload.FollowedAt,
	}

	if err := d.store.RecordFollow(ev); err != nil {
		d.log.Error("Failed to persist follow event", "error", err)
	}
	d.publish(domain.KindFollow, ev)
}

func (d *dispatcher) handleSub(raw json.RawMessage) {
	var payload struct {
		UserName string `json:"user_name"`
		Tier     string `json:"tier"`
		IsGift   bool   `json:"is_gift"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		d.log.Warn("Failed to decode subscribe event", "error", err)
		return
	}

	ev := domain.SubEvent{
		UserName: payload.UserName,
		Tier:     payload.Tier,
		IsGift:   payload.IsGift,
	}

	if err := d.store.RecordSub(ev); err != nil {
		d.log.Error("Failed to persist subscribe event", "error", err)
	}
	d.publish(domain.KindSub, ev)
}

func (d *dispatcher) handleCheer(raw json.RawMessage) {
	var payload struct {
		UserName string `json:"user_name"`
		Bits     int64  `json:"bits"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		d.log.Warn("Failed to decode cheer event", "error", err)
		return
	}

	name := payload.UserName
	if name == "" {
		name = "Anonymous"
	}
	ev := domain.CheerEvent{
		UserName: name,
		Bits:     payload.Bits,
		Message:  payload.Message,
	}

	if err := d.store.RecordCheer(ev); err != nil {
		d.log.Error("Failed to persist cheer event", "error", err)
	}
	d.publish(domain.KindBits, ev)
}

func (d *dispatcher) publish(kind domain.Kind, data any) {
	metrics.EventSubEventsTotal.WithLabelValues(string(kind)).Inc()
	d.pub.Publish(domain.LatestUpdateMessage(kind, data))
	d.pub.Publish(domain.AlertMessage(kind, data))
}
