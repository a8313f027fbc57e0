package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Mournian-ai/Mournian-Overlay/internal/domain"
	"github.com/Mournian-ai/Mournian-Overlay/internal/metrics"
	"github.com/Mournian-ai/Mournian-Overlay/internal/store"
)

// EventSub subscription type names.
const (
	SubTypeFollow    = "channel.follow"
	SubTypeSubscribe = "channel.subscribe"
	SubTypeCheer     = "channel.cheer"
)

// subscriptionVersions maps subscription types to their protocol versions.
// channel.follow v2 additionally requires the moderator_user_id condition.
var subscriptionVersions = map[string]string{
	SubTypeFollow:    "2",
	SubTypeSubscribe: "1",
	SubTypeCheer:     "1",
}

// SubscriptionManager issues subscription-creation requests against an active
// EventSub session. A 401 triggers exactly one token refresh and one retried
// request; any other failure is surfaced without further retry. It mutates no
// local state.
type SubscriptionManager struct {
	store  *store.Store
	tokens *TokenSource
	apiURL string // Helix base URL (configurable for testing)
	client *http.Client
}

// NewSubscriptionManager builds a manager against the given Helix base URL.
func NewSubscriptionManager(s *store.Store, tokens *TokenSource, helixBase string) *SubscriptionManager {
	return &SubscriptionManager{
		store:  s,
		tokens: tokens,
		apiURL: strings.TrimRight(helixBase, "/"),
		client: &http.Client{Timeout: httpCallTimeout},
	}
}

type subscriptionRequest struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport struct {
		Method    string `json:"method"`
		SessionID string `json:"session_id"`
	} `json:"transport"`
}

// Create registers one subscription of subType on the given session. The
// condition carries the broadcaster (and for follows, moderator) IDs.
func (sm *SubscriptionManager) Create(ctx context.Context, sessionID, subType string, condition map[string]string) error {
	version, ok := subscriptionVersions[subType]
	if !ok {
		version = "1"
	}

	payload := subscriptionRequest{
		Type:      subType,
		Version:   version,
		Condition: condition,
	}
	payload.Transport.Method = "websocket"
	payload.Transport.SessionID = sessionID

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.SubscriptionError("failed to marshal subscription request", err)
	}

	status, respBody, err := sm.post(ctx, sm.tokens.Current(), body)
	if err != nil {
		metrics.SubscriptionRequestsTotal.WithLabelValues(subType, "error").Inc()
		return err
	}

	if status == http.StatusUnauthorized {
		slog.Warn("Subscription request unauthorized, refreshing token and retrying once", "type", subType)
		if err := sm.tokens.Refresh(ctx); err != nil {
			metrics.SubscriptionRequestsTotal.WithLabelValues(subType, "auth_failed").Inc()
			return err
		}
		status, respBody, err = sm.post(ctx, sm.tokens.Current(), body)
		if err != nil {
			metrics.SubscriptionRequestsTotal.WithLabelValues(subType, "error").Inc()
			return err
		}
	}

	if status >= 400 {
		metrics.SubscriptionRequestsTotal.WithLabelValues(subType, "rejected").Inc()
		return domain.SubscriptionError(
			fmt.Sprintf("subscription %s rejected", subType),
			fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(respBody))))
	}

	metrics.SubscriptionRequestsTotal.WithLabelValues(subType, "ok").Inc()
	slog.Info("Created EventSub subscription", "type", subType, "version", version)
	return nil
}

func (sm *SubscriptionManager) post(ctx context.Context, token string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sm.apiURL+"/eventsub/subscriptions", bytes.NewReader(body))
	if err != nil {
		return 0, nil, domain.TransportError("failed to build subscription request", err)
	}
	req.Header.Set("Client-Id", sm.store.Settings().ClientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := sm.client.Do(req)
	if err != nil {
		return 0, nil, domain.TransportError("subscription request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, domain.TransportError("failed to read subscription response", err)
	}
	return resp.StatusCode, respBody, nil
}
