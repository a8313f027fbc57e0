package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/Mournian-ai/Mournian-Overlay/internal/domain"
	"github.com/Mournian-ai/Mournian-Overlay/internal/store"
)

// IdentityResolver resolves and caches the two numeric IDs the subscription
// conditions require: the broadcaster's user ID and the acting moderator's
// user ID. Once resolved, an ID is persisted and never looked up again.
type IdentityResolver struct {
	store  *store.Store
	apiURL string // Helix base URL (configurable for testing)
	client *http.Client
	group  singleflight.Group
}

// NewIdentityResolver builds a resolver against the given Helix base URL,
// e.g. "https://api.twitch.tv/helix".
func NewIdentityResolver(s *store.Store, helixBase string) *IdentityResolver {
	return &IdentityResolver{
		store:  s,
		apiURL: strings.TrimRight(helixBase, "/"),
		client: &http.Client{Timeout: httpCallTimeout},
	}
}

// BroadcasterID returns the broadcaster's user ID, resolving it from the
// configured login on first use. Fails with a configuration error when the
// login is unset or unknown.
func (r *IdentityResolver) BroadcasterID(ctx context.Context, token string) (string, error) {
	if id := r.store.Settings().BroadcasterID; id != "" {
		return id, nil
	}

	v, err, _ := r.group.Do("broadcaster", func() (any, error) {
		settings := r.store.Settings()
		if settings.BroadcasterID != "" {
			return settings.BroadcasterID, nil
		}
		if settings.BroadcasterLogin == "" {
			return "", domain.ConfigurationError("broadcaster login is not configured")
		}

		id, err := r.lookupUser(ctx, token, settings.ClientID, settings.BroadcasterLogin)
		if err != nil {
			return "", err
		}
		if id == "" {
			return "", domain.ConfigurationError(
				fmt.Sprintf("broadcaster not found for login %q", settings.BroadcasterLogin))
		}

		err = r.store.UpdateSettings(func(settings *store.Settings) {
			settings.BroadcasterID = id
		})
		if err != nil {
			return "", err
		}
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ModeratorID returns the user ID behind the current access token, resolving
// it on first use. Fails with a configuration error when the token maps to no
// identity.
func (r *IdentityResolver) ModeratorID(ctx context.Context, token string) (string, error) {
	if id := r.store.Settings().ModeratorUserID; id != "" {
		return id, nil
	}

	v, err, _ := r.group.Do("moderator", func() (any, error) {
		settings := r.store.Settings()
		if settings.ModeratorUserID != "" {
			return settings.ModeratorUserID, nil
		}

		id, err := r.lookupUser(ctx, token, settings.ClientID, "")
		if err != nil {
			return "", err
		}
		if id == "" {
			return "", domain.ConfigurationError("failed to resolve user for the provided access token")
		}

		err = r.store.UpdateSettings(func(settings *store.Settings) {
			settings.ModeratorUserID = id
		})
		if err != nil {
			return "", err
		}
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// lookupUser calls Helix GET /users. With a login it looks up that user;
// without one it resolves the identity behind the token. Returns "" when the
// API reports no match.
func (r *IdentityResolver) lookupUser(ctx context.Context, token, clientID, login string) (string, error) {
	endpoint := r.apiURL + "/users"
	if login != "" {
		endpoint += "?login=" + url.QueryEscape(login)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", domain.TransportError("failed to build user lookup request", err)
	}
	req.Header.Set("Client-Id", clientID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", domain.TransportError("user lookup request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", domain.AuthError("user lookup unauthorized", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", domain.TransportError("user lookup failed", fmt.Errorf("status %d", resp.StatusCode))
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", domain.TransportError("failed to decode user lookup response", err)
	}

	if len(result.Data) == 0 {
		return "", nil
	}
	return result.Data[0].ID, nil
}
