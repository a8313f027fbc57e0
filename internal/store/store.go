// Package store implements the durable on-disk aggregate of settings, latest
// events, stats, and recent-event history. The file is written atomically
// (temp file, then rename) so a crash mid-write never corrupts it.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Mournian-ai/Mournian-Overlay/internal/crypto"
	"github.com/Mournian-ai/Mournian-Overlay/internal/domain"
	"github.com/Mournian-ai/Mournian-Overlay/internal/metrics"
)

// maxRecent caps each recent-event ring buffer. Oldest entries drop first.
const maxRecent = 100

// Settings holds user configuration and credentials. Tokens are encrypted at
// rest when a crypto service is configured; in memory they are plaintext.
type Settings struct {
	DefaultChannel string `json:"default_channel"`

	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`

	BroadcasterLogin string `json:"broadcaster_login"`
	BroadcasterID    string `json:"broadcaster_id"`
	ModeratorUserID  string `json:"moderator_user_id"`

	UserAccessToken  string `json:"user_access_token"`
	UserRefreshToken string `json:"user_refresh_token"`
}

// Stats holds monotonically increasing counters. Never reset by the worker.
type Stats struct {
	TotalBits int64 `json:"total_bits"`
}

// Recent holds capped, newest-last histories per event kind.
type Recent struct {
	Follows []domain.FollowEvent `json:"follows"`
	Subs    []domain.SubEvent    `json:"subs"`
	Cheers  []domain.CheerEvent  `json:"cheers"`
}

type state struct {
	Settings Settings      `json:"settings"`
	Latest   domain.Latest `json:"latest"`
	Stats    Stats         `json:"stats"`
	Recent   Recent        `json:"recent"`
}

// Store is the single durable store for the process. All mutations go through
// one write lock and are persisted before the mutating call returns.
type Store struct {
	mu     sync.RWMutex
	path   string
	cipher crypto.Service
	data   state
}

// Open loads the store from path, starting fresh if the file is missing or
// unreadable. A corrupt file is not an error: the previous fully-written
// version is all we ever guarantee.
func Open(path string, cipher crypto.Service) (*Store, error) {
	if cipher == nil {
		cipher = crypto.NoopService{}
	}
	s := &Store{path: path, cipher: cipher}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var data state
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Warn("Store file is corrupt, starting fresh", "path", path, "error", err)
		return s, nil
	}

	access, err := cipher.Decrypt(data.Settings.UserAccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refresh, err := cipher.Decrypt(data.Settings.UserRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	data.Settings.UserAccessToken = access
	data.Settings.UserRefreshToken = refresh

	s.data = data
	return s, nil
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Settings
}

// Latest returns a copy of the latest-event slots.
func (s *Store) Latest() domain.Latest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Latest
}

// Stats returns a copy of the cumulative counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Stats
}

// Recent returns a copy of the recent-event histories, newest last.
func (s *Store) Recent() Recent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := Recent{
		Follows: make([]domain.FollowEvent, len(s.data.Recent.Follows)),
		Subs:    make([]domain.SubEvent, len(s.data.Recent.Subs)),
		Cheers:  make([]domain.CheerEvent, len(s.data.Recent.Cheers)),
	}
	copy(r.Follows, s.data.Recent.Follows)
	copy(r.Subs, s.data.Recent.Subs)
	copy(r.Cheers, s.data.Recent.Cheers)
	return r
}

// UpdateSettings applies fn to the settings under the write lock and persists
// the result.
func (s *Store) UpdateSettings(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.data.Settings)
	return s.save()
}

// RecordFollow overwrites the latest follow, appends to the history, and
// persists.
func (s *Store) RecordFollow(ev domain.FollowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Latest.Follow = &ev
	s.data.Recent.Follows = appendCapped(s.data.Recent.Follows, ev)
	return s.save()
}

// RecordSub overwrites the latest subscription, appends to the history, and
// persists.
func (s *Store) RecordSub(ev domain.SubEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Latest.Sub = &ev
	s.data.Recent.Subs = appendCapped(s.data.Recent.Subs, ev)
	return s.save()
}

// RecordCheer overwrites the latest cheer, adds its bits to the cumulative
// counter, appends to the history, and persists.
func (s *Store) RecordCheer(ev domain.CheerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Latest.Bits = &ev
	s.data.Stats.TotalBits += ev.Bits
	s.data.Recent.Cheers = appendCapped(s.data.Recent.Cheers, ev)
	return s.save()
}

func appendCapped[T any](buf []T, item T) []T {
	buf = append(buf, item)
	if len(buf) > maxRecent {
		buf = buf[len(buf)-maxRecent:]
	}
	return buf
}

// save writes the store atomically. Callers must hold the write lock.
func (s *Store) save() error {
	start := time.Now()

	out := s.data
	access, err := s.cipher.Encrypt(out.Settings.UserAccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := s.cipher.Encrypt(out.Settings.UserRefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	out.Settings.UserAccessToken = access
	out.Settings.UserRefreshToken = refresh

	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "store-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace store file: %w", err)
	}

	metrics.StoreSavesTotal.Inc()
	metrics.StoreSaveDuration.Observe(time.Since(start).Seconds())
	return nil
}
