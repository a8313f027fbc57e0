// Package eventsub implements the event-ingestion worker: one long-lived
// WebSocket session to Twitch EventSub, driven through an explicit
// connect/welcome/subscribe/stream state loop with exponential reconnect
// backoff, dispatching events into the durable store and out to the overlay.
package eventsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Mournian-ai/Mournian-Overlay/internal/domain"
	"github.com/Mournian-ai/Mournian-Overlay/internal/metrics"
	"github.com/Mournian-ai/Mournian-Overlay/internal/store"
	"github.com/Mournian-ai/Mournian-Overlay/internal/twitch"
)

const (
	defaultMinBackoff = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
	// defaultWelcomePause is the fixed wait after a first frame without a
	// session descriptor. This path is intentionally lenient and never
	// escalates into reconnect backoff; see the welcome loop below.
	defaultWelcomePause = 3 * time.Second
)

// Config wires a Worker. URL is the EventSub WebSocket endpoint; the backoff
// fields default sensibly when zero and exist so tests can compress time.
type Config struct {
	URL          string
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	WelcomePause time.Duration
}

// Worker owns one live EventSub connection at a time and drives it through
// connect, await-welcome, subscribe-all, stream, teardown, backoff-wait, and
// reconnect, forever, until its context is cancelled. A cancelled worker
// never restarts on its own; a fresh instance must be created to resume.
type Worker struct {
	cfg    Config
	store  *store.Store
	tokens *twitch.TokenSource
	ids    *twitch.IdentityResolver
	subs   *twitch.SubscriptionManager
	disp   *dispatcher
	clock  clockwork.Clock
	dialer *websocket.Dialer
	status statusTracker
	log    *slog.Logger
}

// New creates a worker. It does not connect; call Run.
func New(cfg Config, s *store.Store, tokens *twitch.TokenSource, ids *twitch.IdentityResolver, subs *twitch.SubscriptionManager, pub Publisher, clock clockwork.Clock) *Worker {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.WelcomePause <= 0 {
		cfg.WelcomePause = defaultWelcomePause
	}

	log := slog.Default().With("component", "eventsub")
	return &Worker{
		cfg:    cfg,
		store:  s,
		tokens: tokens,
		ids:    ids,
		subs:   subs,
		disp:   &dispatcher{store: s, pub: pub, log: log},
		clock:  clock,
		dialer: websocket.DefaultDialer,
		status: statusTracker{cur: Status{Backoff: cfg.MinBackoff.Seconds()}},
		log:    log,
	}
}

// Status returns a copy of the current worker status snapshot. Safe to call
// from any goroutine.
func (w *Worker) Status() Status {
	return w.status.snapshot()
}

// Run drives the reconnect loop until ctx is cancelled. It always returns
// ctx.Err(); every other failure is absorbed into the backoff path.
func (w *Worker) Run(ctx context.Context) error {
	backoff := w.cfg.MinBackoff

	for {
		if ctx.Err() != nil {
			w.markDisconnected("")
			return ctx.Err()
		}

		err := w.runSession(ctx, &backoff)
		if ctx.Err() != nil {
			w.markDisconnected("")
			w.log.Info("Worker cancelled, closing")
			return ctx.Err()
		}

		metrics.EventSubReconnectsTotal.Inc()
		w.markDisconnected(err.Error())
		w.status.update(func(s *Status) { s.Backoff = backoff.Seconds() })
		w.log.Error("Session failed", "error", err, "kind", domain.TypeOf(err), "backoff", backoff)

		// Best-effort refresh before the next attempt. A refresh failure is
		// logged, never fatal to the retry loop.
		if rerr := w.tokens.Refresh(ctx); rerr != nil {
			w.log.Warn("Token refresh failed", "error", rerr)
		}

		if err := w.sleep(ctx, backoff); err != nil {
			w.markDisconnected("")
			return err
		}
		backoff = min(backoff*2, w.cfg.MaxBackoff)
	}
}

// runSession performs one full connection attempt: resolve identities, dial,
// await welcome, create all three subscriptions, then stream until the
// transport fails. Reaching the streaming state resets backoff to minimum.
func (w *Worker) runSession(ctx context.Context, backoff *time.Duration) error {
	token := w.tokens.Current()
	if token == "" {
		return domain.ConfigurationError("no access token; connect your Twitch account first")
	}

	broadcasterID, err := w.ids.BroadcasterID(ctx, token)
	if err != nil {
		return err
	}
	moderatorID, err := w.ids.ModeratorID(ctx, token)
	if err != nil {
		return err
	}

	w.log.Info("Connecting to EventSub", "url", w.cfg.URL)
	conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return domain.TransportError("failed to open EventSub connection", err)
	}
	defer conn.Close()

	// Closing the connection is the only way to interrupt a blocked read.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	sessionID, err := w.awaitWelcome(ctx, conn)
	if err != nil {
		return err
	}
	w.log.Info("EventSub session established", "session_id", sessionID)

	// A new session id invalidates all prior per-session subscription flags.
	w.status.update(func(s *Status) {
		s.SessionID = sessionID
		s.Subs = SubFlags{}
	})

	subscriptions := []struct {
		subType   string
		condition map[string]string
		mark      func(*SubFlags)
	}{
		{
			subType:   twitch.SubTypeFollow,
			condition: map[string]string{"broadcaster_user_id": broadcasterID, "moderator_user_id": moderatorID},
			mark:      func(f *SubFlags) { f.Follow = true },
		},
		{
			subType:   twitch.SubTypeSubscribe,
			condition: map[string]string{"broadcaster_user_id": broadcasterID},
			mark:      func(f *SubFlags) { f.Subscribe = true },
		},
		{
			subType:   twitch.SubTypeCheer,
			condition: map[string]string{"broadcaster_user_id": broadcasterID},
			mark:      func(f *SubFlags) { f.Cheer = true },
		},
	}
	for _, sub := range subscriptions {
		if err := w.subs.Create(ctx, sessionID, sub.subType, sub.condition); err != nil {
			return err
		}
		w.status.update(func(s *Status) { sub.mark(&s.Subs) })
	}

	// Streaming: all subscriptions are live, backoff resets to minimum.
	*backoff = w.cfg.MinBackoff
	w.status.update(func(s *Status) {
		s.Connected = true
		s.Since = w.clock.Now()
		s.LastError = ""
		s.Backoff = w.cfg.MinBackoff.Seconds()
	})
	metrics.EventSubConnected.Set(1)
	w.log.Info("Streaming events", "session_id", sessionID)

	return w.stream(conn)
}

// awaitWelcome reads frames until one carries a session descriptor. A first
// frame without one is treated as a transient server anomaly: log, pause a
// fixed interval, and wait for the next frame. No retry cap, no backoff.
func (w *Worker) awaitWelcome(ctx context.Context, conn *websocket.Conn) (string, error) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "", domain.TransportError("failed to read welcome frame", err)
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			return "", domain.TransportError("malformed welcome frame", err)
		}

		if id, ok := f.sessionID(); ok {
			return id, nil
		}

		w.log.Warn("Welcome frame carried no session descriptor, waiting", "frame", string(raw))
		if err := w.sleep(ctx, w.cfg.WelcomePause); err != nil {
			return "", err
		}
	}
}

// stream reads event frames until the transport closes. Malformed frames and
// keepalives are skipped; everything else goes to the dispatcher.
func (w *Worker) stream(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return domain.TransportError("EventSub read failed", err)
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			w.log.Debug("Skipping malformed frame", "error", err)
			continue
		}

		subType, event, ok := f.notification()
		if !ok {
			continue // keepalive or session metadata
		}
		w.disp.dispatch(subType, event)
	}
}

func (w *Worker) markDisconnected(lastError string) {
	metrics.EventSubConnected.Set(0)
	w.status.update(func(s *Status) {
		s.Connected = false
		if lastError != "" {
			s.LastError = lastError
		}
	})
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-w.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
