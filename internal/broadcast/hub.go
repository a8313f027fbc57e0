// Package broadcast implements the fan-out publisher: a single actor
// goroutine owning the set of attached overlay clients, with one buffered
// writer goroutine per client so a slow observer never blocks the others.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Mournian-ai/Mournian-Overlay/internal/domain"
	"github.com/Mournian-ai/Mournian-Overlay/internal/metrics"
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	connection *websocket.Conn
}

type publishCmd struct {
	baseHubCmd
	op   string
	data []byte
}

type clientCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// BootstrapFunc produces the bootstrap message a newly attached observer
// receives before any later-published message.
type BootstrapFunc func() domain.Message

// Hub is the fan-out publisher. All state is owned by the run goroutine;
// Register, Unregister, and Publish are safe from any goroutine.
type Hub struct {
	cmdCh      chan hubCmd
	clock      clockwork.Clock
	clients    map[*websocket.Conn]*clientWriter
	bootstrap  BootstrapFunc
	maxClients int
	done       chan struct{}
}

// NewHub creates a hub and starts its actor goroutine.
func NewHub(bootstrap BootstrapFunc, maxClients int, clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:      make(chan hubCmd, 256),
		clock:      clock,
		clients:    make(map[*websocket.Conn]*clientWriter),
		bootstrap:  bootstrap,
		maxClients: maxClients,
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

// Register attaches an observer. The bootstrap message is queued to it before
// the hub processes any later publish, so attach-then-publish ordering holds.
func (h *Hub) Register(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- registerCmd{connection: conn, errorChannel: errCh}
	return <-errCh
}

// Unregister detaches an observer and closes its writer.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.cmdCh <- unregisterCmd{connection: conn}
}

// Publish serializes msg once and delivers it to every attached observer.
// Observers that fail to receive are removed after the publish pass.
func (h *Hub) Publish(msg domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal fan-out message", "op", msg.Op, "error", err)
		return
	}
	h.cmdCh <- publishCmd{op: msg.Op, data: data}
}

// ClientCount returns the number of attached observers.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- clientCountCmd{replyChannel: replyCh}
	return <-replyCh
}

// Stop closes all observer connections and shuts the actor down.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}
	<-h.done
}

func (h *Hub) run() {
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c.connection)
		case publishCmd:
			h.handlePublish(c)
		case clientCountCmd:
			c.replyChannel <- len(h.clients)
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if len(h.clients) >= h.maxClients {
		slog.Warn("Rejecting observer: max clients reached", "max_clients", h.maxClients)
		c.connection.Close()
		c.errorChannel <- fmt.Errorf("max observers (%d) reached", h.maxClients)
		return
	}

	cw := newClientWriter(c.connection, h.clock)

	if h.bootstrap != nil {
		data, err := json.Marshal(h.bootstrap())
		if err != nil {
			slog.Error("Failed to marshal bootstrap message", "error", err)
		} else {
			cw.sendChannel <- data
		}
	}

	h.clients[c.connection] = cw
	metrics.BroadcastConnectedClients.Set(float64(len(h.clients)))
	slog.Debug("Observer attached", "total_clients", len(h.clients))
	c.errorChannel <- nil
}

func (h *Hub) handleUnregister(conn *websocket.Conn) {
	cw, exists := h.clients[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(h.clients, conn)
	metrics.BroadcastConnectedClients.Set(float64(len(h.clients)))
	slog.Debug("Observer detached", "remaining_clients", len(h.clients))
}

func (h *Hub) handlePublish(c publishCmd) {
	metrics.BroadcastMessagesTotal.WithLabelValues(c.op).Inc()

	var failed []*websocket.Conn
	for conn, writer := range h.clients {
		select {
		case writer.sendChannel <- c.data:
		default:
			failed = append(failed, conn)
		}
	}

	// Eviction happens after the pass so one bad observer never affects
	// delivery to the rest.
	for _, conn := range failed {
		slog.Warn("Evicting unresponsive observer")
		metrics.BroadcastSlowClientsEvictedTotal.Inc()
		h.handleUnregister(conn)
	}
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "clients", len(h.clients))
	for conn, cw := range h.clients {
		cw.stopGraceful("server shutting down")
		delete(h.clients, conn)
	}
	metrics.BroadcastConnectedClients.Set(0)
}
