package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mournian-ai/Mournian-Overlay/internal/domain"
)

// setupHub starts a hub plus a WebSocket endpoint that registers every
// accepted connection with it.
func setupHub(t *testing.T, bootstrap BootstrapFunc, maxClients int) (*Hub, string) {
	t.Helper()
	hub := NewHub(bootstrap, maxClients, clockwork.NewRealClock())

	var stopOnce sync.Once
	t.Cleanup(func() { stopOnce.Do(hub.Stop) })

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if err := hub.Register(conn); err != nil {
			return
		}
		// Keep reading so control frames are processed. Teardown is the
		// hub's business, not ours.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialObserver(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) domain.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg domain.Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHub_BootstrapArrivesBeforeAnyPublish(t *testing.T) {
	bootstrap := func() domain.Message {
		return domain.BootstrapMessage(domain.Latest{
			Follow: &domain.FollowEvent{UserName: "earlyfan"},
		})
	}
	hub, url := setupHub(t, bootstrap, 10)

	conn := dialObserver(t, url)
	waitForClients(t, hub, 1)

	hub.Publish(domain.AlertMessage(domain.KindFollow, domain.FollowEvent{UserName: "latefan"}))

	first := readMessage(t, conn)
	assert.Equal(t, domain.OpBootstrap, first.Op)
	require.NotNil(t, first.Latest)
	require.NotNil(t, first.Latest.Follow)
	assert.Equal(t, "earlyfan", first.Latest.Follow.UserName)

	second := readMessage(t, conn)
	assert.Equal(t, domain.OpAlert, second.Op)
	assert.Equal(t, domain.KindFollow, second.Kind)
}

func TestHub_PublishReachesAllObserversInOrder(t *testing.T) {
	bootstrap := func() domain.Message { return domain.BootstrapMessage(domain.Latest{}) }
	hub, url := setupHub(t, bootstrap, 10)

	connA := dialObserver(t, url)
	connB := dialObserver(t, url)
	waitForClients(t, hub, 2)

	hub.Publish(domain.LatestUpdateMessage(domain.KindBits, domain.CheerEvent{UserName: "a", Bits: 1}))
	hub.Publish(domain.AlertMessage(domain.KindBits, domain.CheerEvent{UserName: "a", Bits: 1}))
	hub.Publish(domain.LatestUpdateMessage(domain.KindSub, domain.SubEvent{UserName: "b"}))

	for _, conn := range []*websocket.Conn{connA, connB} {
		assert.Equal(t, domain.OpBootstrap, readMessage(t, conn).Op)
		assert.Equal(t, domain.OpLatestUpdate, readMessage(t, conn).Op)
		assert.Equal(t, domain.OpAlert, readMessage(t, conn).Op)

		third := readMessage(t, conn)
		assert.Equal(t, domain.OpLatestUpdate, third.Op)
		assert.Equal(t, domain.KindSub, third.Kind)
	}
}

func TestHub_RejectsObserversOverLimit(t *testing.T) {
	hub, url := setupHub(t, nil, 1)

	dialObserver(t, url)
	waitForClients(t, hub, 1)

	second := dialObserver(t, url)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_EvictsDeadObserverWithoutDisturbingOthers(t *testing.T) {
	bootstrap := func() domain.Message { return domain.BootstrapMessage(domain.Latest{}) }
	hub, url := setupHub(t, bootstrap, 10)

	healthy := dialObserver(t, url)
	dead := dialObserver(t, url)
	waitForClients(t, hub, 2)

	require.NoError(t, dead.Close())

	// Publish until the dead observer's writer backlog fills and the hub
	// drops it.
	require.Eventually(t, func() bool {
		hub.Publish(domain.AlertMessage(domain.KindFollow, domain.FollowEvent{UserName: "x"}))
		return hub.ClientCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	// The healthy observer still receives: drain what is queued, then look
	// for a marker message.
	hub.Publish(domain.LatestUpdateMessage(domain.KindBits, domain.CheerEvent{UserName: "marker", Bits: 7}))
	for {
		msg := readMessage(t, healthy)
		if msg.Op == domain.OpLatestUpdate && msg.Kind == domain.KindBits {
			break
		}
	}
}

func TestHub_StopClosesObserversGracefully(t *testing.T) {
	hub, url := setupHub(t, nil, 10)

	conn := dialObserver(t, url)
	waitForClients(t, hub, 1)

	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
