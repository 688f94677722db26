package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ironledgerdev/myBusApp/internal/adapter/metrics"
	"github.com/ironledgerdev/myBusApp/internal/broadcast"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	hub     *broadcast.Hub
	metrics *metrics.HubMetrics
	url     string
}

func setupHandler(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	clock := clockwork.NewRealClock()
	m := metrics.NewHubMetrics(prometheus.NewRegistry())
	hub := broadcast.NewHub(broadcast.DefaultConfig(), clock, m)
	handler := NewHandler(hub, cfg, clock, m, NewCheckOrigin("https://mybus.example.com", false))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.Serve(w, r, domain.DefaultGroup)
	}))
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})

	return &testEnv{hub: hub, metrics: m, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func dial(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(env.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ack := readJSON(t, conn)
	require.Equal(t, domain.TypeConnectionAck, ack["type"])
	require.NotEmpty(t, ack["clientId"])
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &v))
	return v
}

func readTyped(conn *websocket.Conn) (int, []byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return 0, nil, err
	}
	return conn.ReadMessage()
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

const locationUpdate = `{"type":"BUS_LOCATION_UPDATE","busId":"SOW-001","lat":-26.2485,"lng":27.854,"timestamp":1700000000000}`

func TestHandler_RelaysToEveryMemberIncludingSender(t *testing.T) {
	env := setupHandler(t, DefaultConfig())
	a := dial(t, env)
	b := dial(t, env)

	send(t, a, locationUpdate)

	assert.JSONEq(t, locationUpdate, string(readFrame(t, a)))
	assert.JSONEq(t, locationUpdate, string(readFrame(t, b)))
}

func TestHandler_InvalidJSONAnsweredToOriginOnly(t *testing.T) {
	env := setupHandler(t, DefaultConfig())
	a := dial(t, env)
	b := dial(t, env)

	send(t, a, "definitely not json")

	errMsg := readJSON(t, a)
	assert.Equal(t, domain.TypeError, errMsg["type"])
	assert.Equal(t, domain.ErrorCodeDecode, errMsg["code"])

	// The next frame B sees is the valid message, so nothing leaked before it.
	send(t, a, locationUpdate)
	assert.JSONEq(t, locationUpdate, string(readFrame(t, b)))
	assert.JSONEq(t, locationUpdate, string(readFrame(t, a)))

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.DecodeErrors))
}

func TestHandler_InvalidUTF8NeverReachesOtherMembers(t *testing.T) {
	env := setupHandler(t, DefaultConfig())
	a := dial(t, env)
	b := dial(t, env)

	send(t, a, "{\"busId\":\"\xff\xfe\"}")

	errMsg := readJSON(t, a)
	assert.Equal(t, domain.TypeError, errMsg["type"])
	assert.Equal(t, domain.ErrorCodeDecode, errMsg["code"])

	send(t, a, locationUpdate)
	assert.JSONEq(t, locationUpdate, string(readFrame(t, b)), "B's first frame is the valid update")
	assert.JSONEq(t, locationUpdate, string(readFrame(t, a)))
}

func TestHandler_BinaryFrameAnsweredWithDecodeError(t *testing.T) {
	env := setupHandler(t, DefaultConfig())
	a := dial(t, env)
	b := dial(t, env)

	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte(`{"lat":1,"lng":2}`)))

	errMsg := readJSON(t, a)
	assert.Equal(t, domain.ErrorCodeDecode, errMsg["code"])

	send(t, a, locationUpdate)
	frameType, data, err := readTyped(b)
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, frameType)
	assert.JSONEq(t, locationUpdate, string(data))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.DecodeErrors))
}

func TestHandler_AckPrecedesBroadcasts(t *testing.T) {
	env := setupHandler(t, DefaultConfig())

	stop := make(chan struct{})
	flooding := make(chan struct{})
	go func() {
		defer close(flooding)
		for {
			select {
			case <-stop:
				return
			default:
				env.hub.Publish(domain.Message{Group: domain.DefaultGroup, Payload: []byte(locationUpdate)})
			}
		}
	}()
	defer func() {
		close(stop)
		<-flooding
	}()

	// dial fails the test unless the first frame is the ACK.
	for range 20 {
		dial(t, env)
	}
}

func TestHandler_OversizedFrameKeepsConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMessageBytes = 512
	env := setupHandler(t, cfg)
	a := dial(t, env)

	send(t, a, `{"blob":"`+strings.Repeat("x", 600)+`"}`)

	errMsg := readJSON(t, a)
	assert.Equal(t, domain.ErrorCodeMessageTooLarge, errMsg["code"])

	send(t, a, locationUpdate)
	assert.JSONEq(t, locationUpdate, string(readFrame(t, a)))
}

func TestHandler_InboundRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InboundRate = 0.001
	cfg.InboundBurst = 2
	env := setupHandler(t, cfg)
	a := dial(t, env)

	for range 3 {
		send(t, a, locationUpdate)
	}

	assert.JSONEq(t, locationUpdate, string(readFrame(t, a)))
	assert.JSONEq(t, locationUpdate, string(readFrame(t, a)))
	errMsg := readJSON(t, a)
	assert.Equal(t, domain.ErrorCodeRateLimited, errMsg["code"])
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.InboundRateLimited))
}

func TestHandler_ClientCloseLeavesGroup(t *testing.T) {
	env := setupHandler(t, DefaultConfig())
	a := dial(t, env)
	dial(t, env)

	require.Eventually(t, func() bool { return env.hub.ConnectionCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	_ = a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = a.Close()

	assert.Eventually(t, func() bool {
		return env.hub.ConnectionCount() == 1 && env.hub.Groups()[domain.DefaultGroup] == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_ShutdownSendsCloseReason(t *testing.T) {
	env := setupHandler(t, DefaultConfig())
	a := dial(t, env)

	env.hub.Stop()

	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := a.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "Server shutting down", closeErr.Text)
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	env := setupHandler(t, DefaultConfig())

	header := http.Header{}
	header.Set("Origin", "https://evil.example.org")
	_, resp, err := websocket.DefaultDialer.Dial(env.url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, env.hub.ConnectionCount())
}
