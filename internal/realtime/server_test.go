package realtime

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/kisrt/pkg/config"
	"github.com/wonny/aegis/kisrt/pkg/logger"
)

// mockKIS is an in-process stand-in for the KIS realtime endpoint. It records
// every frame it receives and lets tests push frames to the latest connection.
type mockKIS struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader
	connects atomic.Int32

	mu       sync.Mutex
	conn     *websocket.Conn
	conns    []*websocket.Conn
	requests []requestFrame
	raw      [][]byte
	writeMu  sync.Mutex
}

func newMockKIS(t *testing.T) *mockKIS {
	t.Helper()
	m := &mockKIS{t: t}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.close)
	return m
}

func (m *mockKIS) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.conn = conn
	m.conns = append(m.conns, conn)
	m.mu.Unlock()
	m.connects.Add(1)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.raw = append(m.raw, data)
		var req requestFrame
		if json.Unmarshal(data, &req) == nil && req.Header.TrType != "" {
			m.requests = append(m.requests, req)
		}
		m.mu.Unlock()
	}
}

func (m *mockKIS) url() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

func (m *mockKIS) close() {
	m.dropAll()
	m.server.Close()
}

// push sends a text frame on the newest connection.
func (m *mockKIS) push(frame string) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	require.NotNil(m.t, conn, "no client connected")

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	require.NoError(m.t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (m *mockKIS) dropAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = nil
	m.conn = nil
	m.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// frames returns the recorded requests of the given tr_type.
func (m *mockKIS) frames(trType string) []TR {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []TR
	for _, req := range m.requests {
		if req.Header.TrType == trType {
			out = append(out, TR{ID: req.Body.Input.TrID, Key: req.Body.Input.TrKey})
		}
	}
	return out
}

func (m *mockKIS) requestsSnapshot() []requestFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]requestFrame(nil), m.requests...)
}

func (m *mockKIS) received(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.raw {
		if bytes.Equal(r, data) {
			return true
		}
	}
	return false
}

func (m *mockKIS) waitFrames(trType string, n int) []TR {
	m.t.Helper()
	require.Eventually(m.t, func() bool { return len(m.frames(trType)) >= n },
		2*time.Second, 5*time.Millisecond, "waiting for %d tr_type=%s frames", n, trType)
	return m.frames(trType)
}

func ack(tr TR, msgCd string) string {
	return `{"header":{"tr_id":"` + tr.ID + `","tr_key":"` + tr.Key + `","encrypt":"N"},` +
		`"body":{"rt_cd":"0","msg_cd":"` + msgCd + `","msg1":"OK"}}`
}

func ackWithKey(tr TR, key, iv string) string {
	return `{"header":{"tr_id":"` + tr.ID + `","tr_key":"` + tr.Key + `","encrypt":"Y"},` +
		`"body":{"rt_cd":"0","msg_cd":"OPSP0000","msg1":"SUBSCRIBE SUCCESS","output":{"iv":"` + iv + `","key":"` + key + `"}}}`
}

// record builds one '^'-joined record for id with the given fields set.
func record(t *testing.T, id string, set map[string]string) string {
	t.Helper()
	schema, ok := DefaultRegistry().Lookup(id)
	require.True(t, ok)

	tokens := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		tokens[i] = set[f.Name]
	}
	return strings.Join(tokens, "^")
}

func priceRecord(t *testing.T, symbol, price string) string {
	return record(t, TRStockPrice, map[string]string{
		"MKSC_SHRN_ISCD": symbol,
		"STCK_CNTG_HOUR": "093001",
		"STCK_PRPR":      price,
		"CNTG_VOL":       "10",
	})
}

func encrypt(t *testing.T, plaintext string, key, iv []byte) string {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	data := append([]byte(plaintext), bytes.Repeat([]byte{byte(pad)}, pad)...)

	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return base64.StdEncoding.EncodeToString(out)
}

type staticApproval string

func (s staticApproval) ApprovalKey(context.Context, bool) (string, error) {
	return string(s), nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(m *mockKIS) config.RealtimeConfig {
	cfg := config.DefaultRealtime()
	cfg.URL = m.url()
	cfg.VirtualURL = m.url()
	cfg.ReconnectInterval = 20 * time.Millisecond
	cfg.HandshakeTimeout = time.Second
	cfg.WriteTimeout = time.Second
	return cfg
}

func newTestClient(t *testing.T, cfg config.RealtimeConfig, virtual bool, log *logger.Logger) *Client {
	t.Helper()
	if log == nil {
		log = logger.Nop()
	}
	c := NewClient(cfg, virtual, staticApproval("approval-key"), log)
	t.Cleanup(c.Disconnect)
	return c
}

func connect(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.EnsureConnected(ctx))
}
