// Package realtime implements the KIS realtime WebSocket client: one
// persistent connection multiplexing reference-counted subscriptions, with
// encrypted push frames, automatic resubscription after reconnect, and
// filterable event dispatch.
package realtime

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/wonny/aegis/kisrt/internal/event"
	"github.com/wonny/aegis/kisrt/internal/refcount"
	"github.com/wonny/aegis/kisrt/pkg/config"
	"github.com/wonny/aegis/kisrt/pkg/logger"
)

// ApprovalKeyProvider supplies the approval_key sent in every request frame.
type ApprovalKeyProvider interface {
	ApprovalKey(ctx context.Context, virtual bool) (string, error)
}

// Option configures a Client.
type Option func(*Client)

// WithRegistry replaces the default decoder registry.
func WithRegistry(r *Registry) Option {
	return func(c *Client) {
		c.registry = r
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// runner is one generation of the connection loop.
type runner struct {
	ctx          context.Context
	cancel       context.CancelFunc
	reconnectNow chan struct{}
	done         chan struct{}
	started      atomic.Bool
}

func newRunner() *runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &runner{
		ctx:          ctx,
		cancel:       cancel,
		reconnectNow: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

func (r *runner) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Client is a KIS realtime WebSocket client.
// ⭐ 하나의 Client = 하나의 물리 연결 (모의투자 체결통보는 실전 서버용 보조 Client 사용)
type Client struct {
	cfg       config.RealtimeConfig
	virtual   bool
	approvals ApprovalKeyProvider
	registry  *Registry
	dialer    *websocket.Dialer
	base      *logger.Logger
	logger    *logger.Logger
	opts      []Option

	events       *event.Handler[SubscriptionEventArgs]
	subscribed   *event.Handler[SubscriptionStateArgs]
	unsubscribed *event.Handler[SubscriptionStateArgs]

	refs *refcount.Store[TR]

	// connect lock: connection, runner and connected signal
	mu          sync.Mutex
	conn        *websocket.Conn
	runner      *runner
	connected   bool
	connectedCh chan struct{}
	approvalKey string

	// loopMu keeps at most one connection loop running.
	loopMu sync.Mutex

	// gorilla/websocket allows one concurrent writer
	writeMu sync.Mutex

	// subscriptions lock
	subMu         sync.Mutex
	subscriptions map[TR]struct{}
	registered    map[TR]struct{}
	keys          keychain

	primaryMu     sync.Mutex
	primary       *Client
	primaryChains []*event.Ticket
}

// NewClient creates a client for the real (virtual=false) or virtual domain.
// Nothing is dialed until Connect or the first subscription.
func NewClient(cfg config.RealtimeConfig, virtual bool, approvals ApprovalKeyProvider, log *logger.Logger, opts ...Option) *Client {
	domain := "real"
	if virtual {
		domain = "virtual"
	}

	c := &Client{
		cfg:           cfg,
		virtual:       virtual,
		approvals:     approvals,
		registry:      DefaultRegistry(),
		dialer:        &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		base:          log,
		logger:        log.Component("realtime").WithField("domain", domain),
		opts:          opts,
		connectedCh:   make(chan struct{}),
		subscriptions: make(map[TR]struct{}),
		registered:    make(map[TR]struct{}),
		keys:          make(keychain),
	}

	handlerOpts := []event.Option{event.WithLeakDetection(cfg.LeakDetection)}
	c.events = event.NewHandler[SubscriptionEventArgs](c.logger, handlerOpts...)
	c.subscribed = event.NewHandler[SubscriptionStateArgs](c.logger, handlerOpts...)
	c.unsubscribed = event.NewHandler[SubscriptionStateArgs](c.logger, handlerOpts...)
	c.refs = refcount.NewStore(c.release)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Event is raised for every decoded record.
func (c *Client) Event() *event.Handler[SubscriptionEventArgs] {
	return c.events
}

// Subscribed is raised when the server acknowledges a subscription.
func (c *Client) Subscribed() *event.Handler[SubscriptionStateArgs] {
	return c.subscribed
}

// Unsubscribed is raised when the server acknowledges an unsubscription.
func (c *Client) Unsubscribed() *event.Handler[SubscriptionStateArgs] {
	return c.unsubscribed
}

// Virtual reports whether the client targets the virtual trading domain.
func (c *Client) Virtual() bool {
	return c.virtual
}

func (c *Client) url() string {
	if c.virtual {
		return c.cfg.VirtualURL
	}
	return c.cfg.URL
}

// Connect starts the connection loop if needed. If a loop is waiting to
// reconnect it retries immediately. Connect never blocks. An existing
// real-domain client is connected too.
func (c *Client) Connect() {
	c.connect()
	if p := c.existingPrimary(); p != nil {
		p.Connect()
	}
}

func (c *Client) connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.connected {
		return
	}

	if r := c.runner; r != nil && !r.finished() {
		select {
		case r.reconnectNow <- struct{}{}:
		default:
		}
		return
	}

	r := newRunner()
	c.runner = r
	go c.run(r)
}

// EnsureConnected connects if needed and waits until the connection opens or
// ctx ends. The wait covers the real-domain client when one exists.
func (c *Client) EnsureConnected(ctx context.Context) error {
	if !c.Connected() {
		c.Connect()
	}

	c.mu.Lock()
	ch := c.connectedCh
	c.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrConnectTimeout, ctx.Err())
	}

	if p := c.existingPrimary(); p != nil {
		return p.EnsureConnected(ctx)
	}
	return nil
}

// Disconnect closes the connection and stops reconnecting until the next
// Connect. Subscriptions are kept and restored on the next connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	r := c.runner
	conn := c.conn
	c.runner = nil
	c.conn = nil
	c.setDisconnectedLocked()
	c.mu.Unlock()

	if r != nil {
		r.cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}

	c.subMu.Lock()
	clear(c.registered)
	c.subMu.Unlock()

	if p := c.existingPrimary(); p != nil {
		p.Disconnect()
	}

	if r != nil || conn != nil {
		c.logger.Info("Realtime client disconnected")
	}
}

// Connected reports whether the socket is open, and the real-domain client
// too when one exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	ok := c.conn != nil && c.connected
	c.mu.Unlock()

	if !ok {
		return false
	}
	if p := c.existingPrimary(); p != nil {
		return p.Connected()
	}
	return true
}

// Subscribe asks the server for a feed. It is a no-op when the TR is already
// subscribed and fails with ErrCapacityExceeded, changing nothing, when the
// client is full. The request frame is sent now if connected, otherwise on
// the next connection.
func (c *Client) Subscribe(id, key string, primary bool) error {
	target := c.route(primary)
	tr := TR{ID: id, Key: key}

	target.subMu.Lock()
	if _, ok := target.subscriptions[tr]; ok {
		target.subMu.Unlock()
		return nil
	}
	if len(target.subscriptions) >= target.cfg.MaxSubscriptions {
		n := len(target.subscriptions)
		target.subMu.Unlock()
		return fmt.Errorf("%w: %s (%d/%d)", ErrCapacityExceeded, tr, n, target.cfg.MaxSubscriptions)
	}
	target.subscriptions[tr] = struct{}{}
	// 연결 전이면 onOpen에서 일괄 재전송
	live := target.isLive()
	target.subMu.Unlock()

	target.Connect()
	if live {
		target.send(tr, trTypeSubscribe, false)
	}

	target.logger.WithFields(map[string]interface{}{
		"tr_id":  tr.ID,
		"tr_key": tr.Key,
	}).Debug("Subscription added")
	return nil
}

// Unsubscribe drops a feed. It is a no-op when the TR is not subscribed.
func (c *Client) Unsubscribe(id, key string, primary bool) {
	c.route(primary).unsubscribe(TR{ID: id, Key: key}, false)
}

// unsubscribe removes tr; onlyIfUnused skips it while references remain.
func (c *Client) unsubscribe(tr TR, onlyIfUnused bool) {
	c.subMu.Lock()
	if onlyIfUnused && c.refs.Count(tr) > 0 {
		c.subMu.Unlock()
		return
	}
	if _, ok := c.subscriptions[tr]; !ok {
		c.subMu.Unlock()
		return
	}
	delete(c.subscriptions, tr)
	c.subMu.Unlock()

	c.send(tr, trTypeUnsubscribe, false)

	c.logger.WithFields(map[string]interface{}{
		"tr_id":  tr.ID,
		"tr_key": tr.Key,
	}).Debug("Subscription removed")
}

// release is the reference store callback.
func (c *Client) release(tr TR, count int) {
	if count == 0 {
		c.unsubscribe(tr, true)
	}
}

// OnOption configures a registration made with On.
type OnOption func(*onOptions)

type onOptions struct {
	filter  event.Filter[SubscriptionEventArgs]
	once    bool
	primary bool
}

// WithFilter adds a caller filter. Filters from repeated options and the
// subscription filter are combined by AND.
func WithFilter(f event.Filter[SubscriptionEventArgs]) OnOption {
	return func(o *onOptions) {
		if o.filter == nil {
			o.filter = f
			return
		}
		o.filter = event.And(o.filter, f)
	}
}

// Once removes the callback after its first matching event.
func Once() OnOption {
	return func(o *onOptions) {
		o.once = true
	}
}

// Primary routes the subscription to the real-domain server when the client
// is virtual.
func Primary() OnOption {
	return func(o *onOptions) {
		o.primary = true
	}
}

// On subscribes to (id, key) and registers cb for its events. Registrations
// sharing a TR share one subscription; the last ticket to be released
// unsubscribes it.
func (c *Client) On(id, key string, cb event.Callback[SubscriptionEventArgs], opts ...OnOption) (*event.Ticket, error) {
	var o onOptions
	for _, opt := range opts {
		opt(&o)
	}

	target := c.route(o.primary)
	tr := TR{ID: id, Key: key}

	ref := target.refs.Ticket(tr)
	if err := target.Subscribe(id, key, false); err != nil {
		ref.Release()
		return nil, err
	}

	filter := event.And[SubscriptionEventArgs](NewSubscriptionFilter(id, key), o.filter)
	return c.events.Add(cb, filter, o.once, ref.Release), nil
}

// IsSubscribed reports whether (id, key) is subscribed here or on the
// real-domain client.
func (c *Client) IsSubscribed(id, key string) bool {
	c.subMu.Lock()
	_, ok := c.subscriptions[TR{ID: id, Key: key}]
	c.subMu.Unlock()

	if ok {
		return true
	}
	if p := c.existingPrimary(); p != nil {
		return p.IsSubscribed(id, key)
	}
	return false
}

// Subscriptions returns the desired subscriptions, sorted.
func (c *Client) Subscriptions() []TR {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return sortedTRs(c.subscriptions)
}

// RegisteredSubscriptions returns the subscriptions the server has
// acknowledged on the current connection, sorted.
func (c *Client) RegisteredSubscriptions() []TR {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return sortedTRs(c.registered)
}

// Primary returns the real-domain client, or nil if none was created.
func (c *Client) Primary() *Client {
	return c.existingPrimary()
}

func sortedTRs(set map[TR]struct{}) []TR {
	out := make([]TR, 0, len(set))
	for tr := range set {
		out = append(out, tr)
	}
	slices.SortFunc(out, TR.Compare)
	return out
}

// route returns the client that serves a subscription. Only virtual clients
// redirect primary subscriptions.
func (c *Client) route(primary bool) *Client {
	if !primary || !c.virtual {
		return c
	}

	c.primaryMu.Lock()
	defer c.primaryMu.Unlock()

	if c.primary == nil {
		p := NewClient(c.cfg, false, c.approvals, c.base, c.opts...)
		c.primaryChains = []*event.Ticket{
			p.events.On(func(_ any, args SubscriptionEventArgs) { c.events.Invoke(c, args) }),
			p.subscribed.On(func(_ any, args SubscriptionStateArgs) { c.subscribed.Invoke(c, args) }),
			p.unsubscribed.On(func(_ any, args SubscriptionStateArgs) { c.unsubscribed.Invoke(c, args) }),
		}
		c.primary = p
	}
	return c.primary
}

func (c *Client) existingPrimary() *Client {
	c.primaryMu.Lock()
	defer c.primaryMu.Unlock()
	return c.primary
}

func (c *Client) isLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.connected
}

func (c *Client) isCurrent(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == conn
}

// setDisconnectedLocked resets the connected signal. Caller holds c.mu.
func (c *Client) setDisconnectedLocked() {
	if c.connected {
		c.connected = false
		c.connectedCh = make(chan struct{})
	}
}

// run is the connection loop. A runner enters it at most once, and loopMu
// makes a superseding runner wait for the previous loop to exit.
func (c *Client) run(r *runner) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	defer close(r.done)

	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	policy := backoff.NewConstantBackOff(c.cfg.ReconnectInterval)

	for {
		if r.ctx.Err() != nil {
			return
		}

		err := c.session(r)
		if r.ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.WithError(err).Warn("Realtime connection lost")
		}
		if !c.cfg.Reconnect {
			return
		}

		delay := policy.NextBackOff()
		c.logger.WithField("delay", delay.String()).Info("Reconnecting realtime client")

		timer := time.NewTimer(delay)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-r.reconnectNow:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// session dials once and reads until the connection fails.
func (c *Client) session(r *runner) error {
	key, err := c.approvals.ApprovalKey(r.ctx, c.virtual)
	if err != nil {
		return fmt.Errorf("get approval key: %w", err)
	}

	dialCtx := r.ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(r.ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	conn, _, err := c.dialer.DialContext(dialCtx, c.url(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	c.mu.Lock()
	if c.runner != r {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.approvalKey = key
	c.mu.Unlock()

	c.onOpen(conn)
	defer c.onClose(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}
		c.onMessage(conn, data)
	}
}

// onOpen drops per-connection state and replays the desired subscriptions.
func (c *Client) onOpen(conn *websocket.Conn) {
	c.subMu.Lock()
	clear(c.registered)
	clear(c.keys)
	pending := sortedTRs(c.subscriptions)

	// connected is flipped under subMu so a concurrent Subscribe either lands
	// in pending or sends its own frame, never both.
	c.mu.Lock()
	current := c.conn == conn
	if current && !c.connected {
		c.connected = true
		close(c.connectedCh)
	}
	c.mu.Unlock()
	c.subMu.Unlock()

	if !current {
		return
	}

	restored := 0
	for _, tr := range pending {
		if c.resubscribe(conn, tr) {
			restored++
		}
	}

	c.logger.WithField("restored", restored).Info("Realtime client connected")
}

// resubscribe replays one subscription unless it was removed after the
// snapshot. writeMu is held across the membership check so a racing
// Unsubscribe frame is always written after this one.
func (c *Client) resubscribe(conn *websocket.Conn, tr TR) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.subMu.Lock()
	_, wanted := c.subscriptions[tr]
	c.subMu.Unlock()
	if !wanted {
		return false
	}

	c.mu.Lock()
	key := c.approvalKey
	c.mu.Unlock()

	payload, err := encodeRequest(key, trTypeSubscribe, tr)
	if err != nil {
		c.logger.WithError(err).Error("Failed to encode request frame")
		return false
	}
	if err := c.writeLocked(conn, payload); err != nil {
		c.logger.WithError(err).WithField("tr_id", tr.ID).Warn("Failed to send request frame")
		return false
	}
	return true
}

func (c *Client) onClose(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.setDisconnectedLocked()
	c.mu.Unlock()

	_ = conn.Close()

	c.subMu.Lock()
	clear(c.registered)
	c.subMu.Unlock()
}

func (c *Client) onMessage(conn *websocket.Conn, data []byte) {
	if !c.isCurrent(conn) {
		return
	}

	if isEventFrame(data) {
		c.handleEvent(string(data))
		return
	}
	c.handleControl(conn, data)
}

func (c *Client) handleControl(conn *websocket.Conn, data []byte) {
	frame, err := decodeControl(data)
	if err != nil {
		c.logger.WithError(err).Warn("Unreadable control frame")
		return
	}

	if frame.Header.TrID == trPingPong {
		if err := c.write(conn, data); err != nil {
			c.logger.WithError(err).Warn("PINGPONG echo failed")
		}
		return
	}

	tr := frame.tr()
	log := c.logger.WithFields(map[string]interface{}{
		"tr_id":  tr.ID,
		"tr_key": tr.Key,
	})

	if frame.Body == nil {
		log.Warn("Unhandled control frame without body")
		return
	}
	log = log.WithFields(map[string]interface{}{
		"msg_cd": frame.Body.MsgCd,
		"msg1":   frame.Body.Msg1,
	})

	switch frame.Body.MsgCd {
	case msgSubscribed, msgAlreadySubscribed:
		c.subMu.Lock()
		if out := frame.Body.Output; out != nil && out.Key != "" {
			c.keys.store(tr, out.Key, out.IV)
		}
		_, known := c.registered[tr]
		c.registered[tr] = struct{}{}
		c.subMu.Unlock()

		log.Debug("Subscribe acknowledged")
		if !known {
			c.subscribed.Invoke(c, SubscriptionStateArgs{TR: tr})
		}

	case msgUnsubscribed, msgAlreadyUnsubscribed:
		c.subMu.Lock()
		_, known := c.registered[tr]
		delete(c.registered, tr)
		c.subMu.Unlock()

		log.Debug("Unsubscribe acknowledged")
		if known {
			c.unsubscribed.Invoke(c, SubscriptionStateArgs{TR: tr})
		}

	case msgSessionConflict:
		log.Warn("Realtime session conflict")

	case msgServerFatal:
		log.Error("Realtime server error")

	default:
		log.Warn("Unhandled control message")
	}
}

func (c *Client) handleEvent(raw string) {
	frame, err := parseEventFrame(raw)
	if err != nil {
		c.logger.WithError(err).Warn("Dropped event frame")
		return
	}

	log := c.logger.WithField("tr_id", frame.TrID)

	payload := frame.Payload
	if frame.Encrypted {
		c.subMu.Lock()
		ck, err := c.keys.lookup(frame.TrID)
		c.subMu.Unlock()

		if err != nil {
			log.WithError(err).Warn("Dropped encrypted frame")
			return
		}
		if payload, err = Decrypt(payload, ck.key, ck.iv); err != nil {
			log.WithError(err).Warn("Dropped encrypted frame")
			return
		}
	}

	responses, err := c.registry.Decode(frame.TrID, payload, c.cfg.StoreRaw)
	if err != nil {
		log.WithError(err).Error("Failed to parse event frame")
		return
	}

	for _, resp := range responses {
		c.events.Invoke(c, SubscriptionEventArgs{
			TR:       TR{ID: frame.TrID, Key: resp.Metadata().Key},
			Response: resp,
		})
	}
}

// send writes a request frame. Unless forced it is dropped while the client
// is not connected; the next onOpen replays it.
func (c *Client) send(tr TR, trType string, force bool) {
	c.mu.Lock()
	conn, key, live := c.conn, c.approvalKey, c.connected
	c.mu.Unlock()

	if conn == nil || (!live && !force) {
		c.logger.WithFields(map[string]interface{}{
			"tr_id":   tr.ID,
			"tr_key":  tr.Key,
			"tr_type": trType,
		}).Debug("Not connected, request frame deferred")
		return
	}

	payload, err := encodeRequest(key, trType, tr)
	if err != nil {
		c.logger.WithError(err).Error("Failed to encode request frame")
		return
	}

	if err := c.write(conn, payload); err != nil {
		c.logger.WithError(err).WithField("tr_id", tr.ID).Warn("Failed to send request frame")
	}
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(conn, data)
}

// writeLocked requires writeMu.
func (c *Client) writeLocked(conn *websocket.Conn, data []byte) error {
	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
