package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/srtaalej/capstone-proj/internal/observability"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription id.
	SubscribeTimeout time.Duration
	// Logger receives connection and protocol errors. Nil disables logging.
	Logger *zap.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

var _ WSClient = (*WSClientImpl)(nil)

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to the pending signature watch
	subs   map[int64]*signatureWatch
	subsMu sync.Mutex

	// pendingSubs maps request ID to the watch awaiting its subscription ID
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

type signatureWatch struct {
	signature  string
	commitment string
	ch         chan SignatureNotification
	once       sync.Once
}

// finish delivers n (if non-nil) and closes the channel exactly once.
func (w *signatureWatch) finish(n *SignatureNotification) {
	w.once.Do(func() {
		if n != nil {
			w.ch <- *n
		}
		close(w.ch)
	})
}

type pendingSub struct {
	watch   *signatureWatch
	confirm chan int64
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = DefaultWSConfig().SubscribeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger.Named("ws"),
		subs:        make(map[int64]*signatureWatch),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeSignature subscribes to the confirmation of one signature.
func (c *WSClientImpl) SubscribeSignature(ctx context.Context, signature, commitment string) (<-chan SignatureNotification, error) {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}

	// Buffered so dispatch never blocks on a caller that stopped listening.
	watch := &signatureWatch{
		signature:  signature,
		commitment: commitment,
		ch:         make(chan SignatureNotification, 1),
	}
	if _, err := c.subscribe(ctx, watch); err != nil {
		return nil, err
	}
	return watch.ch, nil
}

// subscribe sends signatureSubscribe and waits for the subscription id. The
// read loop registers the watch under that id before any later message is read.
func (c *WSClientImpl) subscribe(ctx context.Context, watch *signatureWatch) (int64, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			watch.signature,
			map[string]string{"commitment": watch.commitment},
		},
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = &pendingSub{watch: watch, confirm: confirmCh}
	c.pendingSubsMu.Unlock()

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		c.dropPending(reqID)
		return 0, fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		c.dropPending(reqID)
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		return subID, nil
	case <-timer.C:
		c.dropPending(reqID)
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		c.dropPending(reqID)
		return 0, ctx.Err()
	}
}

func (c *WSClientImpl) dropPending(reqID uint64) {
	c.pendingSubsMu.Lock()
	delete(c.pendingSubs, reqID)
	c.pendingSubsMu.Unlock()
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for id, w := range c.subs {
		w.finish(nil)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirm)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				c.logger.Warn("connection lost, reconnecting",
					zap.Error(err), zap.Duration("delay", reconnectDelay))
				go c.reconnect(conn, reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay

		start := time.Now()
		c.handleMessage(message)
		observability.RecordWSMessage(time.Since(start).Seconds())
	}
}

// reconnect replaces a broken connection and resubscribes.
func (c *WSClientImpl) reconnect(broken *websocket.Conn, delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn == broken && c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Will retry on next read error
		c.logger.Warn("reconnect failed", zap.Error(err))
		return
	}

	c.resubscribeAll()
}

// resubscribeAll re-registers every signature still awaiting a notification.
// Subscription ids are per connection, so each watch is moved to its new id.
func (c *WSClientImpl) resubscribeAll() {
	c.subsMu.Lock()
	watches := make(map[int64]*signatureWatch, len(c.subs))
	for id, w := range c.subs {
		watches[id] = w
	}
	c.subsMu.Unlock()

	for oldSubID, w := range watches {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newSubID, err := c.subscribe(ctx, w)
		cancel()

		if err != nil {
			// Keep old mapping, retried on the next reconnect
			c.logger.Warn("resubscribe failed", zap.String("signature", w.signature), zap.Error(err))
			continue
		}

		c.subsMu.Lock()
		if oldSubID != newSubID && c.subs[oldSubID] == w {
			delete(c.subs, oldSubID)
		}
		c.subsMu.Unlock()
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var envelope struct {
		ID     uint64                `json:"id"`
		Method string                `json:"method"`
		Result *int64                `json:"result"`
		Params *wsNotificationParams `json:"params"`
		Error  *RPCError             `json:"error"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		c.logger.Debug("malformed message", zap.Error(err))
		return
	}

	switch {
	case envelope.Error != nil:
		// The pending subscribe times out on its own.
		c.logger.Warn("error response",
			zap.Uint64("id", envelope.ID),
			zap.Int("code", envelope.Error.Code),
			zap.String("message", envelope.Error.Message))
	case envelope.Method == "signatureNotification" && envelope.Params != nil:
		c.handleSignatureNotification(envelope.Params)
	case envelope.ID != 0 && envelope.Result != nil:
		c.handleSubscribeResponse(envelope.ID, *envelope.Result)
	}
}

// handleSubscribeResponse handles subscription confirmation.
func (c *WSClientImpl) handleSubscribeResponse(reqID uint64, subID int64) {
	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[reqID]
	if ok {
		delete(c.pendingSubs, reqID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		return
	}

	c.subsMu.Lock()
	c.subs[subID] = p.watch
	c.subsMu.Unlock()

	select {
	case p.confirm <- subID:
	default:
	}
}

// handleSignatureNotification delivers the result and retires the watch.
// The server cancels signature subscriptions after the first notification.
func (c *WSClientImpl) handleSignatureNotification(params *wsNotificationParams) {
	var value wsSignatureValue
	if len(params.Result.Value) > 0 {
		if err := json.Unmarshal(params.Result.Value, &value); err != nil {
			c.logger.Debug("malformed notification", zap.Error(err))
			return
		}
	}
	// receivedSignature notifications only ack receipt
	if value.isReceived {
		return
	}

	c.subsMu.Lock()
	w, ok := c.subs[params.Subscription]
	if ok {
		delete(c.subs, params.Subscription)
	}
	c.subsMu.Unlock()
	if !ok {
		return
	}

	n := SignatureNotification{Signature: w.signature, Err: value.Err}
	if params.Result.Context != nil {
		n.Slot = params.Result.Context.Slot
	}
	w.finish(&n)
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Reader handles reconnect
					c.logger.Debug("ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext      `json:"context"`
	Value   json.RawMessage `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

// wsSignatureValue is either {"err": ...} or the string "receivedSignature".
type wsSignatureValue struct {
	Err        interface{}
	isReceived bool
}

func (v *wsSignatureValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v.isReceived = s == "receivedSignature"
		return nil
	}
	var obj struct {
		Err interface{} `json:"err"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	v.Err = obj.Err
	return nil
}
