package finnhub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/tradebook/internal/domain"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second
)

// State is the stream supervisor's lifecycle state
type State string

const (
	StateDisconnected       State = "disconnected"
	StateConnecting         State = "connecting"
	StateConnected          State = "connected"
	StateReconnectScheduled State = "reconnect_scheduled"
)

// Conn is the subset of the websocket connection the supervisor drives.
// Satisfied by *websocket.Conn; tests substitute a fake.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc opens the stream transport. Injected so the supervisor is an
// explicit instance constructed with a transport factory rather than a
// module-level singleton; tests pass a fake.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// TickSink receives applied price ticks; satisfied by pricing.Cache
type TickSink interface {
	Set(tick domain.PriceTick) bool
}

// createHTTP1Client creates an HTTP client that forces HTTP/1.1.
// Cloudflare negotiates HTTP/2 via TLS ALPN, but WebSocket requires
// HTTP/1.1 for the upgrade handshake.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// Dial is the production DialFunc backed by nhooyr.io/websocket
func Dial(ctx context.Context, url string) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		HTTPClient: createHTTP1Client(),
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// StreamSupervisor manages the lifecycle of the streaming quote
// subscription: connect, subscribe, resubscribe, reconnect-with-delay and
// clean teardown. Transport failures stay contained here; they only affect
// price cache freshness, never trade execution.
type StreamSupervisor struct {
	url            string
	dial           DialFunc
	sink           TickSink
	reconnectDelay time.Duration
	log            zerolog.Logger

	mu         sync.Mutex
	conn       Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	state      State
	// At most one reconnect timer is ever pending
	reconnectPending bool
	stopped          bool
	stopChan         chan struct{}
	// Desired symbol set; survives reconnects
	desired map[string]struct{}
}

// NewStreamSupervisor creates a supervisor for the given stream URL
func NewStreamSupervisor(url string, dial DialFunc, sink TickSink, reconnectDelay time.Duration, log zerolog.Logger) *StreamSupervisor {
	return &StreamSupervisor{
		url:            url,
		dial:           dial,
		sink:           sink,
		reconnectDelay: reconnectDelay,
		log:            log.With().Str("component", "stream_supervisor").Logger(),
		state:          StateDisconnected,
		stopChan:       make(chan struct{}),
		desired:        make(map[string]struct{}),
	}
}

// State returns the current lifecycle state
func (s *StreamSupervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the stream is currently connected
func (s *StreamSupervisor) IsConnected() bool {
	return s.State() == StateConnected
}

// Start connects and subscribes to the given initial symbol set. A failed
// initial connection is not fatal: a reconnect is scheduled and Start
// returns the error for logging only.
func (s *StreamSupervisor) Start(symbols []string) error {
	s.mu.Lock()
	for _, sym := range symbols {
		s.desired[sym] = struct{}{}
	}
	s.mu.Unlock()

	s.log.Info().Int("symbols", len(symbols)).Msg("Starting quote stream supervisor")

	if err := s.connect(); err != nil {
		s.log.Warn().Err(err).Msg("Initial stream connection failed, scheduling reconnect")
		s.scheduleReconnect()
		return err
	}

	return nil
}

// Stop unsubscribes every currently-subscribed symbol, closes with a
// normal-closure code and schedules no reconnect. Idempotent.
func (s *StreamSupervisor) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	conn := s.conn
	connCtx := s.connCtx
	desired := make([]string, 0, len(s.desired))
	for sym := range s.desired {
		desired = append(desired, sym)
	}
	s.mu.Unlock()

	s.log.Info().Msg("Stopping quote stream supervisor")
	close(s.stopChan)

	if conn != nil && connCtx != nil {
		for _, sym := range desired {
			if err := s.sendControl(connCtx, conn, "unsubscribe", sym); err != nil {
				s.log.Warn().Err(err).Str("symbol", sym).Msg("Unsubscribe on shutdown failed")
			}
		}
	}

	return s.disconnect(websocket.StatusNormalClosure)
}

// Subscribe adds symbols to the desired set and, while connected, sends
// incremental subscribe messages without tearing down the transport.
func (s *StreamSupervisor) Subscribe(symbols ...string) {
	s.mu.Lock()
	added := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if _, exists := s.desired[sym]; !exists {
			s.desired[sym] = struct{}{}
			added = append(added, sym)
		}
	}
	conn := s.conn
	connCtx := s.connCtx
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return
	}
	for _, sym := range added {
		if err := s.sendControl(connCtx, conn, "subscribe", sym); err != nil {
			s.log.Warn().Err(err).Str("symbol", sym).Msg("Incremental subscribe failed")
		}
	}
}

// Unsubscribe removes symbols from the desired set and, while connected,
// sends incremental unsubscribe messages.
func (s *StreamSupervisor) Unsubscribe(symbols ...string) {
	s.mu.Lock()
	removed := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if _, exists := s.desired[sym]; exists {
			delete(s.desired, sym)
			removed = append(removed, sym)
		}
	}
	conn := s.conn
	connCtx := s.connCtx
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return
	}
	for _, sym := range removed {
		if err := s.sendControl(connCtx, conn, "unsubscribe", sym); err != nil {
			s.log.Warn().Err(err).Str("symbol", sym).Msg("Incremental unsubscribe failed")
		}
	}
}

// connect opens the transport, subscribes the full desired set and starts
// the read loop.
func (s *StreamSupervisor) connect() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("supervisor is stopped")
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.log.Info().Str("url", s.url).Msg("Connecting to quote stream")

	conn, err := s.dial(context.Background(), s.url)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("failed to dial quote stream: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.conn = conn
	s.connCtx = connCtx
	s.cancelFunc = cancel
	s.state = StateConnected
	desired := make([]string, 0, len(s.desired))
	for sym := range s.desired {
		desired = append(desired, sym)
	}
	s.mu.Unlock()

	for _, sym := range desired {
		if err := s.sendControl(connCtx, conn, "subscribe", sym); err != nil {
			cancel()
			_ = conn.Close(websocket.StatusNormalClosure, "subscribe failed")
			s.mu.Lock()
			s.conn = nil
			s.connCtx = nil
			s.cancelFunc = nil
			s.state = StateDisconnected
			s.mu.Unlock()
			return fmt.Errorf("failed to subscribe %s: %w", sym, err)
		}
	}

	s.log.Info().Int("symbols", len(desired)).Msg("Quote stream connected and subscribed")

	go s.readMessages(connCtx, conn)
	return nil
}

// disconnect closes the transport with the given status code
func (s *StreamSupervisor) disconnect(code websocket.StatusCode) error {
	s.mu.Lock()
	conn := s.conn
	cancel := s.cancelFunc
	s.conn = nil
	s.connCtx = nil
	s.cancelFunc = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}

	if err := conn.Close(code, ""); err != nil {
		return fmt.Errorf("error closing quote stream: %w", err)
	}
	return nil
}

// sendControl writes one subscribe/unsubscribe message
func (s *StreamSupervisor) sendControl(ctx context.Context, conn Conn, msgType, symbol string) error {
	data, err := json.Marshal(controlMessage{Type: msgType, Symbol: symbol})
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send %s for %s: %w", msgType, symbol, err)
	}
	return nil
}

// readMessages continuously reads stream frames until error or shutdown
func (s *StreamSupervisor) readMessages(ctx context.Context, conn Conn) {
	defer func() {
		s.mu.Lock()
		stopped := s.stopped
		// Release the dead transport; on shutdown the clean close
		// belongs to Stop.
		current := !stopped && s.conn == conn
		var cancel context.CancelFunc
		if current {
			s.conn = nil
			s.connCtx = nil
			cancel = s.cancelFunc
			s.cancelFunc = nil
			s.state = StateDisconnected
		}
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if current {
			_ = conn.Close(websocket.StatusInternalError, "read loop terminated")
		}

		s.log.Info().Msg("Stream read loop stopped")
		if !stopped {
			s.scheduleReconnect()
		}
	}()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				s.log.Info().Int("status", int(closeStatus)).Msg("Quote stream closed normally")
			} else if ctx.Err() != nil {
				s.log.Debug().Msg("Stream read cancelled by context")
			} else {
				s.log.Error().Err(err).Msg("Unexpected quote stream read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := s.handleMessage(message); err != nil {
			// Keep reading despite parse errors
			s.log.Error().Err(err).Str("message", string(message)).Msg("Failed to handle stream message")
		}
	}
}

// handleMessage applies one inbound frame to the price cache
func (s *StreamSupervisor) handleMessage(message []byte) error {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return fmt.Errorf("failed to parse stream message: %w", err)
	}

	if msg.Type != "trade" {
		return nil
	}

	// Batched shape: {"type":"trade","data":[{"s":...,"p":...,"t":...}]}
	if len(msg.Data) > 0 {
		for _, trade := range msg.Data {
			if trade.Symbol == "" {
				continue
			}
			s.sink.Set(domain.PriceTick{
				Symbol:     trade.Symbol,
				Price:      trade.Price,
				ObservedAt: observedAtFromMillis(trade.Timestamp),
			})
		}
		return nil
	}

	if msg.Symbol == "" {
		return fmt.Errorf("trade frame missing symbol")
	}

	s.sink.Set(domain.PriceTick{
		Symbol:     msg.Symbol,
		Price:      msg.Price,
		ObservedAt: observedAtFromMillis(msg.Timestamp),
	})
	return nil
}

// observedAtFromMillis converts a millisecond trade timestamp, falling back
// to the local clock when the frame carries none.
func observedAtFromMillis(millis int64) time.Time {
	if millis > 0 {
		return time.UnixMilli(millis).UTC()
	}
	return time.Now().UTC()
}

// scheduleReconnect arms the single reconnect timer. Repeated failures
// while a timer is pending do not stack additional timers.
func (s *StreamSupervisor) scheduleReconnect() {
	s.mu.Lock()
	if s.reconnectPending || s.stopped {
		s.mu.Unlock()
		return
	}
	s.reconnectPending = true
	s.state = StateReconnectScheduled
	s.mu.Unlock()

	s.log.Info().Dur("delay", s.reconnectDelay).Msg("Reconnect scheduled")

	go func() {
		select {
		case <-time.After(s.reconnectDelay):
		case <-s.stopChan:
			s.mu.Lock()
			s.reconnectPending = false
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		s.reconnectPending = false
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}

		if err := s.connect(); err != nil {
			s.log.Error().Err(err).Msg("Reconnection failed")
			s.scheduleReconnect()
		} else {
			s.log.Info().Msg("Reconnected to quote stream")
		}
	}()
}
