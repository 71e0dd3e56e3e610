package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-chess-web/pkg/chessdto"
)

type StreamState string

const (
	StreamDisconnected StreamState = "disconnected"
	StreamConnecting   StreamState = "connecting"
	StreamConnected    StreamState = "connected"
	StreamReconnecting StreamState = "reconnecting"
	StreamFailed       StreamState = "failed"
)

type EventCallback func(ev *chessdto.GameEvent)

type StateCallback func(state StreamState)

// EventStream follows one game's event feed and reconnects when the socket
// drops. Every (re)connect starts with a full state frame from the server.
type EventStream struct {
	url string

	connM sync.Mutex
	conn  *websocket.Conn

	stateM sync.RWMutex
	state  StreamState

	cbM      sync.RWMutex
	eventCbs []EventCallback
	stateCbs []StateCallback

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration
	headers              HeaderProvider

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// EventsURL turns an http(s) base URL into the ws(s) events URL of a game.
func EventsURL(baseURL, gameID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path += "/api/games/" + url.PathEscape(gameID) + "/events"
	return u.String(), nil
}

func NewEventStream(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration) *EventStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventStream{
		url:                  wsURL,
		state:                StreamDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
}

func (s *EventStream) SetHeaderProvider(h HeaderProvider) { s.headers = h }

func (s *EventStream) OnEvent(cb EventCallback) {
	s.cbM.Lock()
	s.eventCbs = append(s.eventCbs, cb)
	s.cbM.Unlock()
}

func (s *EventStream) OnStateChange(cb StateCallback) {
	s.cbM.Lock()
	s.stateCbs = append(s.stateCbs, cb)
	s.cbM.Unlock()
}

func (s *EventStream) State() StreamState {
	s.stateM.RLock()
	defer s.stateM.RUnlock()
	return s.state
}

func (s *EventStream) Connect(ctx context.Context) error {
	switch s.State() {
	case StreamConnected, StreamConnecting:
		return nil
	}
	s.setState(StreamConnecting)

	if err := s.dial(ctx); err != nil {
		s.setState(StreamFailed)
		s.scheduleReconnect()
		return err
	}
	return nil
}

func (s *EventStream) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      s.buildHeaders(),
	})
	if err != nil {
		return err
	}

	s.connM.Lock()
	s.conn = conn
	s.connM.Unlock()
	s.setState(StreamConnected)

	s.wg.Add(2)
	go s.listen(conn)
	go s.pingLoop(conn)
	return nil
}

func (s *EventStream) listen(conn *websocket.Conn) {
	defer s.wg.Done()
	for {
		var ev chessdto.GameEvent
		if err := wsjson.Read(s.rootCtx, conn, &ev); err != nil {
			if s.isStopping() {
				return
			}
			s.setState(StreamDisconnected)
			s.dropConn(conn, websocket.StatusGoingAway, "reconnect")
			s.scheduleReconnect()
			return
		}

		s.cbM.RLock()
		callbacks := append([]EventCallback(nil), s.eventCbs...)
		s.cbM.RUnlock()
		for _, cb := range callbacks {
			cb(&ev)
		}
	}
}

func (s *EventStream) pingLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.rootCtx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(s.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				// listen sees the closed socket and reconnects.
				s.dropConn(conn, websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (s *EventStream) scheduleReconnect() {
	if s.maxReconnectAttempts <= 0 || s.isStopping() {
		return
	}
	s.setState(StreamReconnecting)

	go func() {
		for attempt := 1; attempt <= s.maxReconnectAttempts; attempt++ {
			select {
			case <-s.stopCh:
				return
			case <-time.After(s.reconnectDelay * time.Duration(attempt)):
			}
			if err := s.dial(s.rootCtx); err == nil {
				return
			}
		}
		s.setState(StreamFailed)
	}()
}

func (s *EventStream) setState(state StreamState) {
	s.stateM.Lock()
	s.state = state
	s.stateM.Unlock()

	s.cbM.RLock()
	callbacks := append([]StateCallback(nil), s.stateCbs...)
	s.cbM.RUnlock()
	for _, cb := range callbacks {
		cb(state)
	}
}

func (s *EventStream) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.connM.Lock()
	conn := s.conn
	s.conn = nil
	s.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	s.rootCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.setState(StreamDisconnected)
		return nil
	}
}

func (s *EventStream) dropConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	s.connM.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connM.Unlock()
	_ = conn.Close(code, reason)
}

func (s *EventStream) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *EventStream) buildHeaders() http.Header {
	hdr := http.Header{}
	if s.headers == nil {
		return hdr
	}
	for k, v := range s.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
