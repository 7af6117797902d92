package host

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/pulse-go/pulse/pkg/protocol"
	"github.com/pulse-go/pulse/pkg/pulse"
	"github.com/pulse-go/pulse/pkg/store"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithStore enables session snapshot persistence.
func WithStore(st *store.Store) ServerOption {
	return func(s *Server) { s.store = st }
}

// WithMiddleware appends event middleware; the first registered runs
// outermost.
func WithMiddleware(mw ...Middleware) ServerOption {
	return func(s *Server) { s.middlewares = append(s.middlewares, mw...) }
}

// WithSessionConfig sets per-session timeouts and limits.
func WithSessionConfig(cfg *SessionConfig) ServerOption {
	return func(s *Server) { s.sessionCfg = cfg.Clone() }
}

// WithEngineConfig sets the engine configuration used for each session.
func WithEngineConfig(cfg pulse.Config) ServerOption {
	return func(s *Server) { s.engineCfg = cfg }
}

// Server upgrades WebSocket connections into sessions running app.
type Server struct {
	app         App
	logger      *slog.Logger
	store       *store.Store
	middlewares []Middleware
	sessionCfg  *SessionConfig
	engineCfg   pulse.Config

	upgrader websocket.Upgrader
	router   chi.Router

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewServer creates a server for app.
func NewServer(app App, opts ...ServerOption) *Server {
	s := &Server{
		app:        app,
		logger:     slog.Default(),
		sessionCfg: DefaultSessionConfig(),
		engineCfg:  pulse.DefaultConfig(),
		sessions:   make(map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", s.handleHealth)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the chi router so callers can mount extra routes, such as
// a metrics endpoint.
func (s *Server) Router() chi.Router {
	return s.router
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Session returns a live session by id.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Shutdown closes every live session.
func (s *Server) Shutdown() {
	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return
	}

	hello, err := s.readHello(conn)
	if err != nil {
		s.logger.Warn("handshake failed", "error", err)
		s.rejectHandshake(conn, err)
		conn.Close()
		return
	}

	id, resumed := s.sessionIdentity(hello)
	sess := newSession(s, conn, id, resumed)
	sess.sendWelcome()

	if err := sess.mount(); err != nil {
		s.logger.Error("mount failed", "session", id, "error", err)
		s.rejectHandshake(conn, err)
		conn.Close()
		return
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	sess.Start()
	s.logger.Info("session started", "session", id, "resumed", resumed)
}

// readHello reads and validates the client's first message.
func (s *Server) readHello(conn *websocket.Conn) (*protocol.ClientHello, error) {
	conn.SetReadDeadline(time.Now().Add(s.sessionCfg.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	m, err := protocol.DecodeMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	hello, err := m.Hello()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	if hello.Version != protocol.ProtocolVersion {
		return nil, fmt.Errorf("%w: client %d, server %d",
			ErrVersionMismatch, hello.Version, protocol.ProtocolVersion)
	}
	return hello, nil
}

// sessionIdentity picks the session id, resuming when the client names a
// session we have a snapshot for.
func (s *Server) sessionIdentity(hello *protocol.ClientHello) (string, bool) {
	if hello.SessionID != "" && s.store != nil {
		if ok, err := s.store.HasSession(hello.SessionID); err == nil && ok {
			return hello.SessionID, true
		}
	}
	return ulid.Make().String(), false
}

func (s *Server) rejectHandshake(conn *websocket.Conn, cause error) {
	code := protocol.CodeBadMessage
	if errors.Is(cause, ErrVersionMismatch) {
		code = protocol.CodeVersion
	}
	data, err := protocol.EncodeError(&protocol.ErrorMessage{
		Code:    code,
		Message: cause.Error(),
		Fatal:   true,
	})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(s.sessionCfg.WriteTimeout))
	conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) removeSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.id)
}
