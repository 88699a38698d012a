package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/identity"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/models"
	apperrors "github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/errors"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/utils"
	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
)

var (
	errAuthRequired = errors.New("authentication required")
	errInvalidToken = errors.New("invalid token")
)

// Authenticator resolves a connection's credential.
type Authenticator interface {
	Resolve(ctx context.Context, credential string, as identity.ActingAs) (*identity.Principal, error)
}

// Messenger is the part of the messaging service sockets use.
type Messenger interface {
	Conversation(ctx context.Context, actor *identity.Principal, id string) (*models.Conversation, error)
	SendMessage(ctx context.Context, sender *identity.Principal, conversationID, body string) (*models.Message, error)
}

type ServerOptions struct {
	// AllowedOrigins limits browser origins; empty or "*" allows any.
	AllowedOrigins []string
	// RequestTimeout bounds authentication and each event's service call.
	RequestTimeout time.Duration
	// TypingInterval is the minimum gap between typing events per member
	// and conversation.
	TypingInterval time.Duration
}

// session is stored as the connection context once authenticated.
type session struct {
	principal *identity.Principal
}

type userJoined struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type userTyping struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	ExpiresAt      int64  `json:"expiresAt"`
}

type errorEvent struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// SendAck answers a sendMessage event.
type SendAck struct {
	Success bool            `json:"success"`
	Message *models.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Server is the socket.io endpoint. Connection lifecycle:
// connect (authenticate, join member room) -> joinRoom/sendMessage/typing
// -> disconnect (leave rooms, forget connection).
type Server struct {
	io        *socketio.Server
	auth      Authenticator
	messenger Messenger
	registry  *Registry
	opts      ServerOptions
	typing    *throttle

	// forEach visits the local connections of a room.
	forEach func(room string, f func(socketio.Conn))
}

func NewServer(auth Authenticator, messenger Messenger, registry *Registry, opts ServerOptions) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.TypingInterval <= 0 {
		opts.TypingInterval = 3 * time.Second
	}

	s := &Server{
		auth:      auth,
		messenger: messenger,
		registry:  registry,
		opts:      opts,
		typing:    newThrottle(opts.TypingInterval),
	}

	checkOrigin := s.checkOrigin
	s.io = socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&websocket.Transport{CheckOrigin: checkOrigin},
			&polling.Transport{CheckOrigin: checkOrigin},
		},
	})
	s.forEach = func(room string, f func(socketio.Conn)) {
		s.io.ForEach(namespace, room, func(c socketio.Conn) { f(c) })
	}

	s.io.OnConnect(namespace, s.onConnect)
	s.io.OnEvent(namespace, "joinRoom", s.onJoinRoom)
	s.io.OnEvent(namespace, "sendMessage", s.onSendMessage)
	s.io.OnEvent(namespace, "typing", s.onTyping)
	s.io.OnDisconnect(namespace, s.onDisconnect)
	s.io.OnError(namespace, func(conn socketio.Conn, err error) {
		logger.Warn().Err(err).Msg("Socket error")
	})
	return s
}

// Serve runs the socket.io event loop until Close.
func (s *Server) Serve() {
	go func() {
		if err := s.io.Serve(); err != nil {
			logger.Error().Err(err).Msg("Socket server stopped")
		}
	}()
}

func (s *Server) Close() error {
	return s.io.Close()
}

// BroadcastToRoom delivers to the sockets connected to this instance.
func (s *Server) BroadcastToRoom(nsp, room, event string, args ...interface{}) bool {
	return s.io.BroadcastToRoom(nsp, room, event, args...)
}

// Handler mounts the server on a gin route.
func (s *Server) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.io.ServeHTTP(c.Writer, c.Request)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// credential reads the token from the handshake: query token, then
// auth_token, then the Authorization header.
func credential(conn socketio.Conn) string {
	u := conn.URL()
	q := u.Query()
	if token := q.Get("token"); token != "" {
		return token
	}
	if token := q.Get("auth_token"); token != "" {
		return token
	}
	if token, err := utils.BearerToken(conn.RemoteHeader().Get("Authorization")); err == nil {
		return token
	}
	return ""
}

func (s *Server) onConnect(conn socketio.Conn) error {
	conn.SetContext(nil)

	token := credential(conn)
	if token == "" {
		logger.Info().Str("conn_id", conn.ID()).Msg("Socket rejected: no token")
		return errAuthRequired
	}

	u := conn.URL()
	as, err := identity.ParseActingAs(u.Query().Get("as"))
	if err != nil {
		return errInvalidToken
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	principal, err := s.auth.Resolve(ctx, token, as)
	if err != nil {
		logger.Info().Err(err).Str("conn_id", conn.ID()).Msg("Socket rejected: invalid token")
		return errInvalidToken
	}

	conn.SetContext(&session{principal: principal})

	memberID := principal.MessagingID()
	room := MemberRoom(memberID)
	conn.Join(room)
	s.registry.Connect(conn.ID(), memberID)
	s.registry.Join(conn.ID(), room)

	logger.Info().Str("conn_id", conn.ID()).Str("member_id", memberID).Msg("Socket authenticated")
	return nil
}

func principalOf(conn socketio.Conn) (*identity.Principal, bool) {
	sess, ok := conn.Context().(*session)
	if !ok || sess == nil || sess.principal == nil {
		return nil, false
	}
	return sess.principal, true
}

// stringField returns the first non-empty string among keys.
func stringField(data map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func (s *Server) onJoinRoom(conn socketio.Conn, data map[string]interface{}) {
	principal, ok := principalOf(conn)
	if !ok {
		conn.Emit(EventError, errorEvent{Message: apperrors.ErrUnauthorized.Message})
		return
	}
	conversationID := stringField(data, "conversationId", "roomId")
	if conversationID == "" {
		conn.Emit(EventError, errorEvent{Message: "conversationId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	if _, err := s.messenger.Conversation(ctx, principal, conversationID); err != nil {
		conn.Emit(EventError, errorEvent{Message: publicMessage(err), ConversationID: conversationID})
		return
	}

	room := ConversationRoom(conversationID)
	conn.Join(room)
	s.registry.Join(conn.ID(), room)

	joined := userJoined{UserID: principal.MessagingID(), ConversationID: conversationID}
	s.forEach(room, func(peer socketio.Conn) {
		if peer.ID() != conn.ID() {
			peer.Emit(EventUserJoined, joined)
		}
	})
}

func (s *Server) onSendMessage(conn socketio.Conn, data map[string]interface{}) SendAck {
	principal, ok := principalOf(conn)
	if !ok {
		return SendAck{Error: apperrors.ErrUnauthorized.Message}
	}
	conversationID := stringField(data, "conversationId", "roomId")
	if conversationID == "" {
		return SendAck{Error: "conversationId is required"}
	}
	body, _ := data["body"].(string)
	if body == "" {
		body, _ = data["message"].(string)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	msg, err := s.messenger.SendMessage(ctx, principal, conversationID, body)
	if err != nil {
		return SendAck{Error: publicMessage(err)}
	}
	return SendAck{Success: true, Message: msg}
}

func (s *Server) onTyping(conn socketio.Conn, data map[string]interface{}) {
	principal, ok := principalOf(conn)
	if !ok {
		return
	}
	conversationID := stringField(data, "conversationId", "roomId")
	if conversationID == "" {
		return
	}
	room := ConversationRoom(conversationID)
	if !s.registry.InRoom(conn.ID(), room) {
		return
	}
	memberID := principal.MessagingID()
	now := time.Now()
	if !s.typing.Allow(typingKey(memberID, room), now) {
		return
	}

	event := userTyping{
		UserID:         memberID,
		ConversationID: conversationID,
		ExpiresAt:      now.Add(s.opts.TypingInterval + time.Second).Unix(),
	}
	s.forEach(room, func(peer socketio.Conn) {
		if peer.ID() != conn.ID() {
			peer.Emit(EventUserTyping, event)
		}
	})
}

func (s *Server) onDisconnect(conn socketio.Conn, reason string) {
	conn.LeaveAll()
	memberID, rooms := s.registry.Disconnect(conn.ID())
	if memberID != "" && !s.registry.IsOnline(memberID) {
		s.typing.ForgetPrefix(typingKey(memberID, ""))
	}
	logger.Info().
		Str("conn_id", conn.ID()).
		Str("member_id", memberID).
		Int("rooms", len(rooms)).
		Str("reason", reason).
		Msg("Socket disconnected")
}

// publicMessage exposes AppError messages and hides everything else.
func publicMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	logger.Error().Err(err).Msg("Socket event failed")
	return apperrors.ErrInternalServer.Message
}

// throttle lets one event per key through every interval.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{interval: interval, last: make(map[string]time.Time)}
}

func (t *throttle) Allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[key] = now
	return true
}

// ForgetPrefix drops every key starting with prefix.
func (t *throttle) ForgetPrefix(prefix string) {
	t.mu.Lock()
	for key := range t.last {
		if strings.HasPrefix(key, prefix) {
			delete(t.last, key)
		}
	}
	t.mu.Unlock()
}

func typingKey(memberID, room string) string {
	return memberID + "|" + room
}
