// Package devserver is an in-process reference implementation of the REST
// and socket contract the sync client consumes. It backs integration tests
// and local development without a deployed backend; all state is in memory.
package devserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/qrconnect/qrconnect-client/internal/core/domain"
)

const tokenTTL = 24 * time.Hour

type account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
}

type storedConnection struct {
	User1ID     string
	User2ID     string
	ConnectedAt time.Time
}

// Server holds the in-memory state and the echo instance serving it.
type Server struct {
	hub       *Hub
	jwtSecret string
	log       zerolog.Logger

	mu          sync.Mutex
	accounts    map[string]*account // keyed by id
	byEmail     map[string]*account
	connections []storedConnection
	messages    []domain.Message
}

func New(jwtSecret string, log zerolog.Logger) *Server {
	return &Server{
		hub:       NewHub(),
		jwtSecret: jwtSecret,
		log:       log,
		accounts:  make(map[string]*account),
		byEmail:   make(map[string]*account),
	}
}

// Handler builds the echo instance with every route of the consumed
// contract registered under /api, plus the /ws socket endpoint.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())

	api := e.Group("/api")
	api.POST("/users/login", s.login)
	api.POST("/users/register", s.register)

	authed := api.Group("", s.auth)
	authed.GET("/users/me", s.currentUser)
	authed.GET("/connections/user/:id", s.listConnections)
	authed.POST("/connections", s.createConnection)
	authed.POST("/messages", s.createMessage)
	authed.GET("/messages/connection/:id", s.listMessages)

	e.GET("/ws", s.serveWS)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return e
}

// SeedUser registers a fixture account and returns its id.
func (s *Server) SeedUser(name, email, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	acc := &account{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	s.mu.Lock()
	s.accounts[acc.ID] = acc
	s.byEmail[acc.Email] = acc
	s.mu.Unlock()
	return acc.ID
}

// SeedDemo loads the demo fixtures used for local development: two
// connected users with a short exchanged history.
func (s *Server) SeedDemo() {
	johnID := s.SeedUser("John Doe", "john@example.com", "password")
	janeID := s.SeedUser("Jane Smith", "jane@example.com", "password")

	now := time.Now().UTC()
	s.mu.Lock()
	s.connections = append(s.connections, storedConnection{User1ID: johnID, User2ID: janeID, ConnectedAt: now.Add(-time.Hour)})
	s.messages = append(s.messages,
		domain.Message{ID: uuid.NewString(), ConnectionID: janeID, SenderID: johnID, Content: "Hey, nice to meet you!", Timestamp: now.Add(-50 * time.Minute)},
		domain.Message{ID: uuid.NewString(), ConnectionID: johnID, SenderID: janeID, Content: "Nice to meet you too!", Timestamp: now.Add(-49 * time.Minute)},
	)
	s.mu.Unlock()
}

// ── Auth ─────────────────────────────────────────────────────────────────────

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string          `json:"token"`
	User  domain.Identity `json:"user"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	s.mu.Lock()
	acc := s.byEmail[req.Email]
	s.mu.Unlock()

	if acc == nil || bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)) != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}

	token, err := s.issueToken(acc)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "token generation failed"})
	}

	return c.JSON(http.StatusOK, loginResponse{Token: token, User: identityOf(acc)})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name, email and password are required"})
	}

	s.mu.Lock()
	if _, exists := s.byEmail[req.Email]; exists {
		s.mu.Unlock()
		return c.JSON(http.StatusConflict, map[string]string{"error": "user already exists"})
	}
	s.mu.Unlock()

	id := s.SeedUser(req.Name, req.Email, req.Password)

	s.mu.Lock()
	acc := s.accounts[id]
	s.mu.Unlock()
	return c.JSON(http.StatusCreated, identityOf(acc))
}

func (s *Server) issueToken(acc *account) (string, error) {
	claims := jwt.MapClaims{
		"sub":   acc.ID,
		"name":  acc.Name,
		"email": acc.Email,
		"exp":   time.Now().Add(tokenTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.jwtSecret))
}

// auth validates the bearer token and injects the caller's user id.
func (s *Server) auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if header == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing authorization header"})
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid authorization header"})
		}

		claims := jwt.MapClaims{}
		tkn, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(s.jwtSecret), nil
		})
		if err != nil || !tkn.Valid {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		}

		sub, _ := claims["sub"].(string)
		c.Set("user_id", sub)
		return next(c)
	}
}

func (s *Server) currentUser(c echo.Context) error {
	s.mu.Lock()
	acc := s.accounts[c.Get("user_id").(string)]
	s.mu.Unlock()
	if acc == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}
	return c.JSON(http.StatusOK, identityOf(acc))
}

// ── Connections ──────────────────────────────────────────────────────────────

type createConnectionRequest struct {
	User1ID string `json:"user1Id"`
	User2ID string `json:"user2Id"`
}

func (s *Server) createConnection(c echo.Context) error {
	var req createConnectionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accounts[req.User1ID] == nil || s.accounts[req.User2ID] == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	}

	// Idempotent: a repeat pairing returns the existing edge.
	for _, conn := range s.connections {
		if samePair(conn, req.User1ID, req.User2ID) {
			return c.JSON(http.StatusOK, s.connectionView(conn, req.User1ID))
		}
	}

	conn := storedConnection{User1ID: req.User1ID, User2ID: req.User2ID, ConnectedAt: time.Now().UTC()}
	s.connections = append(s.connections, conn)
	return c.JSON(http.StatusCreated, s.connectionView(conn, req.User1ID))
}

func (s *Server) listConnections(c echo.Context) error {
	userID := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	views := []domain.Connection{}
	for _, conn := range s.connections {
		if conn.User1ID == userID || conn.User2ID == userID {
			views = append(views, s.connectionView(conn, userID))
		}
	}
	return c.JSON(http.StatusOK, views)
}

// connectionView renders an edge from one endpoint's perspective: the peer
// fields belong to the other user. Callers hold s.mu.
func (s *Server) connectionView(conn storedConnection, viewerID string) domain.Connection {
	peerID := conn.User1ID
	if peerID == viewerID {
		peerID = conn.User2ID
	}
	peer := s.accounts[peerID]
	return domain.Connection{
		PeerID:      peer.ID,
		PeerName:    peer.Name,
		PeerEmail:   peer.Email,
		ConnectedAt: conn.ConnectedAt,
	}
}

func samePair(conn storedConnection, a, b string) bool {
	return (conn.User1ID == a && conn.User2ID == b) || (conn.User1ID == b && conn.User2ID == a)
}

// ── Messages ─────────────────────────────────────────────────────────────────

type createMessageRequest struct {
	ConnectionID string `json:"connectionId"`
	SenderID     string `json:"senderId"`
	Content      string `json:"content"`
}

func (s *Server) createMessage(c echo.Context) error {
	var req createMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	msg := domain.Message{
		ID:           uuid.NewString(),
		ConnectionID: req.ConnectionID,
		SenderID:     req.SenderID,
		Content:      req.Content,
		Timestamp:    time.Now().UTC(),
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) listMessages(c echo.Context) error {
	connectionID := c.Param("id")
	viewerID := c.Get("user_id").(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	// A "connection id" is the peer's user id from each endpoint's point of
	// view, so the thread between two users spans both directions.
	view := []domain.Message{}
	for _, msg := range s.messages {
		inThread := (msg.ConnectionID == connectionID && msg.SenderID == viewerID) ||
			(msg.ConnectionID == viewerID && msg.SenderID == connectionID)
		if inThread {
			view = append(view, msg)
		}
	}
	sort.SliceStable(view, func(i, j int) bool { return view[i].Timestamp.Before(view[j].Timestamp) })
	return c.JSON(http.StatusOK, view)
}

// ── Socket ───────────────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Development fixture; a real deployment restricts origins.
		return true
	},
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *Server) serveWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	client := &wsClient{conn: conn}
	defer func() {
		s.hub.Drop(client)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}

		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		switch f.Event {
		case "join":
			var userID string
			if json.Unmarshal(f.Data, &userID) == nil && userID != "" {
				s.hub.Join(userID, client)
			}
		case "leave":
			var userID string
			if json.Unmarshal(f.Data, &userID) == nil && userID != "" {
				s.hub.Leave(userID, client)
			}
		case "sendMessage":
			var out domain.OutboundMessage
			if json.Unmarshal(f.Data, &out) != nil {
				continue
			}
			// Push to the recipient's room and echo to the sender's own
			// room, the way the live server fans out.
			s.hub.Broadcast(out.RecipientID, "newMessage", out.Message)
			if out.Message.SenderID != "" && out.Message.SenderID != out.RecipientID {
				s.hub.Broadcast(out.Message.SenderID, "newMessage", out.Message)
			}
		}
	}
}

func identityOf(acc *account) domain.Identity {
	return domain.Identity{ID: acc.ID, Name: acc.Name, Email: acc.Email}
}
