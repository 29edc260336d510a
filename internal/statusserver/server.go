// Package statusserver exposes a read-only HTTP and WebSocket surface over
// a running sweep: progress snapshots and prometheus metrics. It never
// mutates the driver and routes no orders anywhere.
package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/quillhaven/breakout-engine/internal/batch"
)

// Server serves sweep progress to dashboards and scrapers.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	addr       string
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    map[string]*client
	driver     *batch.Driver
}

// client represents a WebSocket subscriber.
type client struct {
	id   string
	conn *websocket.Conn
}

// NewServer creates a status server over one sweep driver.
func NewServer(logger *zap.Logger, addr string, driver *batch.Driver) *Server {
	s := &Server{
		logger:  logger,
		addr:    addr,
		router:  mux.NewRouter(),
		clients: make(map[string]*client),
		driver:  driver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local dashboards only; nothing here mutates state.
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/progress", s.handleProgress).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(
		s.driver.Metrics().Registry(),
		promhttp.HandlerOpts{},
	)).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start serves until Stop is called. It blocks; run it on its own
// goroutine.
func (s *Server) Start() error {
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Info("Status server listening", zap.String("addr", s.addr))

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.driver.Progress())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
	}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.logger.Info("WebSocket client connected", zap.String("id", c.id))

	go s.readPump(c)
	go s.writePump(c)
}

// readPump drains incoming frames; the protocol is push-only, so the only
// thing to handle is the close.
func (s *Server) readPump(c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		c.conn.Close()
		s.logger.Info("WebSocket client disconnected", zap.String("id", c.id))
	}()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump pushes a progress snapshot every second plus keepalive pings.
func (s *Server) writePump(c *client) {
	progress := time.NewTicker(time.Second)
	ping := time.NewTicker(30 * time.Second)
	defer func() {
		progress.Stop()
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-progress.C:
			snapshot, err := json.Marshal(s.driver.Progress())
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
