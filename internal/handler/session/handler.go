package session

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/maxai/client/internal/middleware"
	sessionModel "github.com/zhouzirui/maxai/client/internal/model/session"
	sessionService "github.com/zhouzirui/maxai/client/internal/service/session"
	"github.com/zhouzirui/maxai/client/pkg/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// View 浏览器可见的会话视图，凭证不会离开服务端
type View struct {
	State sessionModel.State `json:"state"`
	Email string             `json:"email,omitempty"`
}

// NewView 将会话转换为浏览器视图
func NewView(sess sessionModel.Session) View {
	return View{State: sess.State, Email: sess.UserEmail}
}

// Handler 会话状态及其变更推送的HTTP处理器
type Handler struct {
	sessions *sessionService.Manager
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// New 创建会话处理器
func New(sessions *sessionService.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.Named("session-events"),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.handleCurrent)
	r.Get("/session/events", h.handleEvents)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current(r.Context(), middleware.SessionID(r.Context()))
	utils.RespondJSON(w, http.StatusOK, NewView(sess))
}

// handleEvents 连接建立时以及每次状态变化后推送会话视图
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := middleware.SessionID(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.sessions.Store().Subscribe(id)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, h.sessions.Current(r.Context(), id)); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case sess, ok := <-updates:
			if !ok {
				return
			}
			if err := h.write(conn, sess); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, sess sessionModel.Session) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(NewView(sess)); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}
