package chat

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/maxai/client/internal/middleware"
	chatService "github.com/zhouzirui/maxai/client/internal/service/chat"
	sessionService "github.com/zhouzirui/maxai/client/internal/service/session"
	"github.com/zhouzirui/maxai/client/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	sessions *sessionService.Manager
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, sessions *sessionService.Manager) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		sessions: sessions,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat", h.handlePanel)
	r.Post("/chat", h.handleSend)
}

// handlePanel 返回当前回复区的状态
func (h *Handler) handlePanel(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.Panel(middleware.SessionID(r.Context())))
}

// handleSend 发送一条消息并等待回复
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := middleware.SessionID(r.Context())
	sess := h.sessions.Current(r.Context(), id)

	switch h.chatSvc.Send(r.Context(), id, payload.Message, sess) {
	case chatService.OutcomeSkipped:
		w.WriteHeader(http.StatusNoContent)
	case chatService.OutcomeBusy:
		utils.RespondError(w, http.StatusConflict, "a message is already being sent")
	default:
		utils.RespondJSON(w, http.StatusOK, h.chatSvc.Panel(id))
	}
}
