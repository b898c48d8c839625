package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/maxai/client/internal/middleware"
	chatService "github.com/zhouzirui/maxai/client/internal/service/chat"
	sessionService "github.com/zhouzirui/maxai/client/internal/service/session"
	"github.com/zhouzirui/maxai/client/pkg/utils"
)

// Handler 登录/登出的HTTP处理器
type Handler struct {
	sessions *sessionService.Manager
	chatSvc  *chatService.Service
	logger   *zap.Logger
}

// New 创建登录处理器
func New(sessions *sessionService.Manager, chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		chatSvc:  chatSvc,
		logger:   logger.Named("auth"),
	}
}

// RegisterRoutes 注册登录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/auth/signin", h.handleSignIn)
	r.Get("/auth/callback", h.handleCallback)
	r.Post("/auth/signout", h.handleSignOut)
}

// handleSignIn 将浏览器重定向到 Google 授权页
func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	id := middleware.SessionID(r.Context())

	authURL, err := h.sessions.SignIn(r.Context(), id)
	if errors.Is(err, sessionService.ErrInvalidTransition) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if err != nil {
		h.logger.Error("sign-in failed to start", zap.String("session", id), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "sign-in unavailable")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback 完成登录握手。失败时会话回到未登录状态，不再额外提示
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	id := middleware.SessionID(r.Context())
	q := r.URL.Query()

	// 失败已由 manager 记录，页面只展示最终状态
	_, _ = h.sessions.Complete(r.Context(), id, sessionService.Callback{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	})

	http.Redirect(w, r, "/", http.StatusFound)
}

// handleSignOut 清除凭证并重置聊天面板
func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	id := middleware.SessionID(r.Context())

	if _, err := h.sessions.SignOut(r.Context(), id); err != nil {
		h.logger.Warn("sign-out failed", zap.String("session", id), zap.Error(err))
	}
	h.chatSvc.Forget(id)

	if utils.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
