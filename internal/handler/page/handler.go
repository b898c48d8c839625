package page

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/maxai/client/internal/middleware"
	chatModel "github.com/zhouzirui/maxai/client/internal/model/chat"
	sessionModel "github.com/zhouzirui/maxai/client/internal/model/session"
	chatService "github.com/zhouzirui/maxai/client/internal/service/chat"
	sessionService "github.com/zhouzirui/maxai/client/internal/service/session"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

type pageData struct {
	Loading   bool
	SignedIn  bool
	Email     string
	Panel     chatModel.Panel
	Sending   bool
	HasAnswer bool
}

// Handler 单页面渲染器
type Handler struct {
	sessions *sessionService.Manager
	chatSvc  *chatService.Service
	logger   *zap.Logger
}

// New 创建页面处理器
func New(sessions *sessionService.Manager, chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	return &Handler{sessions: sessions, chatSvc: chatSvc, logger: logger.Named("page")}
}

// RegisterRoutes 注册页面路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	id := middleware.SessionID(r.Context())
	sess := h.sessions.Current(r.Context(), id)

	data := pageData{
		Loading:  sess.State == sessionModel.StateLoading,
		SignedIn: sess.SignedIn(),
		Email:    sess.UserEmail,
	}
	if data.SignedIn {
		data.Panel = h.chatSvc.Panel(id)
		data.Sending = data.Panel.Busy
		data.HasAnswer = data.Panel.Display != ""
	}

	var buf bytes.Buffer
	if err := pageTemplate.ExecuteTemplate(&buf, "index.html.tmpl", data); err != nil {
		h.logger.Error("render page failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
