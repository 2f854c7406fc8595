package user

import (
	"fmt"
	"net/http"
	"time"

	"github.com/FleetLink/FleetLink/internal/common/apperrors"
	"github.com/FleetLink/FleetLink/internal/common/config"
	"github.com/FleetLink/FleetLink/internal/common/httputil"
	"github.com/FleetLink/FleetLink/internal/common/logger"
	"github.com/FleetLink/FleetLink/internal/common/middleware"
	"github.com/FleetLink/FleetLink/internal/rbac"
	"github.com/gorilla/mux"
)

// Handler 身份域 HTTP 传输层。
// 受保护路由的 Actor 由路由闸门注入，这里取出后显式传参给服务层。
type Handler struct {
	svc *Service
	cfg config.AuthConfig
	log logger.Logger

	// 登录接口单独限流（滑动窗口），缓解口令爆破
	loginLimiter middleware.RateLimiter
}

func NewHandler(svc *Service, cfg config.AuthConfig, log logger.Logger) *Handler {
	return &Handler{
		svc:          svc,
		cfg:          cfg,
		log:          log,
		loginLimiter: middleware.NewSlidingWindow(time.Minute, 30),
	}
}

// RegisterRoutes 注册身份域路由。
// /auth/* 在闸门的公开路由集内；/api/users/* 走闸门 + 服务层双重校验。
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/change-password", h.changePassword).Methods(http.MethodPost)

	r.HandleFunc("/api/users", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{id}/reset-password", h.resetPassword).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{id}/status", h.setStatus).Methods(http.MethodPut)
	r.HandleFunc("/api/users/{id}/role", h.setRole).Methods(http.MethodPut)
}

// userView 对外展示的用户信息（不含口令字段）
type userView struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toView(u *User) userView {
	return userView{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Phone:       u.Phone,
		Role:        u.Role,
		Status:      u.Status,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if h.loginLimiter != nil && !h.loginLimiter.Allow(r.Context()) {
		http.Error(w, "too many login attempts", http.StatusTooManyRequests)
		return
	}

	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}

	u, err := h.svc.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	token, expiresAt, err := h.svc.IssueSession(u)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt,
		"user":       toView(u),
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	httputil.WriteData(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
		Name            string `json:"name"`
		Phone           string `json:"phone"`
		Role            string `json:"role"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if in.Role == "" {
		in.Role = string(rbac.RoleDriver)
	}

	u, err := h.svc.Register(r.Context(), RegisterInput{
		Email:           in.Email,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
		Name:            in.Name,
		Phone:           in.Phone,
		Role:            in.Role,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, toView(u))
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperrors.ErrUnauthenticated)
		return
	}

	var in struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.svc.ChangePassword(r.Context(), actor, in.CurrentPassword, in.NewPassword, in.ConfirmPassword); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"message": "password changed"})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperrors.ErrUnauthenticated)
		return
	}

	users, total, err := h.svc.ListUsers(r.Context(), actor, 0, 100)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, toView(&users[i]))
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"users": views,
		"total": total,
	})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperrors.ErrUnauthenticated)
		return
	}

	var in struct {
		NewPassword string `json:"new_password"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}

	userID := mux.Vars(r)["id"]
	if err := h.svc.ResetPassword(r.Context(), actor, userID, in.NewPassword); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"message": "password reset"})
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperrors.ErrUnauthenticated)
		return
	}

	var in struct {
		Status string `json:"status"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}

	userID := mux.Vars(r)["id"]
	if err := h.svc.SetStatus(r.Context(), actor, userID, in.Status); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("status set to %s", in.Status)})
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperrors.ErrUnauthenticated)
		return
	}

	var in struct {
		Role string `json:"role"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}

	userID := mux.Vars(r)["id"]
	if err := h.svc.SetRole(r.Context(), actor, userID, in.Role); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("role set to %s", in.Role)})
}
