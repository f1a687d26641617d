package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterHealthRoutes GET /health
func (r *Router) RegisterHealthRoutes(ready func() error) {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if ready != nil {
			if err := ready(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
				return
			}
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	})
}

// RegisterAuthRoutes /auth/api/v1/*
func (r *Router) RegisterAuthRoutes(h *AuthHandler) {
	r.HandleHandler("/auth/api/v1/", h)
}

// RegisterCredentialRoutes /admin/api/v1/credentials*, behind the bearer token.
func (r *Router) RegisterCredentialRoutes(h *CredentialsHandler, token string) {
	protected := RequireBearer(token, r.logger, h)
	r.HandleHandler("/admin/api/v1/credentials", protected)
	r.HandleHandler("/admin/api/v1/credentials/", protected)
}

// RequireBearer rejects requests without "Authorization: Bearer <token>".
func RequireBearer(token string, logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		got, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) != 1 {
			logger.Warn("Unauthorized admin request",
				zap.String("path", r.URL.Path),
				zap.String("ip_address", getClientIP(r)),
			)
			writeJSON(w, http.StatusUnauthorized, unauthorized())
			return
		}
		next.ServeHTTP(w, r)
	})
}
