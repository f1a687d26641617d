package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"secretariat-data/internal/domain"
	"secretariat-data/internal/repository"
	"secretariat-data/internal/service"

	"go.uber.org/zap"
)

const credentialsPrefix = "/admin/api/v1/credentials"

// CredentialsHandler 凭据管理 Handler（operator）
type CredentialsHandler struct {
	credentials *service.CredentialService
	reconciler  *service.Reconciler
	// queue receives reconcile requests sent with async=true; nil runs them inline
	queue  service.SourceChangeNotifier
	logger *zap.Logger
}

// NewCredentialsHandler 创建凭据管理 Handler
func NewCredentialsHandler(credentials *service.CredentialService, reconciler *service.Reconciler, logger *zap.Logger) *CredentialsHandler {
	return &CredentialsHandler{
		credentials: credentials,
		reconciler:  reconciler,
		logger:      logger,
	}
}

// WithQueue routes async reconcile requests through n (the source-change stream).
func (h *CredentialsHandler) WithQueue(n service.SourceChangeNotifier) *CredentialsHandler {
	h.queue = n
	return h
}

// ServeHTTP 路由分发
func (h *CredentialsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == credentialsPrefix {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.List(w, r)
		return
	}

	sub := strings.TrimPrefix(path, credentialsPrefix+"/")
	switch sub {
	case "resync":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Resync(w, r)
		return
	case "resync/last":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.LastResync(w, r)
		return
	case "reconcile":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Reconcile(w, r)
		return
	case "export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Export(w, r)
		return
	}

	// {id}/active | {id}/credentials | {id}/pin
	parts := strings.Split(sub, "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := parts[0]
	switch parts[1] {
	case "active":
		h.SetActive(w, r, id)
	case "credentials":
		h.SetCredentials(w, r, id)
	case "pin":
		h.SetPinned(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func filtersFromQuery(r *http.Request) repository.CredentialFilters {
	q := r.URL.Query()
	return repository.CredentialFilters{
		Kind:   domain.SourceKind(strings.TrimSpace(q.Get("kind"))),
		Search: strings.TrimSpace(q.Get("search")),
		Active: parseBoolPtr(q.Get("active")),
	}
}

// List GET /admin/api/v1/credentials
func (h *CredentialsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.credentials.List(r.Context(), filtersFromQuery(r), parseInt(q.Get("page"), 1), parseInt(q.Get("size"), 50))
	if err != nil {
		h.fail(w, "list credentials", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// Resync POST /admin/api/v1/credentials/resync
func (h *CredentialsHandler) Resync(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.ResyncAll(r.Context())
	if err != nil {
		h.fail(w, "resync credentials", err)
		return
	}
	if report.Canceled {
		writeJSON(w, http.StatusOK, Warn("resync canceled before completion", report))
		return
	}
	writeJSON(w, http.StatusOK, Ok(report))
}

// LastResync GET /admin/api/v1/credentials/resync/last
func (h *CredentialsHandler) LastResync(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.LastReport(r.Context())
	if err != nil {
		h.fail(w, "read last resync report", err)
		return
	}
	if report == nil {
		writeJSON(w, http.StatusOK, Fail("no resync has run yet"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(report))
}

// refValue accepts 12 or "12".
type refValue int64

func (v *refValue) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid ref %s", string(b))
	}
	*v = refValue(id)
	return nil
}

// Reconcile POST /admin/api/v1/credentials/reconcile {kind, ref}
func (h *CredentialsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind  string   `json:"kind"`
		Ref   refValue `json:"ref"`
		Async bool     `json:"async"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}
	kind := domain.SourceKind(body.Kind)
	if body.Async && h.queue != nil {
		if err := h.queue.SourceChanged(r.Context(), kind, int64(body.Ref)); err != nil {
			h.fail(w, "queue reconcile", err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{
			"kind":   kind,
			"ref":    domain.FormatRef(int64(body.Ref)),
			"queued": true,
		}))
		return
	}
	outcome, err := h.reconciler.ReconcileOne(r.Context(), kind, int64(body.Ref))
	if err != nil {
		h.fail(w, "reconcile credential", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"kind":    kind,
		"ref":     domain.FormatRef(int64(body.Ref)),
		"outcome": outcome,
	}))
}

// Export GET /admin/api/v1/credentials/export
func (h *CredentialsHandler) Export(w http.ResponseWriter, r *http.Request) {
	rows, err := h.credentials.ExportRows(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.fail(w, "export credentials", err)
		return
	}
	data, err := GenerateCredentialsExport(rows)
	if err != nil {
		h.logger.Error("Failed to generate credentials export", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to generate export"))
		return
	}

	filename := fmt.Sprintf("credentials-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// SetActive PUT /admin/api/v1/credentials/{id}/active {active}
func (h *CredentialsHandler) SetActive(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.Active == nil {
		writeJSON(w, http.StatusOK, Fail("active is required"))
		return
	}
	c, err := h.credentials.SetActive(r.Context(), id, *body.Active)
	if err != nil {
		h.fail(w, "set credential active", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(c))
}

// SetCredentials PUT /admin/api/v1/credentials/{id}/credentials {username, password}
func (h *CredentialsHandler) SetCredentials(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}
	c, err := h.credentials.SetCredentials(r.Context(), id, body.Username, body.Password)
	if err != nil {
		h.fail(w, "set credentials", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(c))
}

// SetPinned PUT /admin/api/v1/credentials/{id}/pin {pinned}
func (h *CredentialsHandler) SetPinned(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Pinned *bool `json:"pinned"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.Pinned == nil {
		writeJSON(w, http.StatusOK, Fail("pinned is required"))
		return
	}
	c, err := h.credentials.SetPinned(r.Context(), id, *body.Pinned)
	if err != nil {
		var warn *service.ReconcileWarning
		if errors.As(err, &warn) {
			h.logger.Warn("Credential unpinned but reconcile failed",
				zap.String("credential_id", id),
				zap.Error(warn.Err),
			)
			writeJSON(w, http.StatusOK, Warn(warn.Error(), c))
			return
		}
		h.fail(w, "set credential pin", err)
		return
	}
	// nil: the record was deleted because its source no longer qualifies
	writeJSON(w, http.StatusOK, Ok(c))
}

// fail maps known errors to their message; anything else is logged and hidden.
func (h *CredentialsHandler) fail(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusOK, Fail("credential not found"))
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUsernameCollision),
		errors.Is(err, service.ErrActiveToggleNotAllowed):
		writeJSON(w, http.StatusOK, Fail(err.Error()))
	default:
		h.logger.Error("Failed to "+action, zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to %s", action)))
	}
}
