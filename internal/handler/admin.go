package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/license"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/service"
)

// AdminServices groups what the admin area needs, so the constructor does
// not take ten positional arguments.
type AdminServices struct {
	Users     *service.UserAdminService
	Approvals *service.ApprovalService
	Settings  *service.SettingsService
	Templates *service.TemplateService
	Audit     *service.AuditService
	Dashboard *service.DashboardService
	License   *license.Checker
}

// AdminHandler serves /api/admin/* plus the public settings subset. The
// router puts RequireAdmin in front of the admin routes; the services check
// again, so a routing mistake cannot open them up.
type AdminHandler struct {
	svc    AdminServices
	logger *slog.Logger
}

func NewAdminHandler(svc AdminServices, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

// --- users ---

// HTTP: GET /api/admin/users?q=&role=&limit=&offset=
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.svc.Users.List(r.Context(), actorFrom(r), q.Get("q"), model.Role(q.Get("role")), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HTTP: POST /api/admin/users
func (h *AdminHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in service.NewUserInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.svc.Users.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// HTTP: GET /api/admin/users/{id}
func (h *AdminHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Users.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HTTP: PATCH /api/admin/users/{id}  {"role": "ADMIN", "active": false}
func (h *AdminHandler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in service.UserPatch
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.svc.Users.Update(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HTTP: DELETE /api/admin/users/{id}
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Users.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- approvals ---

// HTTP: GET /api/admin/approvals?limit=&offset=
func (h *AdminHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Approvals.Pending(r.Context(), actorFrom(r), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HTTP: POST /api/admin/approvals/{id}/approve
func (h *AdminHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	sn, err := h.svc.Approvals.Approve(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// HTTP: POST /api/admin/approvals/{id}/reject  {"reason": "..."}
func (h *AdminHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	var in rejectRequest
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	sn, err := h.svc.Approvals.Reject(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// --- settings ---

// HTTP: GET /api/settings/public
func (h *AdminHandler) HandlePublicSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Settings.Public(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HTTP: GET /api/admin/settings
func (h *AdminHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Settings.Get(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HTTP: PUT /api/admin/settings  (partial; omitted fields are unchanged)
func (h *AdminHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch service.SettingsPatch
	if err := decodeJSON(w, r, &patch, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.svc.Settings.Update(r.Context(), actorFrom(r), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// --- email templates ---

// HTTP: GET /api/admin/templates
func (h *AdminHandler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Templates.List(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HTTP: GET /api/admin/templates/{key}
func (h *AdminHandler) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Templates.Get(r.Context(), actorFrom(r), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HTTP: PUT /api/admin/templates/{key}
func (h *AdminHandler) HandleUpsertTemplate(w http.ResponseWriter, r *http.Request) {
	var in service.TemplateInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.svc.Templates.Upsert(r.Context(), actorFrom(r), chi.URLParam(r, "key"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HTTP: DELETE /api/admin/templates/{key}  (reset to the built-in text)
func (h *AdminHandler) HandleResetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Templates.Reset(r.Context(), actorFrom(r), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandlePreviewTemplate renders the stored template, or the draft in the
// body when one is sent.
//
// HTTP: POST /api/admin/templates/{key}/preview  [{"subject": "...", "body": "..."}]
func (h *AdminHandler) HandlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var draft *service.TemplateInput
	if r.ContentLength != 0 {
		draft = &service.TemplateInput{}
		if err := decodeJSON(w, r, draft, maxBodyBytes); err != nil {
			writeError(w, err)
			return
		}
	}
	p, err := h.svc.Templates.Preview(r.Context(), actorFrom(r), chi.URLParam(r, "key"), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type testMailRequest struct {
	To string `json:"to"`
}

// HTTP: POST /api/admin/templates/test  {"to": "ops@example.com"}
func (h *AdminHandler) HandleSendTestMail(w http.ResponseWriter, r *http.Request) {
	var in testMailRequest
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.Templates.SendTest(r.Context(), actorFrom(r), in.To); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "test email sent"})
}

// --- audit log ---

// HTTP: GET /api/admin/audit?action=&user=&entity=&since=&until=&limit=&offset=
//
// since and until accept RFC 3339 timestamps or plain YYYY-MM-DD dates.
func (h *AdminHandler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := parseTime(q.Get("since"), "since")
	if err != nil {
		writeError(w, err)
		return
	}
	until, err := parseTime(q.Get("until"), "until")
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.svc.Audit.List(r.Context(), actorFrom(r), service.AuditQuery{
		Action:     q.Get("action"),
		UserID:     q.Get("user"),
		EntityType: q.Get("entity"),
		Since:      since,
		Until:      until,
		Limit:      queryInt(r, "limit"),
		Offset:     queryInt(r, "offset"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type purgeRequest struct {
	OlderThanDays int `json:"olderThanDays"`
}

// HTTP: POST /api/admin/audit/purge  {"olderThanDays": 90}
func (h *AdminHandler) HandlePurgeAudit(w http.ResponseWriter, r *http.Request) {
	var in purgeRequest
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	n, err := h.svc.Audit.Purge(r.Context(), actorFrom(r), time.Duration(in.OlderThanDays)*24*time.Hour)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func parseTime(v, field string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, apperror.ValidationFailed(field, field+" must be an RFC 3339 timestamp or YYYY-MM-DD")
}

// --- dashboard and license ---

// HTTP: GET /api/admin/dashboard
func (h *AdminHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Dashboard.Stats(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HTTP: GET /api/admin/license
func (h *AdminHandler) HandleLicense(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.License.Status())
}
