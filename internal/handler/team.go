package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codevault/internal/service"
)

// TeamHandler serves /api/teams. Every route needs a Pro license; the
// service answers 402 otherwise.
type TeamHandler struct {
	svc    *service.TeamService
	logger *slog.Logger
}

func NewTeamHandler(svc *service.TeamService, logger *slog.Logger) *TeamHandler {
	return &TeamHandler{svc: svc, logger: logger}
}

// HTTP: GET /api/teams
func (h *TeamHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	teams, err := h.svc.List(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

// HTTP: POST /api/teams
func (h *TeamHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.TeamInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	team, err := h.svc.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

// HTTP: GET /api/teams/{id}
func (h *TeamHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	team, err := h.svc.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

// HTTP: PUT /api/teams/{id}
func (h *TeamHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.TeamInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	team, err := h.svc.Update(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

// HTTP: DELETE /api/teams/{id}
func (h *TeamHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddMember adds or re-roles a member, by id or username.
//
// HTTP: POST /api/teams/{id}/members  {"userId"|"username": "...", "role": "OWNER"|"MEMBER"}
func (h *TeamHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	var in service.MemberInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	team, err := h.svc.AddMember(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

// HTTP: DELETE /api/teams/{id}/members/{userID}
func (h *TeamHandler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RemoveMember(r.Context(), actorFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
