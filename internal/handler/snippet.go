package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/service"
)

// maxImportBytes caps the JSON array accepted by import.
const maxImportBytes = 20 << 20

// SnippetHandler exposes snippets, their versions and the snippet-level
// actions (favorite, bulk, import/export, publish, run).
type SnippetHandler struct {
	svc    *service.SnippetService
	logger *slog.Logger
}

func NewSnippetHandler(svc *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{svc: svc, logger: logger}
}

// HandleList searches snippets visible to the caller.
//
// HTTP: GET /api/snippets?q=&regex=&language=&category=&tag=&folder=&team=&status=&favorites=&mine=&sort=&limit=&offset=
//
// URL QUERY PARAMETERS:
// r.URL.Query() parses the query string into a url.Values map. Get returns
// "" for a missing key, which every filter treats as "no filter".
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.svc.List(r.Context(), actorFrom(r), service.SnippetQuery{
		Query:      q.Get("q"),
		Regex:      queryBool(r, "regex"),
		Language:   q.Get("language"),
		CategoryID: q.Get("category"),
		Tag:        q.Get("tag"),
		FolderID:   q.Get("folder"),
		TeamID:     q.Get("team"),
		Status:     model.Status(q.Get("status")),
		Favorites:  queryBool(r, "favorites"),
		Mine:       queryBool(r, "mine"),
		Sort:       q.Get("sort"),
		Limit:      queryInt(r, "limit"),
		Offset:     queryInt(r, "offset"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HTTP: POST /api/snippets
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.SnippetInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	sn, err := h.svc.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sn)
}

// HandleGet returns one snippet.
//
// HTTP: GET /api/snippets/{id}
//
// URL PARAMETERS:
// chi.URLParam(r, "id") extracts {id} from the matched route pattern. For
// GET /api/snippets/abc123 it returns "abc123".
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sn, err := h.svc.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// HTTP: PUT /api/snippets/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.SnippetUpdate
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	sn, err := h.svc.Update(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: POST /api/snippets/{id}/favorite
func (h *SnippetHandler) HandleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	fav, err := h.svc.ToggleFavorite(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": fav})
}

// HTTP: GET /api/snippets/{id}/versions
func (h *SnippetHandler) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.ListVersions(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// HTTP: GET /api/snippets/{id}/versions/{versionID}
func (h *SnippetHandler) HandleGetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetVersion(r.Context(), actorFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "versionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleDiff compares two versions; "to" defaults to the live snippet.
//
// HTTP: GET /api/snippets/{id}/diff?from={versionID}&to={versionID|current}
func (h *SnippetHandler) HandleDiff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := h.svc.Diff(r.Context(), actorFrom(r), chi.URLParam(r, "id"), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HTTP: POST /api/snippets/{id}/versions/{versionID}/restore
func (h *SnippetHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	sn, err := h.svc.Restore(r.Context(), actorFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "versionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// HTTP: POST /api/snippets/bulk
func (h *SnippetHandler) HandleBulk(w http.ResponseWriter, r *http.Request) {
	var req service.BulkRequest
	if err := decodeJSON(w, r, &req, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.Bulk(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleExport downloads the caller's snippets as a JSON array.
//
// HTTP: GET /api/snippets/export
//
// Content-Disposition: attachment makes browsers save the response as a
// file instead of rendering it.
func (h *SnippetHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Export(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="codevault-export.json"`)
	writeJSON(w, http.StatusOK, items)
}

// HTTP: POST /api/snippets/import
func (h *SnippetHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var items []service.ExportedSnippet
	if err := decodeJSON(w, r, &items, maxImportBytes); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.Import(r.Context(), actorFrom(r), items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HTTP: POST /api/snippets/{id}/publish  {"provider": "github"|"gitea"}
func (h *SnippetHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var req service.PublishRequest
	if err := decodeJSON(w, r, &req, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.Publish(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HTTP: POST /api/snippets/{id}/run
func (h *SnippetHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Run(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
