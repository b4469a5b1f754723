package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codevault/internal/service"
)

// OrganizeHandler serves the three ways of grouping snippets: the caller's
// private folder tree, admin-curated categories and free-form tags.
type OrganizeHandler struct {
	folders    *service.FolderService
	categories *service.CategoryService
	tags       *service.TagService
	logger     *slog.Logger
}

func NewOrganizeHandler(folders *service.FolderService, categories *service.CategoryService, tags *service.TagService, logger *slog.Logger) *OrganizeHandler {
	return &OrganizeHandler{folders: folders, categories: categories, tags: tags, logger: logger}
}

// --- folders ---

// HTTP: GET /api/folders
func (h *OrganizeHandler) HandleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.folders.List(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

// HTTP: POST /api/folders
func (h *OrganizeHandler) HandleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var in service.FolderInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	f, err := h.folders.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// HandleUpdateFolder renames and/or moves a folder.
//
// HTTP: PUT /api/folders/{id}  {"name": "...", "parentId": "..."|""}
func (h *OrganizeHandler) HandleUpdateFolder(w http.ResponseWriter, r *http.Request) {
	var in service.FolderInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	f, err := h.folders.Update(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HTTP: DELETE /api/folders/{id}
func (h *OrganizeHandler) HandleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := h.folders.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- categories ---

// HTTP: GET /api/categories
func (h *OrganizeHandler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.categories.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// HTTP: POST /api/categories
func (h *OrganizeHandler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.categories.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HTTP: PUT /api/categories/{id}
func (h *OrganizeHandler) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.categories.Update(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HTTP: DELETE /api/categories/{id}
func (h *OrganizeHandler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tags ---

// HTTP: GET /api/tags?mine=true
func (h *OrganizeHandler) HandleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tags.List(r.Context(), actorFrom(r), queryBool(r, "mine"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// HTTP: DELETE /api/tags/{id}
func (h *OrganizeHandler) HandleDeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.tags.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCleanupTags removes tags no snippet uses any more.
//
// HTTP: POST /api/admin/tags/cleanup
func (h *OrganizeHandler) HandleCleanupTags(w http.ResponseWriter, r *http.Request) {
	n, err := h.tags.Cleanup(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
