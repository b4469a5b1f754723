package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/codevault/internal/executor"
	"github.com/sakif/codevault/internal/language"
	"github.com/sakif/codevault/internal/service"
)

// ExecuteHandler runs ad-hoc code and describes the language registry.
type ExecuteHandler struct {
	svc    *service.SnippetService
	langs  *language.Registry
	logger *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(svc *service.SnippetService, langs *language.Registry, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{svc: svc, langs: langs, logger: logger}
}

// HandleExecute runs code in the sandbox without saving it.
//
// HTTP: POST /api/execute  {"language": "python", "code": "print(1)"}
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executor.ExecutionRequest
	if err := decodeJSON(w, r, &req, maxBodyBytes); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	result, err := h.svc.Execute(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type languagesResponse struct {
	Languages  []language.Language `json:"languages"`
	RunEnabled bool                `json:"runEnabled"`
	Runnable   []string            `json:"runnable"`
}

// HandleLanguages lists known languages so the editor can offer them.
//
// HTTP: GET /api/languages
func (h *ExecuteHandler) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	resp := languagesResponse{
		Languages:  h.langs.All(),
		RunEnabled: h.svc.RunEnabled(),
		Runnable:   []string{},
	}
	if resp.RunEnabled {
		resp.Runnable = h.langs.RunnableNames()
	}
	writeJSON(w, http.StatusOK, resp)
}
