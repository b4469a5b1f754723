package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/executor"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/publish"
)

// Publisher pushes a file to a code-hosting provider.
type Publisher interface {
	Publish(ctx context.Context, t publish.Target, f publish.File) (*publish.Result, error)
}

// PublishRequest selects the provider. Gitea uses the base URL stored on
// the user's profile.
type PublishRequest struct {
	Provider publish.Provider `json:"provider"`
}

// RunEnabled reports whether a sandbox executor is configured.
func (s *SnippetService) RunEnabled() bool {
	return s.exec != nil
}

// Run executes a stored snippet the caller can read.
func (s *SnippetService) Run(ctx context.Context, actor Actor, id string) (*executor.ExecutionResult, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	sn, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, actor, executor.ExecutionRequest{Language: sn.Language, Code: sn.Code})
}

// Execute runs ad-hoc code in the sandbox.
//
// WHY require a login?
// Every run starts a container. Anonymous runs would turn the instance into
// a free compute service, so only registered users may execute code.
func (s *SnippetService) Execute(ctx context.Context, actor Actor, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if s.exec == nil {
		return nil, apperror.Forbidden("code execution is disabled on this server")
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Code) > settings.MaxSnippetLength {
		return nil, apperror.ValidationFailed("code", fmt.Sprintf("code must be at most %d characters", settings.MaxSnippetLength))
	}

	lang, ok := s.langs.Lookup(req.Language)
	if !ok || !lang.Runnable() {
		return nil, apperror.ValidationFailed("language",
			fmt.Sprintf("language %q cannot be executed; supported: %s", req.Language, strings.Join(s.langs.RunnableNames(), ", ")))
	}
	req.Language = lang.Name

	result, err := s.exec.Execute(ctx, req)
	if err != nil {
		if errors.Is(err, executor.ErrUnsupportedLanguage) {
			return nil, apperror.ValidationFailed("language", err.Error())
		}
		s.logger.Error("execution failed",
			slog.String("language", req.Language),
			slog.String("user_id", actor.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("executing code: %w", err)
	}

	s.logger.Info("code executed",
		slog.String("language", req.Language),
		slog.String("user_id", actor.UserID),
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// Publish pushes a snippet to the caller's GitHub gists or Gitea account
// with the token stored on their profile.
func (s *SnippetService) Publish(ctx context.Context, actor Actor, id string, req PublishRequest) (*publish.Result, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if s.publisher == nil {
		return nil, apperror.Forbidden("publishing is disabled on this server")
	}
	sn, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	provider := publish.Provider(strings.ToLower(strings.TrimSpace(string(req.Provider))))
	if !provider.Valid() {
		return nil, apperror.ValidationFailed("provider", "provider must be github or gitea")
	}
	target := publish.Target{Provider: provider}
	switch provider {
	case publish.GitHub:
		target.Token = user.GitHubToken
	case publish.Gitea:
		target.BaseURL, target.Token = user.GiteaURL, user.GiteaToken
	}
	if target.Token == "" {
		return nil, apperror.ValidationFailed("provider", "no "+string(provider)+" token configured in your profile")
	}

	file := publish.File{
		Name:        publish.FileName(sn.Title, s.langs.Extension(sn.Language)),
		Description: publishDescription(sn),
		Content:     sn.Code,
		Public:      sn.Visibility == model.VisibilityPublic,
	}
	result, err := s.publisher.Publish(ctx, target, file)
	if err != nil {
		if errors.Is(err, publish.ErrRemote) {
			s.logger.Warn("publish rejected by provider",
				slog.String("provider", string(provider)),
				slog.String("id", sn.ID),
				slog.String("error", err.Error()),
			)
			return nil, apperror.ValidationFailed("provider", err.Error())
		}
		return nil, fmt.Errorf("publishing snippet: %w", err)
	}

	s.audit.Record(ctx, actor, AuditEntry{
		Action:   ActionSnippetPublish,
		EntityID: sn.ID,
		Details:  map[string]any{"provider": provider, "url": result.URL},
	})
	return result, nil
}

func publishDescription(sn *model.Snippet) string {
	if sn.Description != "" {
		return sn.Description
	}
	return sn.Title
}
