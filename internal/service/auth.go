package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/rs/xid"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/auth"
	"github.com/sakif/codevault/internal/mail"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

// AuthService handles registration, login and account self-service.
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It never touches cookies; handlers turn an AuthResult into one.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	settings  *SettingsService
	audit     *AuditService
	mail      *TemplateService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	settings *SettingsService,
	audit *AuditService,
	mail *TemplateService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		settings:  settings,
		audit:     audit,
		mail:      mail,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued JWT so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func validateCredentials(in *RegisterInput) error {
	return validationError(validation.ValidateStruct(in,
		validation.Field(&in.Username, validation.Required,
			validation.Match(usernamePattern).Error("must be 3-32 letters, digits, '_', '.' or '-'")),
		validation.Field(&in.Email, validation.Required, is.EmailFormat),
		validation.Field(&in.Password, validation.Required, validation.Length(8, auth.MaxPasswordBytes)),
	))
}

// Register creates a password account. The very first account becomes an
// admin and is allowed even when registration is switched off.
func (s *AuthService) Register(ctx context.Context, ip string, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateCredentials(&in); err != nil {
		return nil, err
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/auth: counting users: %w", err)
	}
	role := model.RoleUser
	if count == 0 {
		role = model.RoleAdmin
	} else {
		settings, err := s.settings.Current(ctx)
		if err != nil {
			return nil, err
		}
		if !settings.AllowRegistration {
			return nil, apperror.Forbidden("registration is disabled")
		}
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("username", user.Username), slog.String("role", string(role)))
	actor := ActorFor(user, ip)
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionUserRegister, EntityID: user.ID, Details: map[string]any{"username": user.Username, "role": role}})
	s.mail.Notify(ctx, mail.KeyWelcome, user.Email, map[string]any{"Username": user.Username})

	return s.issue(user)
}

// Login accepts a username or email. Unknown accounts and wrong passwords
// both yield the same Unauthorized error.
func (s *AuthService) Login(ctx context.Context, ip, login, password string) (*AuthResult, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, apperror.ValidationFailed("login", "login and password are required")
	}

	fail := func(userID string) error {
		s.audit.Record(ctx, Actor{UserID: userID, IP: ip}, AuditEntry{
			Action:   ActionUserLoginFailed,
			EntityID: userID,
			Details:  map[string]any{"login": login},
		})
		return apperror.Unauthorized("invalid username or password")
	}

	user, err := s.users.GetByLogin(ctx, login)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, fail("")
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: loading %q: %w", login, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, fail(user.ID)
	}
	if !user.Active {
		return nil, apperror.Forbidden("account is disabled")
	}

	if s.passwords.NeedsRehash(user.PasswordHash) {
		if hash, err := s.passwords.Hash(password); err == nil {
			if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
				s.logger.Warn("password rehash failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
			}
		}
	}

	s.touch(ctx, user)
	s.audit.Record(ctx, ActorFor(user, ip), AuditEntry{Action: ActionUserLogin, EntityID: user.ID})
	return s.issue(user)
}

// LoginGitHub links the GitHub identity to an existing account by GitHub id
// or creates a new account. New accounts obey allow_registration like
// password sign-ups do.
func (s *AuthService) LoginGitHub(ctx context.Context, ip string, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("service/auth: GitHub user must not be empty")
	}

	user, err := s.users.GetByGitHubID(ctx, gh.ID)
	switch {
	case err == nil:
		if !user.Active {
			return nil, apperror.Forbidden("account is disabled")
		}
		if gh.AvatarURL != "" && gh.AvatarURL != user.AvatarURL {
			user.AvatarURL = gh.AvatarURL
			if err := s.users.Update(ctx, user); err != nil {
				s.logger.Warn("refreshing GitHub avatar failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
			}
		}
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.createGitHubUser(ctx, ip, gh)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("service/auth: loading GitHub user %d: %w", gh.ID, err)
	}

	s.logger.Info("user authenticated via GitHub", slog.String("user_id", user.ID), slog.String("login", gh.Login))
	s.touch(ctx, user)
	s.audit.Record(ctx, ActorFor(user, ip), AuditEntry{Action: ActionUserLogin, EntityID: user.ID, Details: map[string]any{"provider": "github"}})
	return s.issue(user)
}

func (s *AuthService) createGitHubUser(ctx context.Context, ip string, gh *auth.GitHubUser) (*model.User, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	role := model.RoleUser
	if count == 0 {
		role = model.RoleAdmin
	} else if settings, err := s.settings.Current(ctx); err != nil {
		return nil, err
	} else if !settings.AllowRegistration {
		return nil, apperror.Forbidden("registration is disabled")
	}

	ghID := gh.ID
	base := sanitizeUsername(gh.Login)
	candidates := []string{base, base + "-gh", base + "-" + xid.New().String()[14:]}

	for _, name := range candidates {
		user := &model.User{
			Username:  name,
			Email:     strings.ToLower(gh.Email),
			Role:      role,
			Active:    true,
			GitHubID:  &ghID,
			AvatarURL: gh.AvatarURL,
		}
		err := s.users.Create(ctx, user)
		if err == nil {
			s.audit.Record(ctx, ActorFor(user, ip), AuditEntry{Action: ActionUserRegister, EntityID: user.ID, Details: map[string]any{"username": name, "provider": "github"}})
			s.mail.Notify(ctx, mail.KeyWelcome, user.Email, map[string]any{"Username": user.Username})
			return user, nil
		}
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrConflict) || appErr.Field != "username" {
			return nil, err
		}
	}
	return nil, apperror.Conflict("user", base)
}

// sanitizeUsername maps a GitHub login onto the local username rules.
func sanitizeUsername(login string) string {
	var b strings.Builder
	for _, r := range login {
		if r < 128 && (r == '_' || r == '.' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) > 24 {
		name = name[:24]
	}
	for len(name) < 3 {
		name += "_"
	}
	return name
}

func (s *AuthService) touch(ctx context.Context, user *model.User) {
	now := time.Now().UTC()
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("recording last login failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}
	user.LastLoginAt = &now
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// ChangePassword requires the current password unless the account has none
// yet (GitHub-only accounts setting a first password).
func (s *AuthService) ChangePassword(ctx context.Context, actor Actor, current, next string) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if user.PasswordHash != "" {
		if err := s.passwords.Verify(user.PasswordHash, current); err != nil {
			return apperror.ValidationFailed("currentPassword", "current password is incorrect")
		}
	}
	if err := validation.Validate(next, validation.Required, validation.Length(8, auth.MaxPasswordBytes)); err != nil {
		return apperror.ValidationFailed("newPassword", "newPassword: "+err.Error())
	}

	hash, err := s.passwords.Hash(next)
	if err != nil {
		return apperror.ValidationFailed("newPassword", err.Error())
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	s.audit.Record(ctx, actor, AuditEntry{Action: ActionUserPasswordChange, EntityID: user.ID})
	s.mail.Notify(ctx, mail.KeyPasswordChanged, user.Email, map[string]any{"Username": user.Username})
	return nil
}

type ProfileInput struct {
	Email     *string `json:"email"`
	AvatarURL *string `json:"avatarUrl"`
}

func (s *AuthService) UpdateProfile(ctx context.Context, actor Actor, in ProfileInput) (*model.User, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}

	err = validation.ValidateStruct(user,
		validation.Field(&user.Email, validation.Required, is.EmailFormat),
		validation.Field(&user.AvatarURL, is.URL, validation.Length(0, 500)),
	)
	if err != nil {
		return nil, validationError(err)
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// IntegrationsInput sets publish credentials. A nil field is unchanged;
// an empty string clears it.
type IntegrationsInput struct {
	GitHubToken *string `json:"githubToken"`
	GiteaURL    *string `json:"giteaUrl"`
	GiteaToken  *string `json:"giteaToken"`
}

func (s *AuthService) UpdateIntegrations(ctx context.Context, actor Actor, in IntegrationsInput) (*model.User, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if in.GitHubToken != nil {
		user.GitHubToken = strings.TrimSpace(*in.GitHubToken)
	}
	if in.GiteaURL != nil {
		user.GiteaURL = strings.TrimRight(strings.TrimSpace(*in.GiteaURL), "/")
	}
	if in.GiteaToken != nil {
		user.GiteaToken = strings.TrimSpace(*in.GiteaToken)
	}
	if err := validation.Validate(user.GiteaURL, is.URL); err != nil {
		return nil, apperror.ValidationFailed("giteaUrl", "giteaUrl: "+err.Error())
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	user.HasGitHubToken = user.GitHubToken != ""
	user.HasGiteaToken = user.GiteaToken != ""
	return user, nil
}
