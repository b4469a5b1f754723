// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services never see *http.Request. Who is calling is passed explicitly as
// an Actor, so every permission rule (owner-or-admin, team membership, Pro
// gating) lives here and is testable with plain function calls.
//
// Services depend on the interfaces in package repository, not on the
// sqlite package. Tests run them against the real in-memory SQLite store.
package service

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

// Paging limits shared by every list endpoint.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Actor is the authenticated caller of a service method. The zero value is
// an anonymous visitor.
type Actor struct {
	UserID string
	Role   model.Role
	IP     string
}

// ActorFor builds the Actor for a loaded user. A nil user is anonymous.
func ActorFor(u *model.User, ip string) Actor {
	if u == nil {
		return Actor{IP: ip}
	}
	return Actor{UserID: u.ID, Role: u.Role, IP: ip}
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

func (a Actor) Anonymous() bool {
	return a.UserID == ""
}

// Page is one page of a listing plus the total number of matches.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// LicenseChecker reports whether a Pro license is installed.
// *license.Checker implements it.
type LicenseChecker interface {
	IsPro() bool
}

// clampPage applies the default and maximum page sizes.
func clampPage(limit, offset int) repository.ListOptions {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return repository.ListOptions{Limit: limit, Offset: offset}
}

func requireUser(a Actor) error {
	if a.Anonymous() {
		return apperror.Unauthorized("authentication required")
	}
	return nil
}

func requireAdmin(a Actor) error {
	if err := requireUser(a); err != nil {
		return err
	}
	if !a.IsAdmin() {
		return apperror.Forbidden("admin access required")
	}
	return nil
}

func requirePro(l LicenseChecker, feature string) error {
	if l == nil || !l.IsPro() {
		return apperror.ProRequired(feature)
	}
	return nil
}

// validationError converts ozzo-validation output into an AppError naming
// the first failing field (alphabetically, so the result is stable).
// Other errors pass through unchanged.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		var one validation.Error
		if errors.As(err, &one) {
			return apperror.ValidationFailed("", one.Error())
		}
		return err
	}

	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	first := fields[0]
	return apperror.ValidationFailed(first, first+": "+errs[first].Error())
}
