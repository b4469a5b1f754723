package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
)

func TestTeamCreate_AddsOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")

	team := &model.Team{Name: "Platform", OwnerID: alice.ID}
	if err := db.Teams().Create(ctx, team); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := db.Teams().GetByID(ctx, team.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.MemberCount != 1 || len(found.Members) != 1 {
		t.Fatalf("members = %+v, want the owner only", found.Members)
	}
	if m := found.Members[0]; m.UserID != alice.ID || m.Role != model.TeamRoleOwner || m.Username != "alice" {
		t.Errorf("owner member = %+v", m)
	}

	if err := db.Teams().Create(ctx, &model.Team{Name: "platform", OwnerID: alice.ID}); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate Create() error = %v, want ErrConflict", err)
	}
}

func TestTeamMembership(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	team := &model.Team{Name: "core", OwnerID: alice.ID}
	if err := db.Teams().Create(ctx, team); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	m := &model.TeamMember{TeamID: team.ID, UserID: bob.ID, Role: model.TeamRoleMember}
	if err := db.Teams().AddMember(ctx, m); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	// re-adding changes the role instead of failing
	m.Role = model.TeamRoleOwner
	if err := db.Teams().AddMember(ctx, m); err != nil {
		t.Fatalf("AddMember(again) error = %v", err)
	}
	owners, _ := db.Teams().CountOwners(ctx, team.ID)
	if owners != 2 {
		t.Errorf("CountOwners() = %d, want 2", owners)
	}

	got, err := db.Teams().GetMember(ctx, team.ID, bob.ID)
	if err != nil {
		t.Fatalf("GetMember() error = %v", err)
	}
	if got.Role != model.TeamRoleOwner {
		t.Errorf("Role = %q, want OWNER", got.Role)
	}

	bobs, _ := db.Teams().List(ctx, bob.ID)
	if len(bobs) != 1 {
		t.Errorf("List(bob) = %d teams, want 1", len(bobs))
	}

	if err := db.Teams().RemoveMember(ctx, team.ID, bob.ID); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	if _, err := db.Teams().GetMember(ctx, team.ID, bob.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetMember() after remove error = %v, want ErrNotFound", err)
	}
	if err := db.Teams().RemoveMember(ctx, team.ID, bob.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second RemoveMember() error = %v, want ErrNotFound", err)
	}
}

func TestTeamDelete_UnlinksSnippets(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	team := &model.Team{Name: "core", OwnerID: alice.ID}
	if err := db.Teams().Create(ctx, team); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s := createTestSnippet(t, db, alice, "shared", model.VisibilityTeam)
	s.TeamID = &team.ID
	if err := db.Snippets().Update(ctx, s, nil); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if err := db.Teams().Delete(ctx, team.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	found, _ := db.Snippets().GetByID(ctx, s.ID, alice.ID)
	if found.TeamID != nil {
		t.Error("TeamID should be cleared when the team is deleted")
	}
	all, _ := db.Teams().List(ctx, "")
	if len(all) != 0 {
		t.Errorf("List() = %d teams, want 0", len(all))
	}
}
