package model

import "time"

type TeamRole string

const (
	TeamRoleOwner  TeamRole = "OWNER"
	TeamRoleMember TeamRole = "MEMBER"
)

func (r TeamRole) Valid() bool {
	return r == TeamRoleOwner || r == TeamRoleMember
}

// Team is the unit of sharing between users. Snippets with TEAM
// visibility are readable by every member of the snippet's team.
type Team struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	OwnerID     string       `json:"ownerId"`
	MemberCount int          `json:"memberCount"`
	Members     []TeamMember `json:"members,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type TeamMember struct {
	TeamID    string    `json:"teamId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Role      TeamRole  `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}
