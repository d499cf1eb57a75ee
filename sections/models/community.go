package models

import (
	"time"

	multitenancy "github.com/bartventer/gorm-multitenancy/v8"
)

// Community is the tenant of the application (public/shared model)
type Community struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`
	multitenancy.TenantModel
	Name      string    `gorm:"size:255;not null" json:"name"`
	Slug      string    `gorm:"size:100;uniqueIndex" json:"slug"`
	Plan      string    `gorm:"size:50;not null;default:'free'" json:"plan"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the table name with public schema prefix
func (Community) TableName() string {
	return "public.communities"
}

// IsSharedModel indicates this is a shared/public model
func (Community) IsSharedModel() bool {
	return true
}

// User mirrors the auth provider's user record (public/shared model)
type User struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FullName  string    `gorm:"size:200" json:"fullName"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the table name with public schema prefix
func (User) TableName() string {
	return "public.users"
}

// IsSharedModel indicates this is a shared/public model
func (User) IsSharedModel() bool {
	return true
}

type MemberRole string

const (
	MemberRoleAdmin     MemberRole = "admin"
	MemberRoleModerator MemberRole = "moderator"
	MemberRoleMember    MemberRole = "member"
)

type MemberStatus string

const (
	MemberStatusActive    MemberStatus = "active"
	MemberStatusPending   MemberStatus = "pending"
	MemberStatusSuspended MemberStatus = "suspended"
)

// CommunityMember links users to communities (public/shared model)
type CommunityMember struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	CommunityID string       `gorm:"type:uuid;not null;uniqueIndex:idx_member_community_user" json:"communityId"`
	UserID      string       `gorm:"type:uuid;not null;uniqueIndex:idx_member_community_user;index" json:"userId"`
	Role        MemberRole   `gorm:"size:20;not null;default:'member'" json:"role"`
	Status      MemberStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	JoinedAt    time.Time    `json:"joinedAt"`
	User        User         `gorm:"foreignKey:UserID" json:"-"`
	Community   Community    `gorm:"foreignKey:CommunityID" json:"-"`
}

// TableName returns the table name with public schema prefix
func (CommunityMember) TableName() string {
	return "public.community_members"
}

// IsSharedModel indicates this is a shared/public model
func (CommunityMember) IsSharedModel() bool {
	return true
}

// IsActiveAdmin reports whether the member may manage the community's billing.
func (m *CommunityMember) IsActiveAdmin() bool {
	return m.Role == MemberRoleAdmin && m.Status == MemberStatusActive
}
