package models

import (
	"time"

	"labchat_server/apperrors"

	"github.com/samber/lo"
)

// GroupRole is the role a member holds inside one group.
type GroupRole string

const (
	GroupRoleAdmin  GroupRole = "admin"
	GroupRoleMember GroupRole = "member"
)

func (r GroupRole) Valid() bool {
	return r == GroupRoleAdmin || r == GroupRoleMember
}

// Member is owned by its Group and only mutated through the Group methods below.
type Member struct {
	UserID     string    `dynamodbav:"userId" json:"userId"`
	Role       GroupRole `dynamodbav:"role" json:"role"`
	JoinedAt   time.Time `dynamodbav:"joinedAt" json:"joinedAt"`
	LastReadAt time.Time `dynamodbav:"lastReadAt" json:"lastReadAt"`
}

// NewMember builds a member whose read cursor starts at the join time.
func NewMember(userID string, role GroupRole, joinedAt time.Time) Member {
	return Member{UserID: userID, Role: role, JoinedAt: joinedAt, LastReadAt: joinedAt}
}

// Group is a research group with its embedded, ordered member list.
type Group struct {
	GroupID     string    `dynamodbav:"groupId" json:"id"`
	Name        string    `dynamodbav:"name" json:"name"`
	Topic       string    `dynamodbav:"topic" json:"topic"`
	Description string    `dynamodbav:"description,omitempty" json:"description,omitempty"`
	ImageURL    *string   `dynamodbav:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	CreatedBy   string    `dynamodbav:"createdBy" json:"createdBy"`
	CreatedAt   time.Time `dynamodbav:"createdAt" json:"createdAt"`
	Members     []Member  `dynamodbav:"members" json:"members"`
	// MemberIDs mirrors Members so DynamoDB can filter with contains().
	MemberIDs []string `dynamodbav:"memberIds,stringset,omitempty" json:"memberIds,omitempty"`
	Version   int64    `dynamodbav:"version" json:"version"`
}

// NewGroup creates a group whose founder is its sole admin.
func NewGroup(id, name, topic, description, founderID string, now time.Time) Group {
	g := Group{
		GroupID:     id,
		Name:        name,
		Topic:       topic,
		Description: description,
		CreatedBy:   founderID,
		CreatedAt:   now,
	}
	g.Members = []Member{NewMember(founderID, GroupRoleAdmin, now)}
	g.syncMemberIDs()
	return g
}

// Member returns the member record for userID.
func (g *Group) Member(userID string) (Member, bool) {
	return lo.Find(g.Members, func(m Member) bool { return m.UserID == userID })
}

func (g *Group) IsMember(userID string) bool {
	_, ok := g.Member(userID)
	return ok
}

func (g *Group) IsAdmin(userID string) bool {
	m, ok := g.Member(userID)
	return ok && m.Role == GroupRoleAdmin
}

func (g *Group) AdminCount() int {
	return lo.CountBy(g.Members, func(m Member) bool { return m.Role == GroupRoleAdmin })
}

// AddMember appends m unless the user is already a member. It reports whether the list changed.
func (g *Group) AddMember(m Member) bool {
	if g.IsMember(m.UserID) {
		return false
	}
	g.Members = append(g.Members, m)
	g.syncMemberIDs()
	return true
}

// RemoveMember drops userID from the list. Removing the last admin while other members remain is
// refused so the list never ends up without an admin.
func (g *Group) RemoveMember(userID string) error {
	_, idx, ok := lo.FindIndexOf(g.Members, func(m Member) bool { return m.UserID == userID })
	if !ok {
		return apperrors.NotFound("member not found in group")
	}
	next := append(append([]Member{}, g.Members[:idx]...), g.Members[idx+1:]...)
	if err := checkAdminInvariant(next); err != nil {
		return err
	}
	g.Members = next
	g.syncMemberIDs()
	return nil
}

// SetRole changes the role of userID, refusing to demote the last admin.
func (g *Group) SetRole(userID string, role GroupRole) error {
	if !role.Valid() {
		return apperrors.InvalidInput("invalid role")
	}
	_, idx, ok := lo.FindIndexOf(g.Members, func(m Member) bool { return m.UserID == userID })
	if !ok {
		return apperrors.NotFound("member not found in group")
	}
	next := append([]Member{}, g.Members...)
	next[idx].Role = role
	if err := checkAdminInvariant(next); err != nil {
		return err
	}
	g.Members = next
	return nil
}

// MarkRead moves the read cursor of userID to at.
func (g *Group) MarkRead(userID string, at time.Time) error {
	_, idx, ok := lo.FindIndexOf(g.Members, func(m Member) bool { return m.UserID == userID })
	if !ok {
		return apperrors.NotFound("member not found in group")
	}
	g.Members[idx].LastReadAt = at
	return nil
}

// Validate checks the membership invariants: unique user ids and at least one admin when non-empty.
func (g *Group) Validate() error {
	if len(lo.UniqBy(g.Members, func(m Member) string { return m.UserID })) != len(g.Members) {
		return apperrors.Conflict("duplicate member in group")
	}
	return checkAdminInvariant(g.Members)
}

func (g *Group) syncMemberIDs() {
	g.MemberIDs = lo.Map(g.Members, func(m Member, _ int) string { return m.UserID })
}

func checkAdminInvariant(members []Member) error {
	if len(members) == 0 {
		return nil
	}
	if !lo.ContainsBy(members, func(m Member) bool { return m.Role == GroupRoleAdmin }) {
		return apperrors.Conflict("group must keep at least one admin; promote another member first")
	}
	return nil
}

// GroupPatch carries the optional metadata fields of an update.
type GroupPatch struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Topic       *string `json:"topic,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	ImageURL    *string `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// Apply copies the non-nil fields onto g and reports whether anything was set.
func (p GroupPatch) Apply(g *Group) bool {
	changed := false
	if p.Name != nil {
		g.Name, changed = *p.Name, true
	}
	if p.Topic != nil {
		g.Topic, changed = *p.Topic, true
	}
	if p.Description != nil {
		g.Description, changed = *p.Description, true
	}
	if p.ImageURL != nil {
		g.ImageURL, changed = lo.ToPtr(*p.ImageURL), true
	}
	return changed
}

// MemberDetail is a member enriched with directory data for API responses.
type MemberDetail struct {
	Member
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// GroupView is the API representation of a group.
type GroupView struct {
	GroupID     string         `json:"id"`
	Name        string         `json:"name"`
	Topic       string         `json:"topic"`
	Description string         `json:"description,omitempty"`
	ImageURL    *string        `json:"imageUrl,omitempty"`
	CreatedBy   string         `json:"createdBy"`
	CreatedAt   time.Time      `json:"createdAt"`
	Members     []MemberDetail `json:"members"`
}

// View enriches g with the given profiles. Unknown users keep a placeholder name.
func (g Group) View(profiles map[string]UserProfile) GroupView {
	return GroupView{
		GroupID:     g.GroupID,
		Name:        g.Name,
		Topic:       g.Topic,
		Description: g.Description,
		ImageURL:    g.ImageURL,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
		Members: lo.Map(g.Members, func(m Member, _ int) MemberDetail {
			detail := MemberDetail{Member: m, Name: "Unknown User"}
			if p, ok := profiles[m.UserID]; ok {
				detail.Name = p.DisplayName()
				detail.AvatarURL = p.AvatarURL
			}
			return detail
		}),
	}
}
