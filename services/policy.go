package services

import (
	"labchat_server/apperrors"
	"labchat_server/models"
)

// AccessLevel is what an actor may do inside one group, strongest first.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessMember
	AccessGroupAdmin
	AccessSystemAdmin
)

func (l AccessLevel) String() string {
	switch l {
	case AccessSystemAdmin:
		return "SYSTEM_ADMIN"
	case AccessGroupAdmin:
		return "GROUP_ADMIN"
	case AccessMember:
		return "MEMBER"
	default:
		return "NONE"
	}
}

// ResolveAccess maps (actor, group) to the strongest access level that applies.
func ResolveAccess(actor models.Identity, group *models.Group) AccessLevel {
	if actor.IsSystemAdmin() {
		return AccessSystemAdmin
	}
	member, ok := group.Member(actor.UserID)
	switch {
	case !ok:
		return AccessNone
	case member.Role == models.GroupRoleAdmin:
		return AccessGroupAdmin
	default:
		return AccessMember
	}
}

// CanRead allows members, the creator and system admins to see a group and its history.
func CanRead(actor models.Identity, group *models.Group) bool {
	return ResolveAccess(actor, group) >= AccessMember || group.CreatedBy == actor.UserID
}

func requireAdmin(actor models.Identity, group *models.Group, action string) error {
	if ResolveAccess(actor, group) < AccessGroupAdmin {
		return apperrors.Forbidden("not authorized to " + action)
	}
	return nil
}

func requireReader(actor models.Identity, group *models.Group) error {
	if !CanRead(actor, group) {
		return apperrors.Forbidden("not a member of this group")
	}
	return nil
}
