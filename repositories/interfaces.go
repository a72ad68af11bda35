package repositories

import (
	"context"
	"time"

	"labchat_server/models"
)

// maxUpdateAttempts bounds the optimistic retry loops of both backends.
const maxUpdateAttempts = 5

// GroupMutation is applied to a freshly read group inside an atomic update. Returning an error
// aborts the update and nothing is written.
type GroupMutation func(g *models.Group) error

type GroupRepository interface {
	CreateGroup(ctx context.Context, group models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	// ListGroupsForUser returns the groups userID is a member or the creator of.
	ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error)
	// UpdateGroup reads the group, applies mutate and writes it back atomically. The membership
	// invariants are validated before the write.
	UpdateGroup(ctx context.Context, groupID string, mutate GroupMutation) (*models.Group, error)
}

type InvitationRepository interface {
	CreateInvitation(ctx context.Context, inv models.Invitation) error
	GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error)
	ListInvitations(ctx context.Context, groupID string) ([]models.Invitation, error)
	// RespondInvitation moves a pending invitation to a terminal status. It fails NotFound when
	// the invitation is no longer pending, so at most one caller wins.
	RespondInvitation(ctx context.Context, invitationID string, to models.InvitationStatus, by string, at time.Time) (*models.Invitation, error)
}

type MessageRepository interface {
	AppendMessage(ctx context.Context, msg models.ChatMessage) error
	// ListMessages returns up to limit messages newest first. A non-empty before restricts the
	// page to messages whose sort key is strictly lower.
	ListMessages(ctx context.Context, groupID, before string, limit int) ([]models.ChatMessage, error)
	// CountMessagesAfter counts the messages with a timestamp strictly greater than after.
	CountMessagesAfter(ctx context.Context, groupID string, after time.Time) (int, error)
}

// UserRepository is the read side of the user directory. PutUser exists for seeding.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*models.UserProfile, error)
	GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error)
	GetUsers(ctx context.Context, userIDs []string) (map[string]models.UserProfile, error)
	PutUser(ctx context.Context, profile models.UserProfile) error
}

// Store bundles the repositories of one backend.
type Store struct {
	Groups      GroupRepository
	Invitations InvitationRepository
	Messages    MessageRepository
	Users       UserRepository
	close       func() error
}

// Close releases the backend resources.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
