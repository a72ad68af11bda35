package services

import (
	"context"
	"errors"
	"strings"

	"labchat_server/apperrors"
	"labchat_server/models"
	"labchat_server/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// EligibilityPolicy decides whether email may be invited. invitee is nil when the address is not
// registered yet.
type EligibilityPolicy func(email string, invitee *models.UserProfile) bool

// RoleWhitelist admits active users whose system role is listed, and unregistered addresses when
// allowUnregistered is set.
func RoleWhitelist(roles []string, allowUnregistered bool) EligibilityPolicy {
	allowed := lo.SliceToMap(roles, func(r string) (models.SystemRole, struct{}) {
		return models.SystemRole(strings.ToLower(r)), struct{}{}
	})
	return func(_ string, invitee *models.UserProfile) bool {
		if invitee == nil {
			return allowUnregistered
		}
		_, ok := allowed[invitee.Role]
		return ok && invitee.Active
	}
}

// RedeemerPolicy decides whether redeemer may use inv.
type RedeemerPolicy func(inv models.Invitation, redeemer models.Identity) bool

// AnyRedeemer treats every invitation as an open link.
func AnyRedeemer() RedeemerPolicy {
	return func(models.Invitation, models.Identity) bool { return true }
}

// MatchingEmailRedeemer only lets the addressee redeem.
func MatchingEmailRedeemer() RedeemerPolicy {
	return func(inv models.Invitation, redeemer models.Identity) bool {
		return strings.EqualFold(strings.TrimSpace(inv.Email), strings.TrimSpace(redeemer.Email))
	}
}

// InviteService owns the invitation lifecycle.
type InviteService struct {
	groups      repositories.GroupRepository
	invitations repositories.InvitationRepository
	users       repositories.UserRepository
	groupViews  *GroupService
	eligible    EligibilityPolicy
	redeemable  RedeemerPolicy
	validate    *validator.Validate
	now         Clock
	log         *logrus.Logger
}

func NewInviteService(
	groups repositories.GroupRepository,
	invitations repositories.InvitationRepository,
	users repositories.UserRepository,
	groupViews *GroupService,
	eligible EligibilityPolicy,
	redeemable RedeemerPolicy,
	log *logrus.Logger,
	opts ...Option,
) *InviteService {
	o := buildOptions(opts)
	return &InviteService{
		groups:      groups,
		invitations: invitations,
		users:       users,
		groupViews:  groupViews,
		eligible:    eligible,
		redeemable:  redeemable,
		validate:    validator.New(),
		now:         o.now,
		log:         log,
	}
}

// CreateInvitation issues a pending invitation with a fresh token.
func (s *InviteService) CreateInvitation(ctx context.Context, actor models.Identity, groupID, email string) (*models.Invitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, apperrors.InvalidInput("a valid email is required")
	}

	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(actor, group, "invite"); err != nil {
		return nil, err
	}

	var invitee *models.UserProfile
	profile, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		invitee = profile
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}
	if !s.eligible(email, invitee) {
		return nil, apperrors.Forbidden("user is not eligible to join research groups")
	}

	inv := models.Invitation{
		InvitationID: uuid.NewString(),
		GroupID:      groupID,
		SenderID:     actor.UserID,
		Email:        email,
		Token:        uuid.NewString(),
		Status:       models.InvitationStatusPending,
		CreatedAt:    s.now(),
	}
	if err := s.invitations.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"groupId": groupID, "invitationId": inv.InvitationID, "by": actor.UserID}).Info("invitation created")
	return &inv, nil
}

// RedeemInvitation accepts the invitation behind token and makes the redeemer a member. The
// status flip is claimed first, so a token is consumed exactly once. A spent token only answers
// the user who consumed it, and only while that user is still a member; it never adds anyone back.
func (s *InviteService) RedeemInvitation(ctx context.Context, redeemer models.Identity, token string) (*models.GroupView, error) {
	inv, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvitationStatusPending {
		return s.replay(ctx, inv, redeemer)
	}
	if !s.redeemable(*inv, redeemer) {
		return nil, apperrors.Forbidden("this invitation was sent to a different email")
	}
	// The group must still exist before the token is spent.
	if _, err := s.groups.GetGroup(ctx, inv.GroupID); err != nil {
		return nil, err
	}

	claimed, err := s.invitations.RespondInvitation(ctx, inv.InvitationID, models.InvitationStatusAccepted, redeemer.UserID, s.now())
	switch {
	case err == nil:
		inv = claimed
	case errors.Is(err, apperrors.ErrNotFound):
		// Lost a race against another redeem or a decline.
		if inv, err = s.lookup(ctx, token); err != nil {
			return nil, err
		}
		return s.replay(ctx, inv, redeemer)
	default:
		return nil, err
	}

	joinedAt := s.now()
	group, err := s.groups.UpdateGroup(ctx, inv.GroupID, func(g *models.Group) error {
		g.AddMember(models.NewMember(redeemer.UserID, models.GroupRoleMember, joinedAt))
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"groupId": inv.GroupID, "invitationId": inv.InvitationID}).Error("invitation claimed but membership was not added")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"groupId": inv.GroupID, "userId": redeemer.UserID, "invitationId": inv.InvitationID}).Info("invitation redeemed")
	return s.groupViews.view(ctx, group), nil
}

// replay answers a redeem of a spent token. It is read-only.
func (s *InviteService) replay(ctx context.Context, inv *models.Invitation, redeemer models.Identity) (*models.GroupView, error) {
	if inv.Status != models.InvitationStatusAccepted || inv.RespondedBy != redeemer.UserID {
		return nil, apperrors.NotFound("invalid or expired invitation")
	}
	group, err := s.groups.GetGroup(ctx, inv.GroupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(redeemer.UserID) {
		return nil, apperrors.NotFound("invalid or expired invitation")
	}
	return s.groupViews.view(ctx, group), nil
}

// DeclineInvitation rejects a pending invitation.
func (s *InviteService) DeclineInvitation(ctx context.Context, redeemer models.Identity, token string) (*models.Invitation, error) {
	inv, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvitationStatusPending {
		return nil, apperrors.NotFound("invalid or expired invitation")
	}
	if !s.redeemable(*inv, redeemer) {
		return nil, apperrors.Forbidden("this invitation was sent to a different email")
	}
	declined, err := s.invitations.RespondInvitation(ctx, inv.InvitationID, models.InvitationStatusRejected, redeemer.UserID, s.now())
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"groupId": inv.GroupID, "userId": redeemer.UserID}).Info("invitation declined")
	return declined, nil
}

// ListInvitations returns every invitation of a group, for its admins.
func (s *InviteService) ListInvitations(ctx context.Context, actor models.Identity, groupID string) ([]models.Invitation, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(actor, group, "list invitations"); err != nil {
		return nil, err
	}
	invitations, err := s.invitations.ListInvitations(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if invitations == nil {
		invitations = []models.Invitation{}
	}
	return invitations, nil
}

func (s *InviteService) lookup(ctx context.Context, token string) (*models.Invitation, error) {
	if err := uuid.Validate(token); err != nil {
		return nil, apperrors.InvalidInput("malformed invitation token")
	}
	return s.invitations.GetInvitationByToken(ctx, token)
}
