package services

import (
	"context"
	"io"
	"slices"
	"strings"

	"labchat_server/apperrors"
	"labchat_server/models"
	"labchat_server/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// CreateGroupInput is the body of a create request.
type CreateGroupInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Topic       string `json:"topic" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
}

// GroupService owns the group and membership lifecycle.
type GroupService struct {
	groups   repositories.GroupRepository
	users    repositories.UserRepository
	images   ObjectStore
	validate *validator.Validate
	now      Clock
	log      *logrus.Logger
}

func NewGroupService(
	groups repositories.GroupRepository,
	users repositories.UserRepository,
	images ObjectStore,
	log *logrus.Logger,
	opts ...Option,
) *GroupService {
	o := buildOptions(opts)
	return &GroupService{
		groups:   groups,
		users:    users,
		images:   images,
		validate: validator.New(),
		now:      o.now,
		log:      log,
	}
}

// CreateGroup creates a group whose creator is its sole admin.
func (s *GroupService) CreateGroup(ctx context.Context, actor models.Identity, input CreateGroupInput) (*models.GroupView, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Topic = strings.TrimSpace(input.Topic)
	if err := s.validate.Struct(input); err != nil {
		return nil, apperrors.InvalidInput("name and topic are required")
	}

	group := models.NewGroup(uuid.NewString(), input.Name, input.Topic, input.Description, actor.UserID, s.now())
	if err := s.groups.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"groupId": group.GroupID, "userId": actor.UserID}).Info("group created")
	return s.view(ctx, &group), nil
}

// ListGroups returns the groups the actor belongs to or created. System admins see every group.
func (s *GroupService) ListGroups(ctx context.Context, actor models.Identity) ([]models.GroupView, error) {
	var (
		groups []models.Group
		err    error
	)
	if actor.IsSystemAdmin() {
		groups, err = s.groups.ListGroups(ctx)
	} else {
		groups, err = s.groups.ListGroupsForUser(ctx, actor.UserID)
	}
	if err != nil {
		return nil, err
	}

	slices.SortFunc(groups, func(a, b models.Group) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	profiles := s.profiles(ctx, lo.FlatMap(groups, func(g models.Group, _ int) []string { return g.MemberIDs }))
	return lo.Map(groups, func(g models.Group, _ int) models.GroupView { return g.View(profiles) }), nil
}

// GetGroup returns the group with enriched members.
func (s *GroupService) GetGroup(ctx context.Context, actor models.Identity, groupID string) (*models.GroupView, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireReader(actor, group); err != nil {
		return nil, err
	}
	return s.view(ctx, group), nil
}

// UpdateGroup applies a partial metadata update.
func (s *GroupService) UpdateGroup(ctx context.Context, actor models.Identity, groupID string, patch models.GroupPatch) (*models.GroupView, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, apperrors.InvalidInput("invalid group fields")
	}
	updated, err := s.groups.UpdateGroup(ctx, groupID, func(g *models.Group) error {
		if err := requireAdmin(actor, g, "update group"); err != nil {
			return err
		}
		if !patch.Apply(g) {
			return apperrors.InvalidInput("no fields to update")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"groupId": groupID, "userId": actor.UserID}).Info("group updated")
	return s.view(ctx, updated), nil
}

// ChangeMemberRole sets the role of userID. Demoting the last admin is refused.
func (s *GroupService) ChangeMemberRole(ctx context.Context, actor models.Identity, groupID, userID string, role models.GroupRole) (*models.GroupView, error) {
	if !role.Valid() {
		return nil, apperrors.InvalidInput("role must be admin or member")
	}
	updated, err := s.groups.UpdateGroup(ctx, groupID, func(g *models.Group) error {
		if err := requireAdmin(actor, g, "manage members"); err != nil {
			return err
		}
		return g.SetRole(userID, role)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"groupId": groupID, "userId": userID, "role": role, "by": actor.UserID}).Info("member role changed")
	return s.view(ctx, updated), nil
}

// RemoveMember removes userID from the group. A member may always remove themselves, except the
// sole admin, who has to promote someone first.
func (s *GroupService) RemoveMember(ctx context.Context, actor models.Identity, groupID, userID string) (*models.GroupView, error) {
	updated, err := s.groups.UpdateGroup(ctx, groupID, func(g *models.Group) error {
		self := actor.UserID == userID
		level := ResolveAccess(actor, g)

		if !self && level < AccessGroupAdmin {
			return apperrors.Forbidden("not authorized to remove member")
		}
		if !g.IsMember(userID) {
			return apperrors.NotFound("member not found in group")
		}
		if userID == g.CreatedBy && !self && level != AccessSystemAdmin {
			return apperrors.Forbidden("cannot remove the group creator")
		}
		if self && g.IsAdmin(userID) && g.AdminCount() == 1 {
			return apperrors.Conflict("cannot leave group as the only admin; promote another member first")
		}
		return g.RemoveMember(userID)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"groupId": groupID, "userId": userID, "by": actor.UserID}).Info("member removed")
	return s.view(ctx, updated), nil
}

// ReplaceGroupImage uploads a new picture and points the group at it.
func (s *GroupService) ReplaceGroupImage(ctx context.Context, actor models.Identity, groupID, fileName, contentType string, body io.Reader, size int64) (*models.GroupView, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperrors.InvalidInput("file must be an image")
	}
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(actor, group, "update group"); err != nil {
		return nil, err
	}

	url, err := s.images.Upload(ctx, GroupImageKey(groupID, fileName, s.now()), contentType, body, size)
	if err != nil {
		return nil, err
	}
	return s.UpdateGroup(ctx, actor, groupID, models.GroupPatch{ImageURL: &url})
}

func (s *GroupService) view(ctx context.Context, g *models.Group) *models.GroupView {
	view := g.View(s.profiles(ctx, g.MemberIDs))
	return &view
}

// profiles enriches members on a best-effort basis; a directory outage only costs names.
func (s *GroupService) profiles(ctx context.Context, userIDs []string) map[string]models.UserProfile {
	profiles, err := s.users.GetUsers(ctx, userIDs)
	if err != nil {
		s.log.WithError(err).Warn("failed to load member profiles")
		return map[string]models.UserProfile{}
	}
	return profiles
}
