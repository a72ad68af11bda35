package services

import (
	"context"
	"errors"

	"labchat_server/apperrors"
	"labchat_server/models"
	"labchat_server/repositories"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// unreadFanOut bounds the concurrent counts of TotalUnread.
const unreadFanOut = 8

var errNothingToMark = errors.New("nothing to mark")

// UnreadService tracks per-member read cursors and derives unread counts on demand.
type UnreadService struct {
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	now      Clock
	log      *logrus.Logger
}

func NewUnreadService(groups repositories.GroupRepository, messages repositories.MessageRepository, log *logrus.Logger, opts ...Option) *UnreadService {
	o := buildOptions(opts)
	return &UnreadService{groups: groups, messages: messages, now: o.now, log: log}
}

// MarkRead moves the actor's read cursor to now. A system admin who is not a member gets a no-op.
func (s *UnreadService) MarkRead(ctx context.Context, actor models.Identity, groupID string) error {
	at := s.now()
	_, err := s.groups.UpdateGroup(ctx, groupID, func(g *models.Group) error {
		if !g.IsMember(actor.UserID) {
			if actor.IsSystemAdmin() {
				return errNothingToMark
			}
			return apperrors.Forbidden("not a member of this group")
		}
		return g.MarkRead(actor.UserID, at)
	})
	if errors.Is(err, errNothingToMark) {
		return nil
	}
	return err
}

// UnreadCount is the number of messages newer than the actor's read cursor.
func (s *UnreadService) UnreadCount(ctx context.Context, actor models.Identity, groupID string) (int, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return 0, err
	}
	member, ok := group.Member(actor.UserID)
	if !ok {
		if actor.IsSystemAdmin() {
			return 0, nil
		}
		return 0, apperrors.Forbidden("not a member of this group")
	}
	return s.messages.CountMessagesAfter(ctx, groupID, member.LastReadAt)
}

// TotalUnread sums the unread counts over every group the actor is a member of.
func (s *UnreadService) TotalUnread(ctx context.Context, actor models.Identity) (int, error) {
	groups, err := s.groups.ListGroupsForUser(ctx, actor.UserID)
	if err != nil {
		return 0, err
	}
	cursors := lo.FilterMap(groups, func(g models.Group, _ int) (models.Member, bool) {
		m, ok := g.Member(actor.UserID)
		return m, ok
	})
	groupIDs := lo.FilterMap(groups, func(g models.Group, _ int) (string, bool) {
		return g.GroupID, g.IsMember(actor.UserID)
	})

	counts := make([]int, len(cursors))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(unreadFanOut)
	for i := range cursors {
		eg.Go(func() error {
			n, err := s.messages.CountMessagesAfter(egCtx, groupIDs[i], cursors[i].LastReadAt)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		s.log.WithError(err).WithField("userId", actor.UserID).Error("failed to aggregate unread counts")
		return 0, err
	}
	return lo.Sum(counts), nil
}
