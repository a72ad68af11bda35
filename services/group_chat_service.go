package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"labchat_server/apperrors"
	"labchat_server/models"
	"labchat_server/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const maxMessageRunes = 10000

// GroupChatService persists chat messages and serves history pages.
type GroupChatService struct {
	groups       repositories.GroupRepository
	messages     repositories.MessageRepository
	defaultLimit int
	maxLimit     int
	now          Clock
	log          *logrus.Logger
}

func NewGroupChatService(
	groups repositories.GroupRepository,
	messages repositories.MessageRepository,
	defaultLimit, maxLimit int,
	log *logrus.Logger,
	opts ...Option,
) *GroupChatService {
	o := buildOptions(opts)
	return &GroupChatService{
		groups:       groups,
		messages:     messages,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          o.now,
		log:          log,
	}
}

// AuthorizeConnection checks that actor may join the live channel of groupID.
func (s *GroupChatService) AuthorizeConnection(ctx context.Context, actor models.Identity, groupID string) (*models.Group, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireReader(actor, group); err != nil {
		return nil, err
	}
	return group, nil
}

// AppendMessage stores the frame as a new message and returns it. The caller broadcasts only
// after this returns without error.
func (s *GroupChatService) AppendMessage(ctx context.Context, sender models.Identity, groupID string, frame models.InboundFrame) (*models.ChatMessage, error) {
	content, audioURL := frame.Body()
	if utf8.RuneCountInString(content) > maxMessageRunes {
		return nil, apperrors.InvalidInput(fmt.Sprintf("message exceeds %d characters", maxMessageRunes))
	}
	if strings.TrimSpace(content) == "" && audioURL == nil {
		return nil, apperrors.InvalidInput("message must have content or audio")
	}
	if _, err := s.AuthorizeConnection(ctx, sender, groupID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperrors.Internal("failed to generate message id", err)
	}
	ts := s.now()
	msg := models.ChatMessage{
		GroupID:    groupID,
		SortKey:    models.MessageSortKey(ts, id.String()),
		MessageID:  id.String(),
		UserID:     sender.UserID,
		UserName:   sender.DisplayName,
		UserAvatar: sender.AvatarURL,
		Content:    content,
		AudioURL:   audioURL,
		Timestamp:  ts,
	}
	if err := s.messages.AppendMessage(ctx, msg); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"groupId": groupID, "userId": sender.UserID}).Error("failed to store group message")
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns one history page in ascending order. before is the nextCursor of the
// previous page, empty for the newest page.
func (s *GroupChatService) ListMessages(ctx context.Context, actor models.Identity, groupID, before string, limit int) (*models.MessagePage, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireReader(actor, group); err != nil {
		return nil, err
	}

	limit = s.clampLimit(limit)
	messages, err := s.messages.ListMessages(ctx, groupID, before, limit)
	if err != nil {
		return nil, err
	}

	page := &models.MessagePage{Messages: lo.Reverse(messages)}
	if page.Messages == nil {
		page.Messages = []models.ChatMessage{}
	}
	if len(messages) == limit {
		page.NextCursor = lo.ToPtr(page.Messages[0].SortKey)
	}
	return page, nil
}

func (s *GroupChatService) clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return s.defaultLimit
	case limit > s.maxLimit:
		return s.maxLimit
	default:
		return limit
	}
}
