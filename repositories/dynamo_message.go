package repositories

import (
	"context"
	"time"

	"labchat_server/apperrors"
	"labchat_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

type DynamoMessageRepository struct {
	Dynamo *DynamoService
	log    *logrus.Logger
}

func NewDynamoMessageRepository(dynamo *DynamoService, log *logrus.Logger) *DynamoMessageRepository {
	return &DynamoMessageRepository{Dynamo: dynamo, log: log}
}

// AppendMessage stores a new group message in the GroupMessages table
func (r *DynamoMessageRepository) AppendMessage(ctx context.Context, msg models.ChatMessage) error {
	if err := r.Dynamo.PutItem(ctx, models.GroupMessageTable, msg, "", nil, nil); err != nil {
		return apperrors.Internal("failed to store message", err)
	}
	return nil
}

// ListMessages reads the group partition newest first, starting below the before cursor.
func (r *DynamoMessageRepository) ListMessages(ctx context.Context, groupID, before string, limit int) ([]models.ChatMessage, error) {
	keyCondition := "groupId = :groupId"
	values := map[string]types.AttributeValue{
		":groupId": &types.AttributeValueMemberS{Value: groupID},
	}
	if before != "" {
		keyCondition += " AND sortKey < :before"
		values[":before"] = &types.AttributeValueMemberS{Value: before}
	}

	items, err := r.Dynamo.QueryItemsWithOptions(ctx, models.GroupMessageTable, keyCondition, values, nil, int32(limit), true)
	if err != nil {
		return nil, apperrors.Internal("failed to fetch group messages", err)
	}

	var messages []models.ChatMessage
	if err := attributevalue.UnmarshalListOfMaps(items, &messages); err != nil {
		return nil, apperrors.Internal("failed to parse group messages", err)
	}
	return messages, nil
}

func (r *DynamoMessageRepository) CountMessagesAfter(ctx context.Context, groupID string, after time.Time) (int, error) {
	count, err := r.Dynamo.CountItems(ctx, models.GroupMessageTable,
		"groupId = :groupId AND sortKey >= :start",
		map[string]types.AttributeValue{
			":groupId": &types.AttributeValueMemberS{Value: groupID},
			":start":   &types.AttributeValueMemberS{Value: models.SortKeyAfter(after)},
		},
		nil,
	)
	if err != nil {
		return 0, apperrors.Internal("failed to count messages", err)
	}
	return count, nil
}
