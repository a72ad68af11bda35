package repositories

import (
	"context"
	"errors"
	"strconv"

	"labchat_server/apperrors"
	"labchat_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

type DynamoGroupRepository struct {
	Dynamo *DynamoService
	log    *logrus.Logger
}

func NewDynamoGroupRepository(dynamo *DynamoService, log *logrus.Logger) *DynamoGroupRepository {
	return &DynamoGroupRepository{Dynamo: dynamo, log: log}
}

func groupKey(groupID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"groupId": &types.AttributeValueMemberS{Value: groupID},
	}
}

func (r *DynamoGroupRepository) CreateGroup(ctx context.Context, group models.Group) error {
	err := r.Dynamo.PutItem(ctx, models.GroupsTable, group, "attribute_not_exists(groupId)", nil, nil)
	if errors.Is(err, ErrConditionFailed) {
		return apperrors.Conflict("group already exists")
	}
	if err != nil {
		return apperrors.Internal("failed to create group", err)
	}
	return nil
}

func (r *DynamoGroupRepository) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return r.getGroup(ctx, groupID, false)
}

func (r *DynamoGroupRepository) getGroup(ctx context.Context, groupID string, consistent bool) (*models.Group, error) {
	item, err := r.Dynamo.GetItem(ctx, models.GroupsTable, groupKey(groupID), consistent)
	if errors.Is(err, ErrItemNotFound) {
		return nil, apperrors.NotFound("group not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to fetch group", err)
	}

	var group models.Group
	if err := attributevalue.UnmarshalMap(item, &group); err != nil {
		return nil, apperrors.Internal("failed to parse group", err)
	}
	return &group, nil
}

func (r *DynamoGroupRepository) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := r.Dynamo.ScanWithFilter(ctx, models.GroupsTable, "", nil, nil, &groups); err != nil {
		return nil, apperrors.Internal("failed to list groups", err)
	}
	return groups, nil
}

func (r *DynamoGroupRepository) ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error) {
	var groups []models.Group
	err := r.Dynamo.ScanWithFilter(ctx, models.GroupsTable,
		"contains(memberIds, :userId) OR createdBy = :userId",
		map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: userID},
		},
		nil,
		&groups,
	)
	if err != nil {
		return nil, apperrors.Internal("failed to list groups", err)
	}
	return groups, nil
}

// UpdateGroup is a read-modify-write guarded by the version attribute. A concurrent writer makes
// the conditional put fail and the mutation is replayed on the fresh copy.
func (r *DynamoGroupRepository) UpdateGroup(ctx context.Context, groupID string, mutate GroupMutation) (*models.Group, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		group, err := r.getGroup(ctx, groupID, true)
		if err != nil {
			return nil, err
		}
		expected := group.Version

		if err := mutate(group); err != nil {
			return nil, err
		}
		if err := group.Validate(); err != nil {
			return nil, err
		}
		group.Version = expected + 1

		err = r.Dynamo.PutItem(ctx, models.GroupsTable, group, "#version = :expected",
			map[string]types.AttributeValue{
				":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
			},
			map[string]string{"#version": "version"},
		)
		if err == nil {
			return group, nil
		}
		if !errors.Is(err, ErrConditionFailed) {
			return nil, apperrors.Internal("failed to update group", err)
		}
		r.log.WithFields(logrus.Fields{"groupId": groupID, "attempt": attempt}).Debug("group changed concurrently, retrying")
	}
	return nil, apperrors.Conflict("group was modified concurrently, please retry")
}
