package repositories

import (
	"context"
	"errors"
	"time"

	"labchat_server/apperrors"
	"labchat_server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

type DynamoInvitationRepository struct {
	Dynamo *DynamoService
	log    *logrus.Logger
}

func NewDynamoInvitationRepository(dynamo *DynamoService, log *logrus.Logger) *DynamoInvitationRepository {
	return &DynamoInvitationRepository{Dynamo: dynamo, log: log}
}

func (r *DynamoInvitationRepository) CreateInvitation(ctx context.Context, inv models.Invitation) error {
	err := r.Dynamo.PutItem(ctx, models.InvitationsTable, inv, "attribute_not_exists(invitationId)", nil, nil)
	if errors.Is(err, ErrConditionFailed) {
		return apperrors.Conflict("invitation already exists")
	}
	if err != nil {
		return apperrors.Internal("failed to store invitation", err)
	}
	return nil
}

func (r *DynamoInvitationRepository) GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	items, err := r.Dynamo.QueryItemsWithIndex(ctx, models.InvitationsTable, models.InvitationTokenIndex,
		"#token = :token",
		map[string]types.AttributeValue{
			":token": &types.AttributeValueMemberS{Value: token},
		},
		map[string]string{"#token": "token"},
	)
	if err != nil {
		return nil, apperrors.Internal("failed to fetch invitation", err)
	}
	if len(items) == 0 {
		return nil, apperrors.NotFound("invalid or expired invitation")
	}

	var inv models.Invitation
	if err := attributevalue.UnmarshalMap(items[0], &inv); err != nil {
		return nil, apperrors.Internal("failed to parse invitation", err)
	}
	return &inv, nil
}

func (r *DynamoInvitationRepository) ListInvitations(ctx context.Context, groupID string) ([]models.Invitation, error) {
	items, err := r.Dynamo.QueryItemsWithIndex(ctx, models.InvitationsTable, models.InvitationGroupIndex,
		"groupId = :groupId",
		map[string]types.AttributeValue{
			":groupId": &types.AttributeValueMemberS{Value: groupID},
		},
		nil,
	)
	if err != nil {
		return nil, apperrors.Internal("failed to list invitations", err)
	}

	var invitations []models.Invitation
	if err := attributevalue.UnmarshalListOfMaps(items, &invitations); err != nil {
		return nil, apperrors.Internal("failed to parse invitations", err)
	}
	return invitations, nil
}

// RespondInvitation is a single conditional update on status, so only one caller moves the
// invitation out of pending.
func (r *DynamoInvitationRepository) RespondInvitation(ctx context.Context, invitationID string, to models.InvitationStatus, by string, at time.Time) (*models.Invitation, error) {
	pending := models.Invitation{Status: models.InvitationStatusPending}
	if err := pending.Transition(to, by, at); err != nil {
		return nil, err
	}
	respondedAt, err := attributevalue.Marshal(at)
	if err != nil {
		return nil, apperrors.Internal("failed to marshal response time", err)
	}

	attrs, err := r.Dynamo.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(models.InvitationsTable),
		Key: map[string]types.AttributeValue{
			"invitationId": &types.AttributeValueMemberS{Value: invitationID},
		},
		UpdateExpression:    aws.String("SET #status = :to, respondedBy = :by, respondedAt = :at"),
		ConditionExpression: aws.String("#status = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":      &types.AttributeValueMemberS{Value: string(to)},
			":by":      &types.AttributeValueMemberS{Value: by},
			":at":      respondedAt,
			":pending": &types.AttributeValueMemberS{Value: string(models.InvitationStatusPending)},
		},
	})
	if errors.Is(err, ErrConditionFailed) {
		return nil, apperrors.NotFound("invalid or expired invitation")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to update invitation", err)
	}

	var inv models.Invitation
	if err := attributevalue.UnmarshalMap(attrs, &inv); err != nil {
		return nil, apperrors.Internal("failed to parse invitation", err)
	}
	r.log.WithFields(logrus.Fields{"invitationId": invitationID, "status": to, "userId": by}).Info("invitation answered")
	return &inv, nil
}
