package repositories

import (
	"context"
	"errors"

	"labchat_server/apperrors"
	"labchat_server/models"
	"labchat_server/utils"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// DynamoUserRepository reads the Users table owned by the account service.
type DynamoUserRepository struct {
	Dynamo *DynamoService
	log    *logrus.Logger
}

func NewDynamoUserRepository(dynamo *DynamoService, log *logrus.Logger) *DynamoUserRepository {
	return &DynamoUserRepository{Dynamo: dynamo, log: log}
}

func userKey(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	}
}

// profileFromItem maps a Users item. Accounts created before roles existed carry neither role nor
// active, so those default to an active plain user instead of failing a strict unmarshal.
func profileFromItem(item map[string]types.AttributeValue) models.UserProfile {
	profile := models.UserProfile{
		UserID:   utils.ExtractString(item, "userId"),
		Email:    utils.ExtractString(item, "email"),
		FullName: utils.ExtractString(item, "name"),
		Role:     models.SystemRole(utils.ExtractString(item, "role")),
		Active:   utils.ExtractBool(item, "active", true),
	}
	if avatar := utils.ExtractString(item, "avatarUrl"); avatar != "" {
		profile.AvatarURL = lo.ToPtr(avatar)
	}
	if profile.Role == "" {
		profile.Role = models.SystemRoleUser
	}
	return profile
}

func (r *DynamoUserRepository) GetUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	item, err := r.Dynamo.GetItem(ctx, models.UsersTable, userKey(userID), false)
	if errors.Is(err, ErrItemNotFound) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to fetch user", err)
	}
	profile := profileFromItem(item)
	return &profile, nil
}

func (r *DynamoUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	items, err := r.Dynamo.QueryItemsWithIndex(ctx, models.UsersTable, models.UserEmailIndex,
		"email = :email",
		map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: utils.NormalizeEmail(email)},
		},
		nil,
	)
	if err != nil {
		return nil, apperrors.Internal("failed to fetch user", err)
	}
	if len(items) == 0 {
		return nil, apperrors.NotFound("user not found")
	}
	profile := profileFromItem(items[0])
	return &profile, nil
}

func (r *DynamoUserRepository) GetUsers(ctx context.Context, userIDs []string) (map[string]models.UserProfile, error) {
	ids := lo.Uniq(userIDs)
	if len(ids) == 0 {
		return map[string]models.UserProfile{}, nil
	}
	items, err := r.Dynamo.BatchGetItems(ctx, models.UsersTable, lo.Map(ids, func(id string, _ int) map[string]types.AttributeValue {
		return userKey(id)
	}))
	if err != nil {
		return nil, apperrors.Internal("failed to fetch users", err)
	}

	profiles := make(map[string]models.UserProfile, len(items))
	for _, item := range items {
		p := profileFromItem(item)
		profiles[p.UserID] = p
	}
	return profiles, nil
}

func (r *DynamoUserRepository) PutUser(ctx context.Context, profile models.UserProfile) error {
	profile.Email = utils.NormalizeEmail(profile.Email)
	if err := r.Dynamo.PutItem(ctx, models.UsersTable, profile, "", nil, nil); err != nil {
		return apperrors.Internal("failed to store user", err)
	}
	return nil
}

// NewDynamoStore wires the DynamoDB repositories around one client.
func NewDynamoStore(client DynamoAPI, log *logrus.Logger) *Store {
	dynamo := NewDynamoService(client, log)
	return &Store{
		Groups:      NewDynamoGroupRepository(dynamo, log),
		Invitations: NewDynamoInvitationRepository(dynamo, log),
		Messages:    NewDynamoMessageRepository(dynamo, log),
		Users:       NewDynamoUserRepository(dynamo, log),
	}
}
