package repositories

import (
	"context"
	"testing"
	"time"

	"labchat_server/apperrors"
	"labchat_server/logger"
	"labchat_server/mocks"
	"labchat_server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var dynamoT0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newMockDynamoStore(t *testing.T) (*Store, *mocks.MockDynamoAPI) {
	t.Helper()
	client := mocks.NewMockDynamoAPI(gomock.NewController(t))
	return NewDynamoStore(client, logger.Discard()), client
}

func marshalItem(t *testing.T, v any) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return item
}

func versionedGroup(version int64) models.Group {
	g := models.NewGroup("g1", "Genomics", "sequencing", "", "alice", dynamoT0)
	g.Version = version
	return g
}

// expectVersionedPut asserts the optimistic guard of one put and answers it with result.
func expectVersionedPut(t *testing.T, client *mocks.MockDynamoAPI, expected, written string, result error) *gomock.Call {
	return client.EXPECT().PutItem(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			req := require.New(t)
			req.Equal(models.GroupsTable, aws.ToString(in.TableName))
			req.Equal("#version = :expected", aws.ToString(in.ConditionExpression))
			req.Equal(map[string]string{"#version": "version"}, in.ExpressionAttributeNames)
			req.Equal(&types.AttributeValueMemberN{Value: expected}, in.ExpressionAttributeValues[":expected"])
			req.Equal(&types.AttributeValueMemberN{Value: written}, in.Item["version"])
			if result != nil {
				return nil, result
			}
			return &dynamodb.PutItemOutput{}, nil
		})
}

func addBob(g *models.Group) error {
	g.AddMember(models.NewMember("bob", models.GroupRoleMember, dynamoT0))
	return nil
}

func TestDynamoGroupRepository_Update_Retries_On_Version_Conflict(t *testing.T) {
	req := require.New(t)
	store, client := newMockDynamoStore(t)

	gomock.InOrder(
		client.EXPECT().GetItem(gomock.Any(), gomock.Any()).
			Return(&dynamodb.GetItemOutput{Item: marshalItem(t, versionedGroup(3))}, nil),
		expectVersionedPut(t, client, "3", "4", &types.ConditionalCheckFailedException{Message: aws.String("version moved")}),
		client.EXPECT().GetItem(gomock.Any(), gomock.Any()).
			Return(&dynamodb.GetItemOutput{Item: marshalItem(t, versionedGroup(4))}, nil),
		expectVersionedPut(t, client, "4", "5", nil),
	)

	updated, err := store.Groups.UpdateGroup(context.Background(), "g1", addBob)
	req.NoError(err)
	req.Equal(int64(5), updated.Version)
	req.True(updated.IsMember("bob"))
	req.ElementsMatch([]string{"alice", "bob"}, updated.MemberIDs)
}

func TestDynamoGroupRepository_Update_Gives_Up_After_Max_Attempts(t *testing.T) {
	store, client := newMockDynamoStore(t)

	client.EXPECT().GetItem(gomock.Any(), gomock.Any()).
		Return(&dynamodb.GetItemOutput{Item: marshalItem(t, versionedGroup(1))}, nil).
		Times(maxUpdateAttempts)
	client.EXPECT().PutItem(gomock.Any(), gomock.Any()).
		Return(nil, &types.ConditionalCheckFailedException{}).
		Times(maxUpdateAttempts)

	_, err := store.Groups.UpdateGroup(context.Background(), "g1", addBob)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDynamoGroupRepository_Rejected_Mutation_Writes_Nothing(t *testing.T) {
	store, client := newMockDynamoStore(t)

	client.EXPECT().GetItem(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			require.True(t, aws.ToBool(in.ConsistentRead))
			return &dynamodb.GetItemOutput{Item: marshalItem(t, versionedGroup(1))}, nil
		})

	_, err := store.Groups.UpdateGroup(context.Background(), "g1", func(*models.Group) error {
		return apperrors.Forbidden("only group admins can do that")
	})
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestDynamoGroupRepository_Missing_Group_Is_Not_Found(t *testing.T) {
	store, client := newMockDynamoStore(t)
	client.EXPECT().GetItem(gomock.Any(), gomock.Any()).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := store.Groups.GetGroup(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDynamoMessageRepository_List_Uses_Before_Cursor(t *testing.T) {
	req := require.New(t)
	store, client := newMockDynamoStore(t)

	stored := models.ChatMessage{
		GroupID:   "g1",
		SortKey:   models.MessageSortKey(dynamoT0, "m1"),
		MessageID: "m1",
		UserID:    "alice",
		UserName:  "Alice",
		Content:   "hello",
		Timestamp: dynamoT0,
	}
	cursor := models.MessageSortKey(dynamoT0.Add(time.Minute), "m2")

	gomock.InOrder(
		client.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
				req.Equal(models.GroupMessageTable, aws.ToString(in.TableName))
				req.Equal("groupId = :groupId AND sortKey < :before", aws.ToString(in.KeyConditionExpression))
				req.Equal(&types.AttributeValueMemberS{Value: "g1"}, in.ExpressionAttributeValues[":groupId"])
				req.Equal(&types.AttributeValueMemberS{Value: cursor}, in.ExpressionAttributeValues[":before"])
				req.False(aws.ToBool(in.ScanIndexForward))
				req.Equal(int32(20), aws.ToInt32(in.Limit))
				return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{marshalItem(t, stored)}}, nil
			}),
		client.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
				req.Equal("groupId = :groupId", aws.ToString(in.KeyConditionExpression))
				req.NotContains(in.ExpressionAttributeValues, ":before")
				return &dynamodb.QueryOutput{}, nil
			}),
	)

	messages, err := store.Messages.ListMessages(context.Background(), "g1", cursor, 20)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("m1", messages[0].MessageID)
	req.Equal(stored.SortKey, messages[0].SortKey)
	req.True(messages[0].Timestamp.Equal(dynamoT0))

	messages, err = store.Messages.ListMessages(context.Background(), "g1", "", 20)
	req.NoError(err)
	req.Empty(messages)
}

func TestDynamoMessageRepository_Count_Starts_After_Read_Cursor(t *testing.T) {
	req := require.New(t)
	store, client := newMockDynamoStore(t)

	client.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			req.Equal("groupId = :groupId AND sortKey >= :start", aws.ToString(in.KeyConditionExpression))
			req.Equal(&types.AttributeValueMemberS{Value: models.SortKeyAfter(dynamoT0)}, in.ExpressionAttributeValues[":start"])
			req.Equal(types.SelectCount, in.Select)
			return &dynamodb.QueryOutput{Count: 7}, nil
		})

	count, err := store.Messages.CountMessagesAfter(context.Background(), "g1", dynamoT0)
	req.NoError(err)
	req.Equal(7, count)
}

func TestDynamoInvitationRepository_Respond_Claims_Pending_Only(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, client := newMockDynamoStore(t)

	respondedAt := dynamoT0.Add(time.Hour)
	accepted := models.Invitation{
		InvitationID: "inv1",
		GroupID:      "g1",
		SenderID:     "alice",
		Email:        "e@x.com",
		Token:        "tok",
		Status:       models.InvitationStatusAccepted,
		CreatedAt:    dynamoT0,
		RespondedBy:  "bob",
		RespondedAt:  &respondedAt,
	}

	gomock.InOrder(
		client.EXPECT().UpdateItem(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
				req.Equal("#status = :pending", aws.ToString(in.ConditionExpression))
				req.Equal(&types.AttributeValueMemberS{Value: string(models.InvitationStatusPending)}, in.ExpressionAttributeValues[":pending"])
				req.Equal(&types.AttributeValueMemberS{Value: string(models.InvitationStatusAccepted)}, in.ExpressionAttributeValues[":to"])
				req.Equal(&types.AttributeValueMemberS{Value: "bob"}, in.ExpressionAttributeValues[":by"])
				req.Equal(types.ReturnValueAllNew, in.ReturnValues)
				return &dynamodb.UpdateItemOutput{Attributes: marshalItem(t, accepted)}, nil
			}),
		client.EXPECT().UpdateItem(gomock.Any(), gomock.Any()).
			Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("already answered")}),
	)

	claimed, err := store.Invitations.RespondInvitation(ctx, "inv1", models.InvitationStatusAccepted, "bob", respondedAt)
	req.NoError(err)
	req.Equal(models.InvitationStatusAccepted, claimed.Status)
	req.Equal("bob", claimed.RespondedBy)

	_, err = store.Invitations.RespondInvitation(ctx, "inv1", models.InvitationStatusRejected, "carol", respondedAt)
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func TestDynamoUserRepository_Profile_Defaults(t *testing.T) {
	req := require.New(t)
	store, client := newMockDynamoStore(t)

	client.EXPECT().GetItem(gomock.Any(), gomock.Any()).Return(&dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: "u1"},
		"email":  &types.AttributeValueMemberS{Value: "u1@lab.org"},
		"name":   &types.AttributeValueMemberS{Value: "Ursula"},
	}}, nil)

	profile, err := store.Users.GetUser(context.Background(), "u1")
	req.NoError(err)
	req.Equal("u1@lab.org", profile.Email)
	req.Equal(models.SystemRoleUser, profile.Role)
	req.True(profile.Active)
	req.Nil(profile.AvatarURL)
}
