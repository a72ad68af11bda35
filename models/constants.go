package models

// DynamoDB table names
const (
	GroupsTable       = "ResearchGroups"
	InvitationsTable  = "GroupInvitations"
	GroupMessageTable = "GroupMessages"
	UsersTable        = "Users"
)

// DynamoDB GSI names
const (
	InvitationTokenIndex = "token-index"
	InvitationGroupIndex = "groupId-index"
	UserEmailIndex       = "email-index"
)
