package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"labchat_server/logger"
	"labchat_server/mocks"
	"labchat_server/models"
	"labchat_server/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store   *repositories.Store
	clock   *testClock
	images  *mocks.MockObjectStore
	groups  *GroupService
	invites *InviteService
	chat    *GroupChatService
	unread  *UnreadService

	alice models.Identity // researcher, creates groups
	bob   models.Identity // e@x.com
	carol models.Identity
	root  models.Identity // system admin
}

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, store *repositories.Store, p models.UserProfile) models.Identity {
	t.Helper()
	require.NoError(t, store.Users.PutUser(context.Background(), p))
	return models.IdentityFromProfile(p)
}

func newFixture(t *testing.T, redeemable RedeemerPolicy) *fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.Discard()
	store := repositories.NewBadgerStore(db, log)
	clock := &testClock{now: t0}
	images := mocks.NewMockObjectStore(gomock.NewController(t))
	withClock := WithClock(clock.Now)

	groups := NewGroupService(store.Groups, store.Users, images, log, withClock)
	f := &fixture{
		store:  store,
		clock:  clock,
		images: images,
		groups: groups,
		invites: NewInviteService(store.Groups, store.Invitations, store.Users, groups,
			RoleWhitelist([]string{"admin", "researcher", "user"}, true), redeemable, log, withClock),
		chat:   NewGroupChatService(store.Groups, store.Messages, 50, 200, log, withClock),
		unread: NewUnreadService(store.Groups, store.Messages, log, withClock),
	}
	f.alice = seedUser(t, store, models.UserProfile{UserID: "alice", Email: "alice@lab.org", FullName: "Alice", Role: models.SystemRoleResearcher, Active: true})
	f.bob = seedUser(t, store, models.UserProfile{UserID: "bob", Email: "e@x.com", FullName: "Bob", Role: models.SystemRoleUser, Active: true})
	f.carol = seedUser(t, store, models.UserProfile{UserID: "carol", Email: "carol@lab.org", FullName: "Carol", Role: models.SystemRoleUser, Active: true})
	f.root = seedUser(t, store, models.UserProfile{UserID: "root", Email: "root@lab.org", FullName: "Root", Role: models.SystemRoleAdmin, Active: true})
	return f
}

// createGroup makes alice the founder of a new group.
func (f *fixture) createGroup(t *testing.T) *models.GroupView {
	t.Helper()
	group, err := f.groups.CreateGroup(context.Background(), f.alice, CreateGroupInput{Name: "Genomics", Topic: "sequencing"})
	require.NoError(t, err)
	return group
}

// join invites identity into groupID and redeems the invitation.
func (f *fixture) join(t *testing.T, groupID string, who models.Identity) *models.GroupView {
	t.Helper()
	ctx := context.Background()
	inv, err := f.invites.CreateInvitation(ctx, f.alice, groupID, who.Email)
	require.NoError(t, err)
	group, err := f.invites.RedeemInvitation(ctx, who, inv.Token)
	require.NoError(t, err)
	return group
}

func (f *fixture) post(t *testing.T, groupID string, who models.Identity, at time.Time, text string) *models.ChatMessage {
	t.Helper()
	f.clock.Set(at)
	msg, err := f.chat.AppendMessage(context.Background(), who, groupID, models.TextFrame{Text: text})
	require.NoError(t, err)
	return msg
}

func memberRoles(g *models.GroupView) map[string]models.GroupRole {
	roles := make(map[string]models.GroupRole, len(g.Members))
	for _, m := range g.Members {
		roles[m.UserID] = m.Role
	}
	return roles
}
