package services

import (
	"context"
	"sync"
	"testing"

	"labchat_server/apperrors"
	"labchat_server/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestInviteService_Admin_Invites_And_User_Redeems(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, MatchingEmailRedeemer())
	group := f.createGroup(t)

	inv, err := f.invites.CreateInvitation(ctx, f.alice, group.GroupID, "E@x.com")
	req.NoError(err)
	req.Equal(models.InvitationStatusPending, inv.Status)
	req.Equal("e@x.com", inv.Email)
	req.NoError(uuid.Validate(inv.Token))

	joined, err := f.invites.RedeemInvitation(ctx, f.bob, inv.Token)
	req.NoError(err)
	req.Equal(map[string]models.GroupRole{"alice": models.GroupRoleAdmin, "bob": models.GroupRoleMember}, memberRoles(joined))
	req.Equal("bob", joined.Members[1].UserID)

	stored, err := f.store.Invitations.GetInvitationByToken(ctx, inv.Token)
	req.NoError(err)
	req.Equal(models.InvitationStatusAccepted, stored.Status)
	req.Equal("bob", stored.RespondedBy)
}

func TestInviteService_Redeem_Replay_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, AnyRedeemer())
	group := f.createGroup(t)

	inv, err := f.invites.CreateInvitation(ctx, f.alice, group.GroupID, f.bob.Email)
	req.NoError(err)
	_, err = f.invites.RedeemInvitation(ctx, f.bob, inv.Token)
	req.NoError(err)

	again, err := f.invites.RedeemInvitation(ctx, f.bob, inv.Token)
	req.NoError(err)
	req.Len(again.Members, 2)

	// The token is spent for everybody else.
	_, err = f.invites.RedeemInvitation(ctx, f.carol, inv.Token)
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func TestInviteService_Removed_Member_Cannot_Replay_Token(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, AnyRedeemer())
	group := f.createGroup(t)

	inv, err := f.invites.CreateInvitation(ctx, f.alice, group.GroupID, f.bob.Email)
	req.NoError(err)
	_, err = f.invites.RedeemInvitation(ctx, f.bob, inv.Token)
	req.NoError(err)
	_, err = f.groups.RemoveMember(ctx, f.alice, group.GroupID, f.bob.UserID)
	req.NoError(err)

	_, err = f.invites.RedeemInvitation(ctx, f.bob, inv.Token)
	req.ErrorIs(err, apperrors.ErrNotFound)

	current, err := f.groups.GetGroup(ctx, f.alice, group.GroupID)
	req.NoError(err)
	req.Equal(map[string]models.GroupRole{"alice": models.GroupRoleAdmin}, memberRoles(current))
}

func TestInviteService_Redeem_For_Missing_Group_Keeps_Token_Pending(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, AnyRedeemer())

	orphan := models.Invitation{
		InvitationID: uuid.NewString(),
		GroupID:      uuid.NewString(),
		SenderID:     f.alice.UserID,
		Email:        f.bob.Email,
		Token:        uuid.NewString(),
		Status:       models.InvitationStatusPending,
		CreatedAt:    t0,
	}
	req.NoError(f.store.Invitations.CreateInvitation(ctx, orphan))

	_, err := f.invites.RedeemInvitation(ctx, f.bob, orphan.Token)
	req.ErrorIs(err, apperrors.ErrNotFound)

	stored, err := f.store.Invitations.GetInvitationByToken(ctx, orphan.Token)
	req.NoError(err)
	req.Equal(models.InvitationStatusPending, stored.Status)
}

func TestInviteService_Existing_Member_Redeem_Does_Not_Duplicate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, AnyRedeemer())
	group := f.createGroup(t)
	f.join(t, group.GroupID, f.bob)

	inv, err := f.invites.CreateInvitation(ctx, f.alice, group.GroupID, f.bob.Email)
	req.NoError(err)
	joined, err := f.invites.RedeemInvitation(ctx, f.bob, inv.Token)
	req.NoError(err)
	req.Len(joined.Members, 2)

	stored, err := f.store.Invitations.GetInvitationByToken(ctx, inv.Token)
	req.NoError(err)
	req.Equal(models.InvitationStatusAccepted, stored.Status)
}

func TestInviteService_Create_Rules(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, AnyRedeemer())
	group := f.createGroup(t)
	f.join(t, group.GroupID, f.bob)

	_, err := f.invites.CreateInvitation(ctx, f.bob, group.GroupID, "new@lab.org")
	req.ErrorIs(err, apperrors.ErrForbidden)

	_, err = f.invites.CreateInvitation(ctx, f.alice, group.GroupID, "not-an-email")
	req.ErrorIs(err, apperrors.ErrInvalidInput)

	_, err = f.invites.CreateInvitation(ctx, f.alice, "missing", "new@lab.org")
	req.ErrorIs(err, apperrors.ErrNotFound)

	// System admins invite into groups they are not part of.
	_, err = f.invites.CreateInvitation(ctx, f.root, group.GroupID, "new@lab.org")
	req.NoError(err)

	listed, err := f.invites.ListInvitations(ctx, f.alice, group.GroupID)
	req.NoError(err)
	req.Len(listed, 2)

	_, err = f.invites.ListInvitations(ctx, f.bob, group.GroupID)
	req.ErrorIs(err, apperrors.ErrForbidden)
}

func TestInviteService_Eligibility_Policy(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, AnyRedeemer())
	group := f.createGroup(t)
	seedUser(t, f.store, models.UserProfile{UserID: "gone", Email: "gone@lab.org", Role: models.SystemRoleResearcher, Active: false})

	f.invites.eligible = RoleWhitelist([]string{"researcher"}, false)

	_, err := f.invites.CreateInvitation(ctx, f.alice, group.GroupID, f.bob.Email)
	req.ErrorIs(err, apperrors.ErrForbidden)
	_, err = f.invites.CreateInvitation(ctx, f.alice, group.GroupID, "stranger@lab.org")
	req.ErrorIs(err, apperrors.ErrForbidden)
	_, err = f.invites.CreateInvitation(ctx, f.alice, group.GroupID, "gone@lab.org")
	req.ErrorIs(err, apperrors.ErrForbidden)
	_, err = f.invites.CreateInvitation(ctx, f.alice, group.GroupID, f.alice.Email)
	req.NoError(err)
}

func TestInviteService_Strict_Redeemer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, MatchingEmailRedeemer())
	group := f.createGroup(t)

	inv, err := f.invites.CreateInvitation(ctx, f.alice, group.GroupID, f.bob.Email)
	req.NoError(err)

	_, err = f.invites.RedeemInvitation(ctx, f.carol, inv.Token)
	req.ErrorIs(err, apperrors.ErrForbidden)

	stored, err := f.store.Invitations.GetInvitationByToken(ctx, inv.Token)
	req.NoError(err)
	req.Equal(models.InvitationStatusPending, stored.Status)
}

func TestInviteService_Decline(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, AnyRedeemer())
	group := f.createGroup(t)

	inv, err := f.invites.CreateInvitation(ctx, f.alice, group.GroupID, f.bob.Email)
	req.NoError(err)

	declined, err := f.invites.DeclineInvitation(ctx, f.bob, inv.Token)
	req.NoError(err)
	req.Equal(models.InvitationStatusRejected, declined.Status)

	_, err = f.invites.RedeemInvitation(ctx, f.bob, inv.Token)
	req.ErrorIs(err, apperrors.ErrNotFound)
	_, err = f.invites.DeclineInvitation(ctx, f.bob, inv.Token)
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func TestInviteService_Bad_Tokens(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, AnyRedeemer())

	_, err := f.invites.RedeemInvitation(ctx, f.bob, "not-a-token")
	req.ErrorIs(err, apperrors.ErrInvalidInput)

	_, err = f.invites.RedeemInvitation(ctx, f.bob, uuid.NewString())
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func TestInviteService_Concurrent_Redeem_Has_One_Winner(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, AnyRedeemer())
	group := f.createGroup(t)
	inv, err := f.invites.CreateInvitation(ctx, f.alice, group.GroupID, f.bob.Email)
	req.NoError(err)

	redeemers := []models.Identity{f.bob, f.carol}
	results := make([]error, len(redeemers))
	var wg sync.WaitGroup
	for i, who := range redeemers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = f.invites.RedeemInvitation(ctx, who, inv.Token)
		}()
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	req.Equal(1, successes)

	current, err := f.groups.GetGroup(ctx, f.alice, group.GroupID)
	req.NoError(err)
	req.Len(current.Members, 2)
}

func TestRoleWhitelist_Eligibility(t *testing.T) {
	req := require.New(t)
	policy := RoleWhitelist([]string{"Researcher", "admin"}, true)

	req.True(policy("x@lab.org", nil))
	req.True(policy("x@lab.org", &models.UserProfile{Role: models.SystemRoleResearcher, Active: true}))
	req.False(policy("x@lab.org", &models.UserProfile{Role: models.SystemRoleUser, Active: true}))
}
