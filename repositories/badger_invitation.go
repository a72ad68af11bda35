package repositories

import (
	"context"
	"errors"
	"time"

	"labchat_server/apperrors"
	"labchat_server/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Invitations live under invite:{id} with two index keys: invitetoken:{token} holds the id and
// invitegroup:{groupId}:{id} is an empty marker used for listing.
const (
	invitePrefix      = "invite:"
	inviteTokenPrefix = "invitetoken:"
	inviteGroupPrefix = "invitegroup:"
)

type BadgerInvitationRepository struct {
	db  *badger.DB
	log *logrus.Logger
}

func NewBadgerInvitationRepository(db *badger.DB, log *logrus.Logger) *BadgerInvitationRepository {
	return &BadgerInvitationRepository{db: db, log: log}
}

func (r *BadgerInvitationRepository) CreateInvitation(_ context.Context, inv models.Invitation) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(inviteTokenPrefix + inv.Token)); err == nil {
			return apperrors.Conflict("invitation already exists")
		}
		if err := setJSON(txn, invitePrefix+inv.InvitationID, inv); err != nil {
			return err
		}
		if err := txn.Set([]byte(inviteTokenPrefix+inv.Token), []byte(inv.InvitationID)); err != nil {
			return err
		}
		return txn.Set([]byte(inviteGroupPrefix+inv.GroupID+":"+inv.InvitationID), []byte{})
	})
	return wrapBadgerErr(err, "failed to store invitation")
}

func (r *BadgerInvitationRepository) GetInvitationByToken(_ context.Context, token string) (*models.Invitation, error) {
	var inv models.Invitation
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(inviteTokenPrefix + token))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, invitePrefix+string(id), &inv)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.NotFound("invalid or expired invitation")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to fetch invitation", err)
	}
	return &inv, nil
}

func (r *BadgerInvitationRepository) ListInvitations(_ context.Context, groupID string) ([]models.Invitation, error) {
	var invitations []models.Invitation
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(inviteGroupPrefix + groupID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			var inv models.Invitation
			if err := getJSON(txn, invitePrefix+id, &inv); err != nil {
				return err
			}
			invitations = append(invitations, inv)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("failed to list invitations", err)
	}
	return invitations, nil
}

func (r *BadgerInvitationRepository) RespondInvitation(_ context.Context, invitationID string, to models.InvitationStatus, by string, at time.Time) (*models.Invitation, error) {
	var updated models.Invitation
	err := updateWithRetry(r.db, func(txn *badger.Txn) error {
		var inv models.Invitation
		if err := getJSON(txn, invitePrefix+invitationID, &inv); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperrors.NotFound("invalid or expired invitation")
			}
			return err
		}
		if err := inv.Transition(to, by, at); err != nil {
			return err
		}
		if err := setJSON(txn, invitePrefix+invitationID, inv); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return nil, wrapBadgerErr(err, "failed to update invitation")
	}
	r.log.WithFields(logrus.Fields{"invitationId": invitationID, "status": to, "userId": by}).Info("invitation answered")
	return &updated, nil
}
