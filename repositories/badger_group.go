package repositories

import (
	"context"
	"errors"

	"labchat_server/apperrors"
	"labchat_server/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const groupPrefix = "group:"

type BadgerGroupRepository struct {
	db  *badger.DB
	log *logrus.Logger
}

func NewBadgerGroupRepository(db *badger.DB, log *logrus.Logger) *BadgerGroupRepository {
	return &BadgerGroupRepository{db: db, log: log}
}

func (r *BadgerGroupRepository) CreateGroup(_ context.Context, group models.Group) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		key := groupPrefix + group.GroupID
		if _, err := txn.Get([]byte(key)); err == nil {
			return apperrors.Conflict("group already exists")
		}
		return setJSON(txn, key, group)
	})
	return wrapBadgerErr(err, "failed to create group")
}

func (r *BadgerGroupRepository) GetGroup(_ context.Context, groupID string) (*models.Group, error) {
	var group models.Group
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, groupPrefix+groupID, &group)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.NotFound("group not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to fetch group", err)
	}
	return &group, nil
}

func (r *BadgerGroupRepository) ListGroups(_ context.Context) ([]models.Group, error) {
	return r.scan(func(models.Group) bool { return true })
}

func (r *BadgerGroupRepository) ListGroupsForUser(_ context.Context, userID string) ([]models.Group, error) {
	return r.scan(func(g models.Group) bool {
		return g.CreatedBy == userID || g.IsMember(userID)
	})
}

func (r *BadgerGroupRepository) scan(keep func(models.Group) bool) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(groupPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var g models.Group
			if err := decodeItem(it.Item(), &g); err != nil {
				return err
			}
			if keep(g) {
				groups = append(groups, g)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("failed to list groups", err)
	}
	return groups, nil
}

// UpdateGroup runs the mutation inside one serializable transaction. Badger rejects the commit if
// the group changed after it was read, and the whole read-modify-write is replayed.
func (r *BadgerGroupRepository) UpdateGroup(_ context.Context, groupID string, mutate GroupMutation) (*models.Group, error) {
	var updated models.Group
	err := updateWithRetry(r.db, func(txn *badger.Txn) error {
		var group models.Group
		if err := getJSON(txn, groupPrefix+groupID, &group); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperrors.NotFound("group not found")
			}
			return err
		}
		if err := mutate(&group); err != nil {
			return err
		}
		if err := group.Validate(); err != nil {
			return err
		}
		group.Version++
		if err := setJSON(txn, groupPrefix+groupID, group); err != nil {
			return err
		}
		updated = group
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		r.log.WithField("groupId", groupID).Warn("group update kept conflicting")
		return nil, apperrors.Conflict("group was modified concurrently, please retry")
	}
	if err != nil {
		return nil, wrapBadgerErr(err, "failed to update group")
	}
	return &updated, nil
}

// wrapBadgerErr keeps application errors raised inside a transaction and wraps everything else.
func wrapBadgerErr(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Internal(message, err)
}
