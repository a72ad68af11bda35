package repositories

import (
	"context"
	"errors"

	"labchat_server/apperrors"
	"labchat_server/models"
	"labchat_server/utils"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const (
	userPrefix      = "user:"
	userEmailPrefix = "useremail:"
)

type BadgerUserRepository struct {
	db *badger.DB
}

func NewBadgerUserRepository(db *badger.DB) *BadgerUserRepository {
	return &BadgerUserRepository{db: db}
}

func (r *BadgerUserRepository) GetUser(_ context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userPrefix+userID, &profile)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to fetch user", err)
	}
	return &profile, nil
}

func (r *BadgerUserRepository) GetUserByEmail(_ context.Context, email string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userEmailPrefix + utils.NormalizeEmail(email)))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, userPrefix+string(id), &profile)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to fetch user", err)
	}
	return &profile, nil
}

func (r *BadgerUserRepository) GetUsers(_ context.Context, userIDs []string) (map[string]models.UserProfile, error) {
	profiles := make(map[string]models.UserProfile, len(userIDs))
	err := r.db.View(func(txn *badger.Txn) error {
		for _, id := range lo.Uniq(userIDs) {
			var p models.UserProfile
			err := getJSON(txn, userPrefix+id, &p)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			profiles[id] = p
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("failed to fetch users", err)
	}
	return profiles, nil
}

func (r *BadgerUserRepository) PutUser(_ context.Context, profile models.UserProfile) error {
	profile.Email = utils.NormalizeEmail(profile.Email)
	err := r.db.Update(func(txn *badger.Txn) error {
		var previous models.UserProfile
		err := getJSON(txn, userPrefix+profile.UserID, &previous)
		switch {
		case err == nil && previous.Email != profile.Email:
			if err := txn.Delete([]byte(userEmailPrefix + previous.Email)); err != nil {
				return err
			}
		case err != nil && !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := setJSON(txn, userPrefix+profile.UserID, profile); err != nil {
			return err
		}
		return txn.Set([]byte(userEmailPrefix+profile.Email), []byte(profile.UserID))
	})
	if err != nil {
		return apperrors.Internal("failed to store user", err)
	}
	return nil
}
