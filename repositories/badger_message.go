package repositories

import (
	"context"
	"encoding/json"
	"time"

	"labchat_server/apperrors"
	"labchat_server/models"

	"github.com/dgraph-io/badger/v4"
)

// Messages are stored under msg:{groupId}:{sortKey}. The zero-padded sort key keeps a group's
// messages in chronological key order, so history is a reverse prefix scan.
const messagePrefix = "msg:"

type BadgerMessageRepository struct {
	db *badger.DB
}

func NewBadgerMessageRepository(db *badger.DB) *BadgerMessageRepository {
	return &BadgerMessageRepository{db: db}
}

func groupMessagePrefix(groupID string) string {
	return messagePrefix + groupID + ":"
}

func (r *BadgerMessageRepository) AppendMessage(_ context.Context, msg models.ChatMessage) error {
	if msg.SortKey == "" {
		msg.SortKey = models.MessageSortKey(msg.Timestamp, msg.MessageID)
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, groupMessagePrefix(msg.GroupID)+msg.SortKey, msg)
	})
	if err != nil {
		return apperrors.Internal("failed to store message", err)
	}
	return nil
}

func (r *BadgerMessageRepository) ListMessages(_ context.Context, groupID, before string, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(groupMessagePrefix(groupID))
		// 0xff sorts after every sort key, so an empty cursor starts at the newest message.
		seek := append(append([]byte{}, prefix...), 0xff)
		if before != "" {
			seek = append(append([]byte{}, prefix...), before...)
		}

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if before != "" && string(item.Key()[len(prefix):]) >= before {
				continue
			}
			if len(messages) == limit {
				break
			}
			var msg models.ChatMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			msg.SortKey = string(item.Key()[len(prefix):])
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("failed to fetch group messages", err)
	}
	return messages, nil
}

func (r *BadgerMessageRepository) CountMessagesAfter(_ context.Context, groupID string, after time.Time) (int, error) {
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(groupMessagePrefix(groupID))
		start := append(append([]byte{}, prefix...), models.SortKeyAfter(after)...)
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.Internal("failed to count messages", err)
	}
	return count, nil
}
