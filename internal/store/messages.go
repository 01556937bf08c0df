package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/kiwiblue/internal/models"
)

// InsertMessage appends a message. Messages are never updated except for
// the read stamp.
func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	if err := s.conn(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// TouchConversation upserts owner's summary of the thread with counterpart
// after m, adding one to the unread count when the owner is the receiver.
func (s *Store) TouchConversation(ctx context.Context, ownerID, counterpartID uint, m *models.Message) error {
	unread := 0
	if m.ReceiverID == ownerID {
		unread = 1
	}
	at := m.CreatedAt
	row := &models.Conversation{
		OwnerID:       ownerID,
		CounterpartID: counterpartID,
		LastMessage:   m.Content,
		LastMessageAt: &at,
		LastSenderID:  m.SenderID,
		UnreadCount:   unread,
	}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "counterpart_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_message":    m.Content,
			"last_message_at": at,
			"last_sender_id":  m.SenderID,
			"unread_count":    gorm.Expr("conversations.unread_count + ?", unread),
			"updated_at":      s.Clock(),
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// MarkRead zeroes owner's unread count for counterpart and stamps every
// unread message from counterpart. The conversation row is written first
// so a concurrent send either lands before the stamp or after the reset.
func (s *Store) MarkRead(ctx context.Context, ownerID, counterpartID uint, at time.Time) (int64, error) {
	err := s.conn(ctx).Model(&models.Conversation{}).
		Where("owner_id = ? AND counterpart_id = ?", ownerID, counterpartID).
		Update("unread_count", 0).Error
	if err != nil {
		return 0, fmt.Errorf("reset unread: %w", err)
	}
	res := s.conn(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND read_at IS NULL", counterpartID, ownerID).
		Update("read_at", at)
	if res.Error != nil {
		return 0, fmt.Errorf("stamp read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UnreadTotal sums the owner's unread counts across all conversations.
func (s *Store) UnreadTotal(ctx context.Context, ownerID uint) (int64, error) {
	var total int64
	err := s.conn(ctx).Model(&models.Conversation{}).
		Select("COALESCE(SUM(unread_count), 0)").
		Where("owner_id = ?", ownerID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("unread total: %w", err)
	}
	return total, nil
}

// Conversations lists the owner's threads, most recent activity first.
func (s *Store) Conversations(ctx context.Context, ownerID uint) ([]models.Conversation, error) {
	var rows []models.Conversation
	err := s.conn(ctx).Where("owner_id = ?", ownerID).
		Order("last_message_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return rows, nil
}

// Thread returns up to limit messages between a and b older than beforeID
// (0 means newest), newest first.
func (s *Store) Thread(ctx context.Context, a, b, beforeID uint, limit int) ([]models.Message, error) {
	q := s.conn(ctx).
		Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))", a, b, b, a)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var msgs []models.Message
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	return msgs, nil
}

// Inbox returns messages received by owner after since, oldest first. A
// non-zero afterID resumes inside since itself, after that message.
func (s *Store) Inbox(ctx context.Context, ownerID uint, since time.Time, afterID uint, limit int) ([]models.Message, error) {
	q := s.conn(ctx).Where("receiver_id = ?", ownerID)
	if afterID == 0 {
		q = q.Where("created_at > ?", since)
	} else {
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", since, since, afterID)
	}
	var msgs []models.Message
	err := q.Order("created_at ASC").Order("id ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("load inbox: %w", err)
	}
	return msgs, nil
}
