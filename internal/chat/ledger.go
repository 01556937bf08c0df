// Package chat keeps the conversation ledger: messages, per-thread
// summaries with unread counts, and the live push that tells an online
// user something changed.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sujalbistaa/kiwiblue/internal/models"
	"github.com/sujalbistaa/kiwiblue/internal/store"
	"github.com/sujalbistaa/kiwiblue/internal/ws"
)

// MaxContentRunes bounds a single message.
const MaxContentRunes = 2000

const (
	defaultPage = 50
	maxPage     = 200
	maxSync     = 500

	// Reconcile hands back a server time slightly in the past so a message
	// committed while the sync was being read is included next time.
	syncOverlap = 5 * time.Second
)

// Push event types.
const (
	EventMessage = "message"
	EventRead    = "read"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrUnknownAccount = errors.New("unknown account")
)

// Notifier delivers best-effort events to a user's open sockets.
type Notifier interface {
	Push(userID uint, ev ws.Event)
}

type Ledger struct {
	store    *store.Store
	notifier Notifier
}

// NewLedger returns a Ledger. A nil notifier disables live push.
func NewLedger(st *store.Store, n Notifier) *Ledger {
	return &Ledger{store: st, notifier: n}
}

// MessagePush is the payload of a message event.
type MessagePush struct {
	Message     models.Message `json:"message"`
	UnreadTotal int64          `json:"unreadTotal"`
}

// ReadPush is the payload of a read receipt.
type ReadPush struct {
	ReaderID uint      `json:"readerId"`
	Count    int64     `json:"count"`
	ReadAt   time.Time `json:"readAt"`
}

// Send stores a message and updates both sides' summaries in one
// transaction, then pushes it to the receiver.
func (l *Ledger) Send(ctx context.Context, senderID, receiverID uint, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return nil, fmt.Errorf("%w: content is empty", ErrInvalidMessage)
	case utf8.RuneCountInString(content) > MaxContentRunes:
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrInvalidMessage, MaxContentRunes)
	case senderID == receiverID:
		return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalidMessage)
	}

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  l.store.Clock().UTC(),
	}
	err := l.store.Transaction(ctx, func(tx *store.Store) error {
		if err := l.requireActive(ctx, tx, senderID, receiverID); err != nil {
			return err
		}
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		if err := tx.TouchConversation(ctx, receiverID, senderID, msg); err != nil {
			return err
		}
		return tx.TouchConversation(ctx, senderID, receiverID, msg)
	})
	if err != nil {
		return nil, err
	}

	if l.notifier != nil {
		total, err := l.store.UnreadTotal(ctx, receiverID)
		if err != nil {
			slog.Warn("unread total for push failed", "receiverId", receiverID, "err", err)
		}
		l.notifier.Push(receiverID, ws.Event{Type: EventMessage, Data: MessagePush{Message: *msg, UnreadTotal: total}})
	}
	return msg, nil
}

func (l *Ledger) requireActive(ctx context.Context, tx *store.Store, ids ...uint) error {
	for _, id := range ids {
		acct, err := tx.PeekAccount(ctx, id)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !acct.Active) {
			return fmt.Errorf("%w: %d", ErrUnknownAccount, id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Open marks the owner's thread with counterpart as read. The counterpart's
// own summary is untouched; they get a read receipt instead.
func (l *Ledger) Open(ctx context.Context, ownerID, counterpartID uint) (int64, error) {
	at := l.store.Clock().UTC()
	var marked int64
	err := l.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		marked, err = tx.MarkRead(ctx, ownerID, counterpartID, at)
		return err
	})
	if err != nil {
		return 0, err
	}
	if marked > 0 && l.notifier != nil {
		l.notifier.Push(counterpartID, ws.Event{Type: EventRead, Data: ReadPush{ReaderID: ownerID, Count: marked, ReadAt: at}})
	}
	return marked, nil
}

// UnreadTotal is the badge count.
func (l *Ledger) UnreadTotal(ctx context.Context, ownerID uint) (int64, error) {
	return l.store.UnreadTotal(ctx, ownerID)
}

// Conversations is the owner's inbox, most recent first.
func (l *Ledger) Conversations(ctx context.Context, ownerID uint) ([]models.Conversation, error) {
	return l.store.Conversations(ctx, ownerID)
}

// History pages backwards through a thread. It returns at most limit
// messages older than beforeID, in chronological order.
func (l *Ledger) History(ctx context.Context, ownerID, counterpartID, beforeID uint, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = defaultPage
	}
	if limit > maxPage {
		limit = maxPage
	}
	msgs, err := l.store.Thread(ctx, ownerID, counterpartID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Sync is everything a reconnecting client needs to catch up. When More is
// set the inbox was cut short and the client should call again at once with
// ServerTime and AfterID.
type Sync struct {
	Messages      []models.Message      `json:"messages"`
	Conversations []models.Conversation `json:"conversations"`
	UnreadTotal   int64                 `json:"unreadTotal"`
	ServerTime    time.Time             `json:"serverTime"`
	AfterID       uint                  `json:"afterId,omitempty"`
	More          bool                  `json:"more"`
}

// Reconcile returns what the owner may have missed since the given cursor.
// Clients pass the previous ServerTime and AfterID on the next call and drop
// messages they already hold by id.
func (l *Ledger) Reconcile(ctx context.Context, ownerID uint, since time.Time, afterID uint) (*Sync, error) {
	now := l.store.Clock().UTC()
	msgs, err := l.store.Inbox(ctx, ownerID, since.UTC(), afterID, maxSync)
	if err != nil {
		return nil, err
	}
	convs, err := l.store.Conversations(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	total, err := l.store.UnreadTotal(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := &Sync{Messages: msgs, Conversations: convs, UnreadTotal: total, ServerTime: now.Add(-syncOverlap)}
	if len(msgs) == maxSync {
		last := msgs[len(msgs)-1]
		out.ServerTime, out.AfterID, out.More = last.CreatedAt.UTC(), last.ID, true
	}
	return out, nil
}
