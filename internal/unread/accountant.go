// Package unread derives the per-channel unread message and mention counts
// for the current user. The counters live on the channel entity but are
// only ever written through this package; generic channel payloads never
// touch them. Counters reset to zero only on an explicit read signal.
package unread

import (
	"sort"
	"time"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

// Accountant is scoped to one current user. The user is carried explicitly
// so nothing in here reads ambient global state.
type Accountant struct {
	currentUserID string
}

func NewAccountant(currentUserID string) *Accountant {
	return &Accountant{currentUserID: currentUserID}
}

func (a *Accountant) CurrentUserID() string { return a.currentUserID }

// OnMessageNew applies a new top-level message to the channel's counters.
// A message from someone else increments the counters; a message from the
// current user resets them, since sending implies having read everything
// before it. Thread replies never count.
func (a *Accountant) OnMessageNew(ch models.Channel, msg models.Message) models.Channel {
	if msg.IsReply() || msg.IsDeleted() {
		return ch
	}

	if msg.UserID == a.currentUserID {
		ch.Unread = models.UnreadCount{}
		ch.LastRead = &models.MessageRead{
			UserID:            a.currentUserID,
			LastReadAt:        msg.CreatedAt,
			LastReadMessageID: msg.ID,
		}
		return ch
	}

	ch.Unread.Messages++
	if msg.Mentions(a.currentUserID) {
		ch.Unread.MentionedMessages++
	}
	return ch
}

// OnMessageRead applies a read event. Only the current user's own reads
// reset the local counters; other users' read receipts are not tracked
// here.
func (a *Accountant) OnMessageRead(ch models.Channel, readerID string, at time.Time) models.Channel {
	if readerID != a.currentUserID {
		return ch
	}

	ch.Unread = models.UnreadCount{}
	ch.LastRead = &models.MessageRead{
		UserID:     a.currentUserID,
		LastReadAt: at,
	}
	return ch
}

// Seed initializes the counters from a REST channel snapshot. When the
// server supplied an unread marker its message count is trusted directly;
// the mention count is recomputed by scanning the fetched page newest-first
// and stopping at the first message older than the marker. The scan is
// bounded by the page size, so mentions buried deeper in history are not
// counted. That approximation is deliberate: widening it would change
// observable counts.
func (a *Accountant) Seed(ch models.Channel, page []models.Message, read *models.ReadStatePayload) models.Channel {
	sorted := make([]models.Message, len(page))
	copy(sorted, page)
	sort.Slice(sorted, func(i, j int) bool {
		// newest first
		return sorted[j].Before(sorted[i])
	})

	if read != nil {
		mentions := 0
		for _, msg := range sorted {
			if !msg.CreatedAt.After(read.LastReadAt) {
				break
			}
			if a.countable(msg) && msg.Mentions(a.currentUserID) {
				mentions++
			}
		}
		if mentions > read.UnreadMessages {
			mentions = read.UnreadMessages
		}
		ch.Unread = models.UnreadCount{
			Messages:          read.UnreadMessages,
			MentionedMessages: mentions,
		}
		ch.LastRead = &models.MessageRead{
			UserID:     a.currentUserID,
			LastReadAt: read.LastReadAt,
		}
		return ch
	}

	// no marker: everything fetched that someone else wrote is unread
	count := models.UnreadCount{}
	for _, msg := range sorted {
		if !a.countable(msg) {
			continue
		}
		count.Messages++
		if msg.Mentions(a.currentUserID) {
			count.MentionedMessages++
		}
	}
	ch.Unread = count
	ch.LastRead = nil
	return ch
}

func (a *Accountant) countable(msg models.Message) bool {
	return !msg.IsReply() && !msg.IsDeleted() && msg.UserID != a.currentUserID
}
