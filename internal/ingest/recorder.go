// Package ingest records the chats, users and memberships seen in group
// messages.
package ingest

import (
	"context"

	"plugbot/internal/store"
	"plugbot/pkg/bot"

	"go.uber.org/zap"
)

// Recorder is a dispatch observer writing group activity to the store.
type Recorder struct {
	store  store.Store
	logger *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(st store.Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: st, logger: logger.Named("ingest")}
}

// Observe records u. Only messages in group chats are considered; failures
// are logged and never block dispatch.
func (r *Recorder) Observe(ctx context.Context, u *bot.Update) {
	if !u.IsMessage() || !u.IsGroup() {
		return
	}
	chatID := u.Chat.ID

	if err := r.store.RecordChatSeen(ctx, *u.Chat); err != nil {
		r.logger.Warn("Failed to record chat", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	if u.From != nil {
		r.recordUser(ctx, chatID, *u.From)
	}

	for _, member := range u.NewChatMembers {
		r.recordUser(ctx, chatID, member)
	}

	if left := u.LeftChatMember; left != nil {
		if err := r.store.ForgetMember(ctx, chatID, left.ID); err != nil {
			r.logger.Warn("Failed to forget member",
				zap.Int64("chat_id", chatID),
				zap.Int64("user_id", left.ID),
				zap.Error(err))
		}
	}
}

func (r *Recorder) recordUser(ctx context.Context, chatID int64, user bot.User) {
	if err := r.store.RecordUserSeen(ctx, chatID, user); err != nil {
		r.logger.Warn("Failed to record user",
			zap.Int64("chat_id", chatID),
			zap.Int64("user_id", user.ID),
			zap.Error(err))
	}
}
