package cron

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"botdesk/internal/models"
	"botdesk/internal/pkg/telegram"
	"botdesk/internal/pkg/utils"
)

const broadcastBatchSize = 20

// processBroadcasts sends the next batch of the oldest active broadcast and
// finalizes it once no items are pending.
func (s *Scheduler) processBroadcasts() {
	defer s.recoverFromPanic("processBroadcasts")

	b, err := s.repos.Broadcast.FindNextActive()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return
		}
		s.logger.Error("Failed to fetch broadcast", zap.Error(err))
		return
	}

	_ = s.repos.Broadcast.MarkRunning(b.ID)

	bot, err := s.repos.Bot.FindByID(b.BotID)
	if err != nil {
		_ = s.repos.Broadcast.Finalize(b.ID, models.BroadcastStatusFailed, "bot not found: "+b.BotID)
		return
	}
	if bot.Status != models.BotStatusActive {
		_ = s.repos.Broadcast.Finalize(b.ID, models.BroadcastStatusFailed, "bot is disabled")
		return
	}

	pendingCount, err := s.repos.Broadcast.CountPendingItems(b.ID)
	if err != nil {
		s.logger.Error("Failed to count pending broadcast items", zap.Uint("broadcast_id", b.ID), zap.Error(err))
		return
	}
	if pendingCount == 0 {
		s.finalizeBroadcast(b.ID)
		return
	}

	items, err := s.repos.Broadcast.ListPendingItems(b.ID, broadcastBatchSize)
	if err != nil {
		s.logger.Error("Failed to list broadcast items", zap.Uint("broadcast_id", b.ID), zap.Error(err))
		return
	}

	api := telegram.NewBotAPI(s.cfg.Telegram.APIURL, bot.Token)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
	defer cancel()

	for _, item := range items {
		if _, err := api.SendMessage(ctx, item.ChatID, b.Message, nil); err != nil {
			if telegram.IsBlockedByUser(err) {
				_ = s.repos.Customer.MarkBlockedByChat(bot.ID, item.ChatID)
			}
			_ = s.repos.Broadcast.MarkItemFailed(b.ID, item.ID, utils.TrimErr(err.Error()))
			continue
		}
		_ = s.repos.Broadcast.MarkItemDone(b.ID, item.ID)
	}

	pendingAfter, err := s.repos.Broadcast.CountPendingItems(b.ID)
	if err != nil {
		return
	}
	if pendingAfter == 0 {
		s.finalizeBroadcast(b.ID)
	}
}

func (s *Scheduler) finalizeBroadcast(id uint) {
	if err := s.repos.Broadcast.Finalize(id, models.BroadcastStatusDone, ""); err != nil {
		s.logger.Error("Failed to finalize broadcast", zap.Uint("broadcast_id", id), zap.Error(err))
		return
	}
	s.logger.Info("Broadcast finished", zap.Uint("broadcast_id", id))
}
