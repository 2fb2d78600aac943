package repository

import (
	"gorm.io/gorm"

	"botdesk/internal/models"
)

// BroadcastRepository handles queue-backed broadcast jobs.
type BroadcastRepository struct {
	db *gorm.DB
}

func NewBroadcastRepository(db *gorm.DB) *BroadcastRepository {
	return &BroadcastRepository{db: db}
}

// CreateWithItems creates a broadcast and one pending item per unique chat in
// one transaction.
func (r *BroadcastRepository) CreateWithItems(b *models.Broadcast, chatIDs []int64) error {
	seen := make(map[int64]bool)
	unique := make([]int64, 0, len(chatIDs))
	for _, id := range chatIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	b.Status = models.BroadcastStatusPending
	b.TotalItems = len(unique)
	if len(unique) == 0 {
		b.Status = models.BroadcastStatusDone
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(b).Error; err != nil {
			return err
		}
		if len(unique) == 0 {
			return nil
		}

		items := make([]models.BroadcastItem, 0, len(unique))
		for _, chatID := range unique {
			items = append(items, models.BroadcastItem{
				BroadcastID: b.ID,
				ChatID:      chatID,
				Status:      models.BroadcastItemPending,
			})
		}
		return tx.CreateInBatches(&items, 500).Error
	})
}

// FindAll lists a tenant's broadcasts, newest first.
func (r *BroadcastRepository) FindAll(tenantID string, limit, page int) ([]models.Broadcast, int64, error) {
	var broadcasts []models.Broadcast
	var total int64

	db := r.db.Model(&models.Broadcast{}).Where("tenant_id = ?", tenantID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit, offset := pageBounds(limit, page)
	if err := db.Order("id DESC").Limit(limit).Offset(offset).Find(&broadcasts).Error; err != nil {
		return nil, 0, err
	}
	return broadcasts, total, nil
}

// FindByID returns a tenant's broadcast.
func (r *BroadcastRepository) FindByID(tenantID string, id uint) (*models.Broadcast, error) {
	var b models.Broadcast
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// FindNextActive picks the oldest running broadcast, or else the oldest pending one.
func (r *BroadcastRepository) FindNextActive() (*models.Broadcast, error) {
	var running models.Broadcast
	err := r.db.Where("status = ?", models.BroadcastStatusRunning).Order("id ASC").First(&running).Error
	if err == nil {
		return &running, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	var pending models.Broadcast
	if err := r.db.Where("status = ?", models.BroadcastStatusPending).Order("id ASC").First(&pending).Error; err != nil {
		return nil, err
	}
	return &pending, nil
}

func (r *BroadcastRepository) MarkRunning(id uint) error {
	return r.db.Model(&models.Broadcast{}).
		Where("id = ? AND status IN ?", id, []string{models.BroadcastStatusPending, models.BroadcastStatusRunning}).
		Update("status", models.BroadcastStatusRunning).Error
}

// Finalize sets a terminal status on a broadcast that is still active.
func (r *BroadcastRepository) Finalize(id uint, status, lastError string) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	return r.db.Model(&models.Broadcast{}).
		Where("id = ? AND status IN ?", id, []string{models.BroadcastStatusPending, models.BroadcastStatusRunning}).
		Updates(updates).Error
}

// Cancel stops a broadcast that has not finished yet.
func (r *BroadcastRepository) Cancel(tenantID string, id uint) (bool, error) {
	res := r.db.Model(&models.Broadcast{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, id,
			[]string{models.BroadcastStatusPending, models.BroadcastStatusRunning}).
		Update("status", models.BroadcastStatusCanceled)
	return res.RowsAffected > 0, res.Error
}

func (r *BroadcastRepository) CountPendingItems(id uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.BroadcastItem{}).
		Where("broadcast_id = ? AND status = ?", id, models.BroadcastItemPending).
		Count(&count).Error
	return count, err
}

func (r *BroadcastRepository) ListPendingItems(id uint, limit int) ([]models.BroadcastItem, error) {
	var items []models.BroadcastItem
	q := r.db.Where("broadcast_id = ? AND status = ?", id, models.BroadcastItemPending).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&items).Error
	return items, err
}

// MarkItemDone marks an item as sent and increments the processed counter.
func (r *BroadcastRepository) MarkItemDone(broadcastID, itemID uint) error {
	return r.markItem(broadcastID, itemID, models.BroadcastItemDone, "")
}

// MarkItemFailed marks an item as failed and increments both counters.
func (r *BroadcastRepository) MarkItemFailed(broadcastID, itemID uint, errMsg string) error {
	return r.markItem(broadcastID, itemID, models.BroadcastItemFailed, errMsg)
}

func (r *BroadcastRepository) markItem(broadcastID, itemID uint, status, errMsg string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.BroadcastItem{}).
			Where("id = ? AND broadcast_id = ? AND status = ?", itemID, broadcastID, models.BroadcastItemPending).
			Updates(map[string]interface{}{
				"status":     status,
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": errMsg,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		counters := map[string]interface{}{
			"processed_items": gorm.Expr("processed_items + 1"),
		}
		if status == models.BroadcastItemFailed {
			counters["failed_items"] = gorm.Expr("failed_items + 1")
			counters["last_error"] = errMsg
		}
		return tx.Model(&models.Broadcast{}).Where("id = ?", broadcastID).Updates(counters).Error
	})
}
