// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for delivery
// records: the durable proof that a post was emailed to a purchase.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gumroad/post-delivery/internal/domain"
)

// ReplaceDelivery removes any prior delivery record for (postID, purchaseID)
// and inserts a fresh one, as a single transactional unit. Callers therefore
// never observe zero or two records for a pair mid-resend.
//
// The db handle may already be inside a transaction; gorm nests via
// savepoints in that case.
func ReplaceDelivery(ctx context.Context, db *gorm.DB, postID, purchaseID, emailID string) (*domain.DeliveryRecord, error) {
	rec := &domain.DeliveryRecord{
		ID:          uuid.NewString(),
		PostID:      postID,
		PurchaseID:  purchaseID,
		EmailID:     emailID,
		DeliveredAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("post_id = ? AND purchase_id = ?", postID, purchaseID).
			Delete(&domain.DeliveryRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetDelivery returns the delivery record for (postID, purchaseID), or
// ErrNotFound when the pair has never been delivered.
func GetDelivery(ctx context.Context, db *gorm.DB, postID, purchaseID string) (*domain.DeliveryRecord, error) {
	var rec domain.DeliveryRecord
	err := db.WithContext(ctx).
		Where("post_id = ? AND purchase_id = ?", postID, purchaseID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListDeliveries returns the purchase's delivery records newest first, with
// the delivered post preloaded. Because a pair holds at most one record, the
// result is exactly "the most recent send per post".
func ListDeliveries(ctx context.Context, db *gorm.DB, purchaseID string) ([]domain.DeliveryRecord, error) {
	var out []domain.DeliveryRecord
	err := db.WithContext(ctx).
		Preload("Post").
		Where("purchase_id = ?", purchaseID).
		Order("delivered_at desc").
		Find(&out).Error
	return out, err
}

// ListDeliveriesPage returns one page of the purchase's delivery records,
// newest first, with the delivered post preloaded.
func ListDeliveriesPage(ctx context.Context, db *gorm.DB, purchaseID string, offset, limit int) ([]domain.DeliveryRecord, error) {
	var out []domain.DeliveryRecord
	err := db.WithContext(ctx).
		Preload("Post").
		Where("purchase_id = ?", purchaseID).
		Order("delivered_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountDeliveries returns the number of delivery records for a purchase.
func CountDeliveries(ctx context.Context, db *gorm.DB, purchaseID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.DeliveryRecord{}).
		Where("purchase_id = ?", purchaseID).
		Count(&total).Error
	return total, err
}
