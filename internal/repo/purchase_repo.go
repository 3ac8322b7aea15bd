// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for purchases,
// sellers, and workflows.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/gumroad/post-delivery/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetPurchase fetches a purchase by ID with its seller preloaded, so callers
// can evaluate seller eligibility without a second round trip. Returns
// ErrNotFound when the purchase does not exist.
func GetPurchase(ctx context.Context, db *gorm.DB, id string) (*domain.Purchase, error) {
	var p domain.Purchase
	err := db.WithContext(ctx).
		Preload("Seller").
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetSeller fetches a seller by ID. Returns ErrNotFound when missing.
func GetSeller(ctx context.Context, db *gorm.DB, id string) (*domain.Seller, error) {
	var s domain.Seller
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSellerByExternalID fetches a seller by its public external identifier.
// Returns ErrNotFound when missing.
func GetSellerByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Seller, error) {
	var s domain.Seller
	err := db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetWorkflow fetches an alive workflow owned by sellerID. Returns
// ErrNotFound when the workflow does not exist, is deleted, or belongs to a
// different seller.
func GetWorkflow(ctx context.Context, db *gorm.DB, id, sellerID string) (*domain.Workflow, error) {
	var w domain.Workflow
	err := db.WithContext(ctx).
		Where("id = ? AND seller_id = ?", id, sellerID).
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}
