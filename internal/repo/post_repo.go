// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Post model,
// including the missed-post query at the heart of the delivery pipeline.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/gumroad/post-delivery/internal/domain"
)

// GetPost fetches an alive post by ID. Soft-deleted posts are excluded by
// GORM's default scope; unpublished posts return ErrNotFound because they
// are not deliverable.
func GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.Post, error) {
	var p domain.Post
	err := db.WithContext(ctx).
		Where("id = ? AND published = ?", id, true).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// targetedPosts composes the WHERE clause selecting every alive post aimed at
// the given purchase: the seller's blanket posts, posts for the purchased
// product, posts for the purchased variant, and posts of workflows the
// purchase is enrolled in (a workflow applies when it is alive, owned by the
// same seller, and either seller-wide or scoped to the purchased product).
func targetedPosts(db *gorm.DB, p *domain.Purchase) *gorm.DB {
	q := db.
		Where("posts.seller_id = ? AND posts.published = ?", p.SellerID, true)

	variantID := ""
	if p.VariantID != nil {
		variantID = *p.VariantID
	}

	return q.Where(
		db.Session(&gorm.Session{NewDB: true}).
			Where("posts.scope = ?", domain.ScopeSeller).
			Or("posts.scope = ? AND posts.product_id = ?", domain.ScopeProduct, p.ProductID).
			Or("posts.scope = ? AND posts.variant_id = ?", domain.ScopeVariant, variantID).
			Or("posts.scope = ? AND posts.workflow_id IN (?)",
				domain.ScopeWorkflow,
				db.Session(&gorm.Session{NewDB: true}).
					Model(&domain.Workflow{}).
					Select("id").
					Where("seller_id = ? AND (product_id IS NULL OR product_id = ?)", p.SellerID, p.ProductID),
			),
	)
}

// ListMissedPosts returns the alive posts targeted at the purchase that have
// no delivery record for it, oldest first. When workflowID is non-empty the
// result is restricted to posts of that workflow.
//
// The query is a fresh snapshot each call: posts delivered since the last
// invocation drop out, newly published targeted posts appear.
func ListMissedPosts(ctx context.Context, db *gorm.DB, p *domain.Purchase, workflowID string) ([]domain.Post, error) {
	q := targetedPosts(db.WithContext(ctx).Model(&domain.Post{}), p)

	if workflowID != "" {
		q = q.Where("posts.scope = ? AND posts.workflow_id = ?", domain.ScopeWorkflow, workflowID)
	}

	delivered := db.Session(&gorm.Session{NewDB: true}).
		Model(&domain.DeliveryRecord{}).
		Select("post_id").
		Where("purchase_id = ?", p.ID)

	var out []domain.Post
	err := q.
		Where("posts.id NOT IN (?)", delivered).
		Order("posts.published_at asc, posts.created_at asc").
		Find(&out).Error
	return out, err
}
