// Package services – PostService
//
// This file implements the read side of the pipeline: the missed-post finder
// and the sent-posts history consumed by UI and reporting layers.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gumroad/post-delivery/internal/domain"
	"github.com/gumroad/post-delivery/internal/repo"
)

// PostService exposes missed-post and sent-post lookups for a purchase.
type PostService struct {
	DB *gorm.DB
}

// FindMissed returns the alive posts targeted at the purchase that have no
// delivery record yet, oldest first. When workflowID is non-empty, only that
// workflow's posts are considered; the workflow must exist and belong to the
// purchase's seller.
//
// Each call re-queries the record store, so "missed" always reflects the
// state at call time, not at enqueue time.
func (s *PostService) FindMissed(ctx context.Context, purchaseID, workflowID string) ([]domain.Post, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "FindMissed",
		trace.WithAttributes(
			attribute.String("purchase.id", purchaseID),
			attribute.String("workflow.id", workflowID),
		),
	)
	defer span.End()

	purchase, err := repo.GetPurchase(ctx, s.DB, purchaseID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	if workflowID != "" {
		if _, err := repo.GetWorkflow(ctx, s.DB, workflowID, purchase.SellerID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrWorkflowNotFound
			}
			return nil, err
		}
	}
	return repo.ListMissedPosts(ctx, s.DB, purchase, workflowID)
}

// SentPosts returns one page of the purchase's delivery history (the most
// recent record per post, newest first) together with the total count.
func (s *PostService) SentPosts(ctx context.Context, purchaseID string, page, pageSize int) ([]domain.DeliveryRecord, int64, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "SentPosts",
		trace.WithAttributes(attribute.String("purchase.id", purchaseID)),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	if _, err := repo.GetPurchase(ctx, s.DB, purchaseID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrPurchaseNotFound
		}
		return nil, 0, err
	}
	total, err := repo.CountDeliveries(ctx, s.DB, purchaseID)
	if err != nil {
		return nil, 0, err
	}
	recs, err := repo.ListDeliveriesPage(ctx, s.DB, purchaseID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}
