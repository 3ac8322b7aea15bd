// Package domain defines the persistence models for sellers, purchases,
// posts, workflows, and delivery records. These types are mapped with GORM
// and form the core data layer of the post-delivery service.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Post targeting scopes. A post reaches either every purchase of a seller,
// every purchase of one product, every purchase of one variant, or every
// purchase enrolled in a workflow.
const (
	ScopeSeller   = "seller"
	ScopeProduct  = "product"
	ScopeVariant  = "variant"
	ScopeWorkflow = "workflow"
)

// Seller represents a creator who publishes products and sends posts to
// their customers.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ExternalID: opaque public identifier, used to derive the seller's
//     realtime channel name; unique.
//   - Email / Name: contact and display data.
//   - Suspended: when true, the seller may not send creator emails.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type Seller struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	ExternalID string         `json:"external_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_seller_external"`
	Email      string         `json:"email"       gorm:"type:varchar(255);not null"`
	Name       string         `json:"name"        gorm:"type:varchar(255);not null"`
	Suspended  bool           `json:"suspended"   gorm:"not null;default:false"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Seller.
func (Seller) TableName() string { return "sellers" }

// Product is a sellable listing owned by a seller. Posts may target all
// purchases of a product.
type Product struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	SellerID  string         `json:"seller_id"  gorm:"type:char(36);not null;index:idx_seller_products"`
	Name      string         `json:"name"       gorm:"type:varchar(255);not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	Seller Seller `json:"-" gorm:"foreignKey:SellerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// Variant is a purchasable variation of a product (tier, format, edition).
// Posts may target all purchases of one variant.
type Variant struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	ProductID string         `json:"product_id" gorm:"type:char(36);not null;index:idx_product_variants"`
	Name      string         `json:"name"       gorm:"type:varchar(255);not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	Product Product `json:"-" gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Variant.
func (Variant) TableName() string { return "variants" }

// Purchase represents one completed (or free) transaction by a customer.
// The delivery pipeline reads purchases to decide which posts a customer
// should receive and where to email them.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SellerID / ProductID / VariantID: ownership and targeting references;
//     VariantID is nil for purchases without a variant.
//   - Email: the recipient address for creator emails.
//   - CanContact: false when the customer opted out ("do not disturb").
//   - SubscriptionID: optional membership context carried on outbound mail.
type Purchase struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	SellerID       string         `json:"seller_id"       gorm:"type:char(36);not null;index:idx_seller_purchases"`
	ProductID      string         `json:"product_id"      gorm:"type:char(36);not null;index:idx_product_purchases"`
	VariantID      *string        `json:"variant_id,omitempty" gorm:"type:char(36)"`
	Email          string         `json:"email"           gorm:"type:varchar(255);not null"`
	CanContact     bool           `json:"can_contact"     gorm:"not null;default:true"`
	SubscriptionID *string        `json:"subscription_id,omitempty" gorm:"type:char(36)"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`

	// Seller is preloaded by the repository so eligibility checks can run
	// without a second query.
	Seller  Seller  `json:"-" gorm:"foreignKey:SellerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Product Product `json:"-" gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Purchase.
func (Purchase) TableName() string { return "purchases" }

// Workflow is an automated sequence of posts a purchase may be enrolled in.
// A workflow with a nil ProductID applies to every purchase of the seller;
// otherwise only to purchases of that product.
type Workflow struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	SellerID  string         `json:"seller_id"  gorm:"type:char(36);not null;index:idx_seller_workflows"`
	ProductID *string        `json:"product_id,omitempty" gorm:"type:char(36)"`
	Name      string         `json:"name"       gorm:"type:varchar(255);not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	Seller Seller `json:"-" gorm:"foreignKey:SellerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Workflow.
func (Workflow) TableName() string { return "workflows" }

// Post is a broadcast message authored by a seller and targeted at some
// subset of their purchases. The pipeline only reads posts; authoring and
// editing happen elsewhere.
//
// A post is "alive" when it is published and not soft-deleted. Targeting is
// expressed by Scope plus the matching reference column:
//   - ScopeSeller:   every purchase of SellerID
//   - ScopeProduct:  purchases of ProductID
//   - ScopeVariant:  purchases of VariantID
//   - ScopeWorkflow: purchases enrolled in WorkflowID
type Post struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	SellerID    string         `json:"seller_id"   gorm:"type:char(36);not null;index:idx_seller_posts"`
	Title       string         `json:"title"       gorm:"type:varchar(255);not null"`
	Body        string         `json:"body"        gorm:"type:text;not null"`
	Scope       string         `json:"scope"       gorm:"type:varchar(16);not null;check:scope IN ('seller','product','variant','workflow')"`
	ProductID   *string        `json:"product_id,omitempty"  gorm:"type:char(36)"`
	VariantID   *string        `json:"variant_id,omitempty"  gorm:"type:char(36)"`
	WorkflowID  *string        `json:"workflow_id,omitempty" gorm:"type:char(36);index"`
	Published   bool           `json:"published"   gorm:"not null;default:false"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`

	Seller Seller `json:"-" gorm:"foreignKey:SellerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// Alive reports whether the post is published and not soft-deleted.
// Only alive posts are candidates for delivery.
func (p *Post) Alive() bool { return p.Published && !p.DeletedAt.Valid }

// DeliveryRecord is durable proof that a specific post was emailed to a
// specific purchase. At most one record exists per (post, purchase) pair;
// a resend removes the prior record before inserting the new one inside a
// single transaction, so "latest send" is always well-defined.
type DeliveryRecord struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	PostID      string    `json:"post_id"      gorm:"type:char(36);not null;uniqueIndex:ux_delivery_post_purchase,priority:1"`
	PurchaseID  string    `json:"purchase_id"  gorm:"type:char(36);not null;uniqueIndex:ux_delivery_post_purchase,priority:2;index"`
	EmailID     string    `json:"email_id"     gorm:"type:varchar(128);not null"`
	DeliveredAt time.Time `json:"delivered_at" gorm:"not null;index"`

	Post     Post     `json:"-" gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Purchase Purchase `json:"-" gorm:"foreignKey:PurchaseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DeliveryRecord.
func (DeliveryRecord) TableName() string { return "delivery_records" }
