package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gumroad/post-delivery/internal/domain"
	"github.com/gumroad/post-delivery/internal/guard"
	"github.com/gumroad/post-delivery/internal/mail"
	"github.com/gumroad/post-delivery/internal/realtime"
	"github.com/gumroad/post-delivery/internal/repo"
)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fixture struct {
	seller   *domain.Seller
	product  *domain.Product
	purchase *domain.Purchase
}

func seedFixture(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	s := &domain.Seller{ID: uuid.NewString(), ExternalID: "ext-" + uuid.NewString(), Email: "seller@example.com", Name: "Ada"}
	pr := &domain.Product{ID: uuid.NewString(), SellerID: s.ID, Name: "Course"}
	pu := &domain.Purchase{ID: uuid.NewString(), SellerID: s.ID, ProductID: pr.ID, Email: "buyer@example.com", CanContact: true}
	for _, rec := range []any{s, pr, pu} {
		if err := db.Create(rec).Error; err != nil {
			t.Fatalf("seed %T: %v", rec, err)
		}
	}
	pu.Seller = *s
	return fixture{seller: s, product: pr, purchase: pu}
}

func seedSellerPost(t *testing.T, db *gorm.DB, sellerID, title string, publishedAt time.Time) *domain.Post {
	t.Helper()
	p := &domain.Post{
		ID: uuid.NewString(), SellerID: sellerID,
		Title: title, Body: "<p>" + title + "</p>", Scope: domain.ScopeSeller,
		Published: true, PublishedAt: &publishedAt,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return p
}

// fakeAuthorizer answers eligibility questions from fixed fields.
type fakeAuthorizer struct {
	canSend bool
	canView bool
	err     error
}

func (f *fakeAuthorizer) CanSendEmails(context.Context, string) (bool, error) {
	return f.canSend, f.err
}

func (f *fakeAuthorizer) CanViewMissedPosts(context.Context, string, string, string) (bool, error) {
	return f.canView, f.err
}

// fakeMailer records dispatches and can fail selected subjects.
type fakeMailer struct {
	mu          sync.Mutex
	sent        []mail.Email
	failSubject map[string]error
}

func (f *fakeMailer) Send(_ context.Context, e mail.Email) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failSubject[e.Subject]; ok {
		return "", err
	}
	f.sent = append(f.sent, e)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newSender(db *gorm.DB, m mail.Mailer, store guard.Store) *SendService {
	return &SendService{
		DB:          db,
		Guard:       guard.New(store, time.Hour),
		Mailer:      m,
		Eligibility: &Eligibility{Authz: &fakeAuthorizer{canSend: true}},
		FromAddress: "noreply@example.com",
	}
}

func newNotifier(broker realtime.Broker) *realtime.Notifier {
	return &realtime.Notifier{Pub: broker, Log: zerolog.Nop()}
}
