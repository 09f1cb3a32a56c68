package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/candemirel/vitrin-backend/internal/audit"
	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"github.com/candemirel/vitrin-backend/pkg/enums"
	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"gorm.io/gorm"
)

type fakeRepository struct {
	coupons      map[string]*models.Coupon
	usageCount   map[int64]int64
	perUserCount map[string]int64
	usages       []*models.CouponUsage
	created      []*models.Coupon
	updated      []*models.Coupon
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		coupons:      map[string]*models.Coupon{},
		usageCount:   map[int64]int64{},
		perUserCount: map[string]int64{},
	}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, coupon *models.Coupon) error {
	coupon.ID = int64(len(f.created) + 1)
	f.created = append(f.created, coupon)
	f.coupons[coupon.Code] = coupon
	return nil
}

func (f *fakeRepository) Update(ctx context.Context, coupon *models.Coupon) error {
	f.updated = append(f.updated, coupon)
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id int64) (*models.Coupon, error) {
	for _, coupon := range f.coupons {
		if coupon.ID == id {
			return coupon, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	if coupon, ok := f.coupons[code]; ok {
		return coupon, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) List(ctx context.Context, includeInactive bool) ([]models.Coupon, error) {
	var out []models.Coupon
	for _, coupon := range f.coupons {
		if includeInactive || coupon.IsActive {
			out = append(out, *coupon)
		}
	}
	return out, nil
}

func (f *fakeRepository) FindCandidatesForUser(ctx context.Context, userEmail string, at time.Time) ([]models.Coupon, error) {
	var out []models.Coupon
	for _, coupon := range f.coupons {
		if !coupon.IsActive {
			continue
		}
		if coupon.StartsAt != nil && at.Before(*coupon.StartsAt) {
			continue
		}
		if coupon.ExpiresAt != nil && at.After(*coupon.ExpiresAt) {
			continue
		}
		if coupon.UserEmail != nil && *coupon.UserEmail != userEmail {
			continue
		}
		out = append(out, *coupon)
	}
	return out, nil
}

func (f *fakeRepository) CountUsages(ctx context.Context, couponID int64) (int64, error) {
	return f.usageCount[couponID], nil
}

func (f *fakeRepository) CountUsagesByUser(ctx context.Context, couponID int64, userEmail string) (int64, error) {
	return f.perUserCount[userEmail], nil
}

func (f *fakeRepository) CreateUsage(ctx context.Context, usage *models.CouponUsage) error {
	f.usages = append(f.usages, usage)
	return nil
}

type fakeAudit struct {
	entries []audit.RecordEntryInput
}

func (f *fakeAudit) Record(ctx context.Context, input audit.RecordEntryInput) (*models.AuditLog, error) {
	f.entries = append(f.entries, input)
	return &models.AuditLog{}, nil
}

func (f *fakeAudit) RecordTx(ctx context.Context, tx *gorm.DB, input audit.RecordEntryInput) (*models.AuditLog, error) {
	return f.Record(ctx, input)
}

func (f *fakeAudit) ListByEntity(ctx context.Context, entity, entityID string) ([]models.AuditLog, error) {
	return nil, nil
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func newTestService(t *testing.T, repo Repository, now time.Time) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:  repo,
		Audit: &fakeAudit{},
		Now:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func TestService_ValidateRejectReasons(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepository()

	repo.coupons["INACTIVE"] = &models.Coupon{ID: 1, Code: "INACTIVE", Type: enums.CouponTypeFixed, Value: 100}
	repo.coupons["SOON"] = &models.Coupon{ID: 2, Code: "SOON", Type: enums.CouponTypeFixed, Value: 100, IsActive: true, StartsAt: timePtr(now.Add(time.Hour))}
	repo.coupons["GONE"] = &models.Coupon{ID: 3, Code: "GONE", Type: enums.CouponTypeFixed, Value: 100, IsActive: true, ExpiresAt: timePtr(now.Add(-time.Hour))}
	repo.coupons["BIGONLY"] = &models.Coupon{ID: 4, Code: "BIGONLY", Type: enums.CouponTypeFixed, Value: 100, IsActive: true, MinOrderAmount: intPtr(5000)}
	repo.coupons["MAXED"] = &models.Coupon{ID: 5, Code: "MAXED", Type: enums.CouponTypeFixed, Value: 100, IsActive: true, UsageLimit: intPtr(2)}
	repo.usageCount[5] = 2
	repo.coupons["ONCEEACH"] = &models.Coupon{ID: 6, Code: "ONCEEACH", Type: enums.CouponTypeFixed, Value: 100, IsActive: true, PerUserLimit: intPtr(1)}
	repo.perUserCount["ayse@example.com"] = 1
	repo.coupons["ZERO"] = &models.Coupon{ID: 7, Code: "ZERO", Type: enums.CouponTypePercent, Value: 10, IsActive: true, MaxDiscountAmount: intPtr(0)}
	repo.coupons["PRIVATE"] = &models.Coupon{ID: 8, Code: "PRIVATE", Type: enums.CouponTypeFixed, Value: 100, IsActive: true, UserEmail: strPtr("mehmet@example.com")}

	svc := newTestService(t, repo, now)

	tests := []struct {
		name      string
		code      string
		userEmail string
		want      RejectReason
	}{
		{name: "missing code", code: "", want: RejectMissingCode},
		{name: "unknown code", code: "NOPE", want: RejectNotFound},
		{name: "scoped to another user", code: "PRIVATE", userEmail: "ayse@example.com", want: RejectNotFound},
		{name: "inactive", code: "INACTIVE", want: RejectInactive},
		{name: "not started", code: "SOON", want: RejectNotStarted},
		{name: "expired", code: "GONE", want: RejectExpired},
		{name: "min order not met", code: "BIGONLY", want: RejectMinOrderNotMet},
		{name: "usage limit reached", code: "MAXED", want: RejectUsageLimitReached},
		{name: "per-user limit reached", code: "ONCEEACH", userEmail: "ayse@example.com", want: RejectPerUserLimitReached},
		{name: "invalid discount", code: "ZERO", want: RejectInvalidDiscount},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := svc.Validate(context.Background(), tc.code, 1000, tc.userEmail)
			if err != nil {
				t.Fatalf("Validate error: %v", err)
			}
			if result.Valid {
				t.Fatal("expected rejection")
			}
			if result.Reason != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, result.Reason)
			}
		})
	}
}

func TestService_ValidateExpiryBoundary(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.coupons["EDGE"] = &models.Coupon{ID: 1, Code: "EDGE", Type: enums.CouponTypeFixed, Value: 100, IsActive: true, ExpiresAt: timePtr(now)}

	svc := newTestService(t, repo, now)

	// A coupon expiring exactly now is still honored. It only turns
	// expired once the clock moves past expires_at.
	result, err := svc.Validate(context.Background(), "EDGE", 1000, "ayse@example.com")
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected coupon valid at expiry instant, got reason %q", result.Reason)
	}

	late := newTestService(t, repo, now.Add(time.Second))
	result, err = late.Validate(context.Background(), "EDGE", 1000, "ayse@example.com")
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if result.Valid || result.Reason != RejectExpired {
		t.Fatalf("expected expired rejection past expiry, got valid=%v reason=%q", result.Valid, result.Reason)
	}
}

func TestService_ValidatePercentDiscount(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.coupons["SAVE10"] = &models.Coupon{ID: 1, Code: "SAVE10", Type: enums.CouponTypePercent, Value: 10, IsActive: true}

	svc := newTestService(t, repo, now)

	result, err := svc.Validate(context.Background(), "save10", 1000, "ayse@example.com")
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid coupon, got reason %q", result.Reason)
	}
	if result.Discount != 100 {
		t.Fatalf("expected discount 100, got %d", result.Discount)
	}
}

func TestDiscountClamping(t *testing.T) {
	tests := []struct {
		name     string
		coupon   models.Coupon
		subtotal int
		want     int
	}{
		{
			name:     "fixed value",
			coupon:   models.Coupon{Type: enums.CouponTypeFixed, Value: 250},
			subtotal: 1000,
			want:     250,
		},
		{
			name:     "fixed clamped to subtotal",
			coupon:   models.Coupon{Type: enums.CouponTypeFixed, Value: 2500},
			subtotal: 1000,
			want:     1000,
		},
		{
			name:     "percent rounds down",
			coupon:   models.Coupon{Type: enums.CouponTypePercent, Value: 15},
			subtotal: 999,
			want:     149,
		},
		{
			name:     "percent clamped to max discount",
			coupon:   models.Coupon{Type: enums.CouponTypePercent, Value: 50, MaxDiscountAmount: intPtr(300)},
			subtotal: 1000,
			want:     300,
		},
		{
			name:     "zero subtotal",
			coupon:   models.Coupon{Type: enums.CouponTypePercent, Value: 50},
			subtotal: 0,
			want:     0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Discount(&tc.coupon, tc.subtotal); got != tc.want {
				t.Fatalf("expected discount %d, got %d", tc.want, got)
			}
		})
	}
}

func TestService_BestForUser(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.coupons["SMALL"] = &models.Coupon{ID: 1, Code: "SMALL", Type: enums.CouponTypeFixed, Value: 50, IsActive: true}
	repo.coupons["BIG"] = &models.Coupon{ID: 2, Code: "BIG", Type: enums.CouponTypeFixed, Value: 200, IsActive: true, ExpiresAt: timePtr(now.Add(48 * time.Hour))}
	repo.coupons["BIGSOONER"] = &models.Coupon{ID: 3, Code: "BIGSOONER", Type: enums.CouponTypeFixed, Value: 200, IsActive: true, ExpiresAt: timePtr(now.Add(24 * time.Hour))}

	svc := newTestService(t, repo, now)

	result, err := svc.BestForUser(context.Background(), 1000, "ayse@example.com")
	if err != nil {
		t.Fatalf("BestForUser error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected a best coupon, got reason %q", result.Reason)
	}
	if result.Coupon.Code != "BIGSOONER" {
		t.Fatalf("expected tie-break on soonest expiry, got %q", result.Coupon.Code)
	}
	if result.Discount != 200 {
		t.Fatalf("expected discount 200, got %d", result.Discount)
	}
}

func TestService_BestForUserNoCandidates(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, newFakeRepository(), now)

	result, err := svc.BestForUser(context.Background(), 1000, "ayse@example.com")
	if err != nil {
		t.Fatalf("BestForUser error: %v", err)
	}
	if result.Valid || result.Reason != RejectNotFound {
		t.Fatalf("expected not_found outcome, got %+v", result)
	}
}

func TestService_RecordUsageRechecksLimits(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	svc := newTestService(t, repo, now)

	coupon := &models.Coupon{ID: 9, Code: "LAST", Type: enums.CouponTypeFixed, Value: 100, IsActive: true, UsageLimit: intPtr(1)}
	repo.usageCount[9] = 1

	err := svc.RecordUsage(context.Background(), nil, coupon, 42, "ayse@example.com", 100)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeCouponRejected {
		t.Fatalf("expected coupon rejected error, got %v", err)
	}
	if len(repo.usages) != 0 {
		t.Fatal("expected no usage row after limit hit")
	}

	repo.usageCount[9] = 0
	if err := svc.RecordUsage(context.Background(), nil, coupon, 42, "ayse@example.com", 100); err != nil {
		t.Fatalf("RecordUsage error: %v", err)
	}
	if len(repo.usages) != 1 {
		t.Fatalf("expected one usage row, got %d", len(repo.usages))
	}
	usage := repo.usages[0]
	if usage.CouponID != 9 || usage.OrderID != 42 || usage.DiscountAmount != 100 {
		t.Fatalf("unexpected usage row: %+v", usage)
	}
}

func TestService_CreateValidation(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, newFakeRepository(), now)

	tests := []struct {
		name  string
		input CreateCouponInput
	}{
		{
			name:  "percent over 100",
			input: CreateCouponInput{Code: "TOOMUCH", Type: enums.CouponTypePercent, Value: 120},
		},
		{
			name:  "non-positive value",
			input: CreateCouponInput{Code: "FREE", Type: enums.CouponTypeFixed, Value: 0},
		},
		{
			name:  "negative min order",
			input: CreateCouponInput{Code: "NEG", Type: enums.CouponTypeFixed, Value: 100, MinOrderAmount: intPtr(-1)},
		},
		{
			name: "window inverted",
			input: CreateCouponInput{
				Code: "BADWIN", Type: enums.CouponTypeFixed, Value: 100,
				StartsAt:  timePtr(now.Add(time.Hour)),
				ExpiresAt: timePtr(now),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.input)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_CreateGeneratesCode(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	svc := newTestService(t, repo, now)

	coupon, err := svc.Create(context.Background(), CreateCouponInput{
		Type:  enums.CouponTypePercent,
		Value: 10,
		Actor: "ops@example.com",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if len(coupon.Code) != codeLength {
		t.Fatalf("expected generated %d-char code, got %q", codeLength, coupon.Code)
	}
	if !coupon.IsActive {
		t.Fatal("expected new coupon to be active")
	}
}

func TestService_IssueScoped(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	svc := newTestService(t, repo, now)

	expiresAt := now.Add(720 * time.Hour)
	coupon, err := svc.IssueScoped(context.Background(), nil, IssueScopedInput{
		UserEmail: "ayse@example.com",
		Percent:   5,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		t.Fatalf("IssueScoped error: %v", err)
	}
	if coupon.Type != enums.CouponTypePercent || coupon.Value != 5 {
		t.Fatalf("unexpected coupon: %+v", coupon)
	}
	if coupon.UsageLimit == nil || *coupon.UsageLimit != 1 || coupon.PerUserLimit == nil || *coupon.PerUserLimit != 1 {
		t.Fatal("expected single-use limits")
	}
	if coupon.UserEmail == nil || *coupon.UserEmail != "ayse@example.com" {
		t.Fatal("expected coupon scoped to user")
	}
	if coupon.ExpiresAt == nil || !coupon.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected expiry %v, got %v", expiresAt, coupon.ExpiresAt)
	}

	if _, err := svc.IssueScoped(context.Background(), nil, IssueScopedInput{UserEmail: "ayse@example.com", Percent: 0, ExpiresAt: expiresAt}); err == nil {
		t.Fatal("expected validation error for zero percent")
	}
}

func TestService_DisableSoftDeletes(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.coupons["SAVE10"] = &models.Coupon{ID: 1, Code: "SAVE10", Type: enums.CouponTypePercent, Value: 10, IsActive: true}

	recorder := &fakeAudit{}
	svc, err := NewService(ServiceParams{Repo: repo, Audit: recorder, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	coupon, err := svc.Disable(context.Background(), 1, "ops@example.com")
	if err != nil {
		t.Fatalf("Disable error: %v", err)
	}
	if coupon.IsActive {
		t.Fatal("expected coupon to be inactive")
	}
	if coupon.ExpiresAt == nil || !coupon.ExpiresAt.Equal(now) {
		t.Fatalf("expected expires_at set to now, got %v", coupon.ExpiresAt)
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Action != enums.AuditActionCouponDisabled {
		t.Fatalf("expected coupon_disabled audit entry, got %+v", recorder.entries)
	}
}
