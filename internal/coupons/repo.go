package coupons

import (
	"context"
	"time"

	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository manages persistence for coupons and their usage rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, coupon *models.Coupon) error
	Update(ctx context.Context, coupon *models.Coupon) error
	FindByID(ctx context.Context, id int64) (*models.Coupon, error)
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	List(ctx context.Context, includeInactive bool) ([]models.Coupon, error)
	FindCandidatesForUser(ctx context.Context, userEmail string, at time.Time) ([]models.Coupon, error)
	CountUsages(ctx context.Context, couponID int64) (int64, error)
	CountUsagesByUser(ctx context.Context, couponID int64, userEmail string) (int64, error)
	CreateUsage(ctx context.Context, usage *models.CouponUsage) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a coupon repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *repository) Update(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Save(coupon).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) List(ctx context.Context, includeInactive bool) ([]models.Coupon, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var coupons []models.Coupon
	if err := query.Find(&coupons).Error; err != nil {
		return nil, err
	}
	return coupons, nil
}

// FindCandidatesForUser returns active coupons inside their validity window
// that are either unscoped or scoped to the given user.
func (r *repository) FindCandidatesForUser(ctx context.Context, userEmail string, at time.Time) ([]models.Coupon, error) {
	var coupons []models.Coupon
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("starts_at IS NULL OR starts_at <= ?", at).
		Where("expires_at IS NULL OR expires_at >= ?", at).
		Where("user_email IS NULL OR user_email = ?", userEmail).
		Order("created_at ASC").
		Find(&coupons).Error
	if err != nil {
		return nil, err
	}
	return coupons, nil
}

func (r *repository) CountUsages(ctx context.Context, couponID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponUsage{}).
		Where("coupon_id = ?", couponID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountUsagesByUser(ctx context.Context, couponID int64, userEmail string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponUsage{}).
		Where("coupon_id = ? AND user_email = ?", couponID, userEmail).
		Count(&count).Error
	return count, err
}

func (r *repository) CreateUsage(ctx context.Context, usage *models.CouponUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}
