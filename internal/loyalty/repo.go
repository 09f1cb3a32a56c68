package loyalty

import (
	"context"

	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"github.com/candemirel/vitrin-backend/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for loyalty accounts and their ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindAccountByEmail(ctx context.Context, userEmail string) (*models.LoyaltyAccount, error)
	FindAccountByEmailForUpdate(ctx context.Context, userEmail string) (*models.LoyaltyAccount, error)
	CreateAccount(ctx context.Context, account *models.LoyaltyAccount) error
	UpdateAccount(ctx context.Context, account *models.LoyaltyAccount) error
	CreateTransaction(ctx context.Context, txn *models.LoyaltyTransaction) error
	HasOrderEarn(ctx context.Context, orderID int64) (bool, error)
	ListTransactions(ctx context.Context, accountID int64) ([]models.LoyaltyTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a loyalty repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindAccountByEmail(ctx context.Context, userEmail string) (*models.LoyaltyAccount, error) {
	var account models.LoyaltyAccount
	err := r.db.WithContext(ctx).
		Where("user_email = ?", userEmail).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindAccountByEmailForUpdate loads an account under a row lock. Call inside
// a transaction. The sqlite dialect used in tests has no FOR UPDATE; its
// transactions serialize writers anyway.
func (r *repository) FindAccountByEmailForUpdate(ctx context.Context, userEmail string) (*models.LoyaltyAccount, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var account models.LoyaltyAccount
	if err := query.Where("user_email = ?", userEmail).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) CreateAccount(ctx context.Context, account *models.LoyaltyAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) UpdateAccount(ctx context.Context, account *models.LoyaltyAccount) error {
	return r.db.WithContext(ctx).Save(account).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.LoyaltyTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// HasOrderEarn reports whether an accrual ledger row already exists for the
// order. This is the grant idempotency check.
func (r *repository) HasOrderEarn(ctx context.Context, orderID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LoyaltyTransaction{}).
		Where("order_id = ? AND type = ?", orderID, enums.LoyaltyTransactionTypeOrderEarn).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListTransactions(ctx context.Context, accountID int64) ([]models.LoyaltyTransaction, error) {
	var txns []models.LoyaltyTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}
