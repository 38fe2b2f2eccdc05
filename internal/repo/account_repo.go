// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Account
// model.
//
// Emails are matched exactly; callers normalize them (trim + lower-case)
// before reaching this layer.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// CreateAccount inserts a. The unique email index makes the insert a no-op
// when the address is already registered, which is reported as ErrDuplicate.
func CreateAccount(ctx context.Context, db *gorm.DB, a *domain.Account) error {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(a)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// GetAccountByEmail returns the account registered under email or ErrNotFound.
func GetAccountByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Account, error) {
	var a domain.Account
	if err := db.WithContext(ctx).Where("email = ?", email).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccountByEmailAndCode matches both the email and the verification code.
func GetAccountByEmailAndCode(ctx context.Context, db *gorm.DB, email, code string) (*domain.Account, error) {
	var a domain.Account
	err := db.WithContext(ctx).
		Where("email = ? AND verification_code = ?", email, code).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount fetches an account by primary key.
func GetAccount(ctx context.Context, db *gorm.DB, id uint) (*domain.Account, error) {
	var a domain.Account
	if err := db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// MarkVerified sets verified=true. The verification code is left in place.
func MarkVerified(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Update("verified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
