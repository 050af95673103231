package services

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccountService struct {
	db     *gorm.DB
	ledger *ledger.Ledger
}

func NewAccountService(db *gorm.DB, l *ledger.Ledger) *AccountService {
	return &AccountService{db: db, ledger: l}
}

func (s *AccountService) GetAccount(id uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := s.db.First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// DebitCredit consumes one credit outside any job, in its own transaction.
func (s *AccountService) DebitCredit(id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.ledger.Debit(tx, id)
	})
}

func (s *AccountService) Credits(id uuid.UUID) (*dto.CreditsResponse, error) {
	account, err := s.GetAccount(id)
	if err != nil {
		return nil, err
	}
	return &dto.CreditsResponse{
		Used:               account.CreditsUsed,
		Limit:              account.CreditsLimit,
		Remaining:          s.ledger.Remaining(account),
		PlanTier:           account.PlanTier,
		SubscriptionStatus: account.SubscriptionStatus,
		CanGenerate:        s.ledger.CanGenerate(account),
		TrialEndsAt:        account.TrialEndsAt,
		PeriodEnd:          account.PeriodEnd,
	}, nil
}
