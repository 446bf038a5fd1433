// Package catalog управляет препаратами продавца: карточка, активность и пополнение склада.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
	"github.com/vladislavdragonenkov/medistore/internal/service/inventory"
)

// CreateMedicineRequest — новая карточка препарата. Stock == nil означает неучитываемый остаток.
type CreateMedicineRequest struct {
	Name            string
	Manufacturer    string
	Unit            string
	BasePrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	Stock           *int
}

type Service struct {
	uow    domain.UnitOfWork
	ledger *inventory.Ledger
	now    func() time.Time
	logger *log.Entry
}

func NewService(uow domain.UnitOfWork, ledger *inventory.Ledger, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	if ledger == nil {
		ledger = inventory.NewLedger(nil, logger)
	}
	return &Service{
		uow:    uow,
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.WithField("component", "catalog"),
	}
}

// CreateMedicine добавляет препарат в каталог текущего продавца. Новый препарат сразу активен.
func (s *Service) CreateMedicine(ctx context.Context, actor domain.Actor, req CreateMedicineRequest) (domain.Medicine, error) {
	if err := domain.Authorize(actor, domain.RoleSeller); err != nil {
		return domain.Medicine{}, err
	}
	if req.Stock != nil && *req.Stock < 0 {
		return domain.Medicine{}, domain.ErrStockNegative
	}

	now := s.now()
	medicine := domain.Medicine{
		ID:              uuid.NewString(),
		SellerID:        actor.ID,
		Name:            strings.TrimSpace(req.Name),
		Manufacturer:    strings.TrimSpace(req.Manufacturer),
		Unit:            strings.TrimSpace(req.Unit),
		BasePrice:       req.BasePrice,
		DiscountPercent: req.DiscountPercent,
		Stock:           domain.StockFromNullable(req.Stock),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := medicine.Validate(); len(errs) > 0 {
		return domain.Medicine{}, errors.Join(errs...)
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Medicines().Create(ctx, medicine)
	})
	if err != nil {
		return domain.Medicine{}, err
	}

	s.logger.WithFields(log.Fields{
		"medicine_id": medicine.ID,
		"seller_id":   medicine.SellerID,
		"stock":       medicine.Stock.String(),
	}).Info("препарат добавлен в каталог")
	return medicine, nil
}

// GetMedicine доступен без авторизации.
func (s *Service) GetMedicine(ctx context.Context, medicineID string) (domain.Medicine, error) {
	var medicine domain.Medicine
	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		medicine, err = tx.Medicines().Get(ctx, medicineID)
		return err
	})
	return medicine, err
}

// ListSellerMedicines — каталог текущего продавца, включая неактивные позиции.
func (s *Service) ListSellerMedicines(ctx context.Context, actor domain.Actor) ([]domain.Medicine, error) {
	if err := domain.Authorize(actor, domain.RoleSeller); err != nil {
		return nil, err
	}

	var result []domain.Medicine
	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		result, err = tx.Medicines().ListBySeller(ctx, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []domain.Medicine{}
	}
	return result, nil
}

// SetActive снимает препарат с продажи или возвращает его. Продавец управляет только своими препаратами.
func (s *Service) SetActive(ctx context.Context, actor domain.Actor, medicineID string, active bool) (domain.Medicine, error) {
	if err := domain.Authorize(actor, domain.RoleSeller, domain.RoleAdmin); err != nil {
		return domain.Medicine{}, err
	}

	var medicine domain.Medicine
	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		current, err := s.owned(ctx, tx, actor, medicineID)
		if err != nil {
			return err
		}
		if err := tx.Medicines().SetActive(ctx, medicineID, active); err != nil {
			return err
		}
		current.IsActive = active
		medicine = current
		return nil
	})
	if err != nil {
		return domain.Medicine{}, err
	}

	s.logger.WithFields(log.Fields{
		"medicine_id": medicineID,
		"active":      active,
		"actor_id":    actor.ID,
	}).Info("изменена доступность препарата")
	return medicine, nil
}

// Restock пополняет учитываемый остаток на qty единиц.
func (s *Service) Restock(ctx context.Context, actor domain.Actor, medicineID string, qty int) (domain.Medicine, error) {
	if err := domain.Authorize(actor, domain.RoleSeller); err != nil {
		return domain.Medicine{}, err
	}

	var medicine domain.Medicine
	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := s.owned(ctx, tx, actor, medicineID); err != nil {
			return err
		}
		var err error
		medicine, err = s.ledger.Restock(ctx, tx.Medicines(), medicineID, qty)
		return err
	})
	if err != nil {
		return domain.Medicine{}, err
	}
	return medicine, nil
}

func (s *Service) owned(ctx context.Context, tx domain.Tx, actor domain.Actor, medicineID string) (domain.Medicine, error) {
	medicine, err := tx.Medicines().Lock(ctx, medicineID)
	if err != nil {
		return domain.Medicine{}, err
	}
	if actor.Role == domain.RoleSeller && medicine.SellerID != actor.ID {
		return domain.Medicine{}, fmt.Errorf("%w: medicine belongs to another seller", domain.ErrForbidden)
	}
	return medicine, nil
}
