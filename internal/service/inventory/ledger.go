// Package inventory ведёт складской учёт препаратов. Остаток меняется только через Ledger.
package inventory

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// Recorder получает объёмы списаний и возвратов для метрик.
type Recorder interface {
	StockReserved(units int)
	StockReleased(units int)
}

type noopRecorder struct{}

func (noopRecorder) StockReserved(int) {}
func (noopRecorder) StockReleased(int) {}

// Ledger списывает и возвращает остаток внутри транзакции вызывающего.
// Собственного состояния у него нет, поэтому один экземпляр обслуживает все запросы.
type Ledger struct {
	recorder Recorder
	logger   *log.Entry
}

// NewLedger создаёт складской учёт. recorder может быть nil.
func NewLedger(recorder Recorder, logger *log.Entry) *Ledger {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Ledger{recorder: recorder, logger: logger.WithField("component", "inventory")}
}

// Reserve блокирует препарат продавца и списывает qty единиц.
// Возвращает заблокированную запись, её цена нужна при расчёте заказа по каталогу.
//
// Ошибки: *domain.MedicineUnavailableError, если препарата нет у продавца или он снят
// с продажи; *domain.InsufficientStockError, если учитываемого остатка не хватает.
func (l *Ledger) Reserve(ctx context.Context, medicines domain.MedicineStore, sellerID, medicineID string, qty int) (domain.Medicine, error) {
	if qty <= 0 {
		return domain.Medicine{}, domain.ErrItemQuantityInvalid
	}

	m, err := medicines.LockForOrder(ctx, medicineID, sellerID)
	if err != nil {
		if errors.Is(err, domain.ErrMedicineNotFound) {
			return domain.Medicine{}, &domain.MedicineUnavailableError{MedicineID: medicineID, Cause: domain.ErrMedicineNotFound}
		}
		return domain.Medicine{}, fmt.Errorf("lock medicine %s: %w", medicineID, err)
	}
	if !m.IsActive {
		return domain.Medicine{}, &domain.MedicineUnavailableError{MedicineID: medicineID, Cause: domain.ErrMedicineInactive}
	}

	available, tracked := m.Stock.Quantity()
	if !tracked {
		return m, nil
	}
	if available < qty {
		return domain.Medicine{}, &domain.InsufficientStockError{
			MedicineID: m.ID,
			Name:       m.Name,
			Available:  available,
			Requested:  qty,
		}
	}

	// Строка уже заблокирована, но условное списание всё равно перепроверяет остаток.
	if err := medicines.DecrementStock(ctx, m.ID, qty); err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			l.logger.WithFields(log.Fields{
				"medicine_id": m.ID,
				"requested":   qty,
			}).Warn("остаток изменился после блокировки")
			return domain.Medicine{}, &domain.InsufficientStockError{
				MedicineID: m.ID,
				Name:       m.Name,
				Available:  available,
				Requested:  qty,
			}
		}
		return domain.Medicine{}, fmt.Errorf("decrement stock of %s: %w", m.ID, err)
	}

	m.Stock, _ = m.Stock.Decrease(qty)
	l.recorder.StockReserved(qty)
	return m, nil
}

// Release возвращает qty единиц. Для неучитываемого остатка ничего не меняет.
func (l *Ledger) Release(ctx context.Context, medicines domain.MedicineStore, medicineID string, qty int) error {
	if qty <= 0 {
		return domain.ErrItemQuantityInvalid
	}

	m, err := medicines.Lock(ctx, medicineID)
	if err != nil {
		return fmt.Errorf("lock medicine %s: %w", medicineID, err)
	}
	if !m.Stock.IsTracked() {
		return nil
	}
	if err := medicines.IncrementStock(ctx, medicineID, qty); err != nil {
		return fmt.Errorf("increment stock of %s: %w", medicineID, err)
	}

	l.recorder.StockReleased(qty)
	return nil
}

// Restock пополняет склад по запросу продавца. Неучитываемый остаток не меняется.
func (l *Ledger) Restock(ctx context.Context, medicines domain.MedicineStore, medicineID string, qty int) (domain.Medicine, error) {
	if qty <= 0 {
		return domain.Medicine{}, domain.ErrItemQuantityInvalid
	}

	m, err := medicines.Lock(ctx, medicineID)
	if err != nil {
		return domain.Medicine{}, err
	}
	if !m.Stock.IsTracked() {
		return m, nil
	}
	if err := medicines.IncrementStock(ctx, medicineID, qty); err != nil {
		return domain.Medicine{}, fmt.Errorf("increment stock of %s: %w", medicineID, err)
	}
	m.Stock = m.Stock.Increase(qty)
	return m, nil
}
