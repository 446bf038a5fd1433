package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

type medicineRepository struct {
	st *state
}

func (r *medicineRepository) Create(_ context.Context, m domain.Medicine) error {
	if _, exists := r.st.medicines[m.ID]; exists {
		return domain.ErrMedicineExists
	}
	r.st.medicines[m.ID] = m
	return nil
}

func (r *medicineRepository) Get(_ context.Context, id string) (domain.Medicine, error) {
	m, ok := r.st.medicines[id]
	if !ok {
		return domain.Medicine{}, domain.ErrMedicineNotFound
	}
	return m, nil
}

// LockForOrder в памяти ничего не блокирует: транзакции и так идут по одной.
func (r *medicineRepository) LockForOrder(ctx context.Context, id, sellerID string) (domain.Medicine, error) {
	m, err := r.Get(ctx, id)
	if err != nil {
		return domain.Medicine{}, err
	}
	if m.SellerID != sellerID {
		return domain.Medicine{}, domain.ErrMedicineNotFound
	}
	return m, nil
}

func (r *medicineRepository) Lock(ctx context.Context, id string) (domain.Medicine, error) {
	return r.Get(ctx, id)
}

// DecrementStock ведёт себя как условный UPDATE в PostgreSQL: неучитываемый
// остаток и нехватка одинаково дают ErrInsufficientStock.
func (r *medicineRepository) DecrementStock(_ context.Context, id string, qty int) error {
	m, ok := r.st.medicines[id]
	if !ok || !m.Stock.IsTracked() {
		return domain.ErrInsufficientStock
	}
	stock, err := m.Stock.Decrease(qty)
	if err != nil {
		return err
	}
	m.Stock = stock
	m.UpdatedAt = time.Now().UTC()
	r.st.medicines[id] = m
	return nil
}

func (r *medicineRepository) IncrementStock(_ context.Context, id string, qty int) error {
	m, ok := r.st.medicines[id]
	if !ok {
		return domain.ErrMedicineNotFound
	}
	m.Stock = m.Stock.Increase(qty)
	m.UpdatedAt = time.Now().UTC()
	r.st.medicines[id] = m
	return nil
}

func (r *medicineRepository) ListBySeller(_ context.Context, sellerID string) ([]domain.Medicine, error) {
	result := make([]domain.Medicine, 0)
	for _, m := range r.st.medicines {
		if m.SellerID == sellerID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (r *medicineRepository) SetActive(_ context.Context, id string, active bool) error {
	m, ok := r.st.medicines[id]
	if !ok {
		return domain.ErrMedicineNotFound
	}
	m.IsActive = active
	m.UpdatedAt = time.Now().UTC()
	r.st.medicines[id] = m
	return nil
}

var _ domain.MedicineStore = (*medicineRepository)(nil)
