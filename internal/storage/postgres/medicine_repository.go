package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

const medicineColumns = `id, seller_id, name, manufacturer, unit, base_price, discount_percent,
	stock, is_active, created_at, updated_at`

type medicineRepository struct {
	q querier
}

func (r *medicineRepository) Create(ctx context.Context, m domain.Medicine) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO medicines (`+medicineColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		m.ID, m.SellerID, m.Name, m.Manufacturer, m.Unit, m.BasePrice, m.DiscountPercent,
		m.Stock.Nullable(), m.IsActive, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrMedicineExists
		}
		return fmt.Errorf("insert medicine: %w", err)
	}
	return nil
}

func (r *medicineRepository) Get(ctx context.Context, id string) (domain.Medicine, error) {
	return r.selectOne(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1`, id)
}

func (r *medicineRepository) LockForOrder(ctx context.Context, id, sellerID string) (domain.Medicine, error) {
	return r.selectOne(ctx, `
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE id = $1 AND seller_id = $2
		FOR UPDATE
	`, id, sellerID)
}

func (r *medicineRepository) Lock(ctx context.Context, id string) (domain.Medicine, error) {
	return r.selectOne(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1 FOR UPDATE`, id)
}

// DecrementStock списывает остаток условным UPDATE. Проверка и запись атомарны,
// поэтому ноль затронутых строк означает, что остаток успели выбрать конкурирующие заказы.
func (r *medicineRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE medicines
		SET stock = stock - $2,
		    updated_at = $3
		WHERE id = $1
		  AND stock IS NOT NULL
		  AND stock >= $2
	`, id, qty, time.Now().UTC())
	if err != nil {
		if violatesConstraint(err, constraintStockNonNegative) {
			return domain.ErrInsufficientStock
		}
		return fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrInsufficientStock
	}
	return nil
}

func (r *medicineRepository) IncrementStock(ctx context.Context, id string, qty int) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE medicines
		SET stock = CASE WHEN stock IS NULL THEN NULL ELSE stock + $2 END,
		    updated_at = $3
		WHERE id = $1
	`, id, qty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrMedicineNotFound
	}
	return nil
}

func (r *medicineRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.Medicine, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE seller_id = $1
		ORDER BY created_at DESC, id DESC
	`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list medicines: %w", err)
	}
	defer rows.Close()

	medicines := make([]domain.Medicine, 0)
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medicine rows: %w", err)
	}
	return medicines, nil
}

func (r *medicineRepository) SetActive(ctx context.Context, id string, active bool) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE medicines SET is_active = $2, updated_at = $3 WHERE id = $1
	`, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set medicine active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrMedicineNotFound
	}
	return nil
}

func (r *medicineRepository) selectOne(ctx context.Context, query string, args ...any) (domain.Medicine, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	m, err := scanMedicine(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Medicine{}, domain.ErrMedicineNotFound
		}
		return domain.Medicine{}, err
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedicine(row rowScanner) (domain.Medicine, error) {
	var (
		m     domain.Medicine
		stock sql.NullInt64
	)
	err := row.Scan(
		&m.ID, &m.SellerID, &m.Name, &m.Manufacturer, &m.Unit, &m.BasePrice, &m.DiscountPercent,
		&stock, &m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Medicine{}, err
		}
		return domain.Medicine{}, fmt.Errorf("scan medicine: %w", err)
	}
	if stock.Valid {
		m.Stock = domain.Tracked(int(stock.Int64))
	} else {
		m.Stock = domain.Untracked()
	}
	return m, nil
}

var _ domain.MedicineStore = (*medicineRepository)(nil)
