package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

const reviewColumns = `id, medicine_id, customer_id, seller_id, order_id, parent_id, rating, comment, created_at`

type reviewRepository struct {
	q querier
}

func (r *reviewRepository) Create(ctx context.Context, review domain.Review) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var rating sql.NullInt16
	if review.Rating > 0 {
		rating = sql.NullInt16{Int16: int16(review.Rating), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		review.ID, review.MedicineID, nullString(review.CustomerID), nullString(review.SellerID),
		nullString(review.OrderID), nullString(review.ParentID), rating, review.Comment, review.CreatedAt,
	)
	if err != nil {
		switch {
		case violatesConstraint(err, constraintReviewPerCustomer):
			return domain.ErrAlreadyReviewed
		case isForeignKeyViolation(err):
			return fmt.Errorf("insert review: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *reviewRepository) Get(ctx context.Context, id string) (domain.Review, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	review, err := scanReview(r.q.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrReviewNotFound
		}
		return domain.Review{}, err
	}
	return review, nil
}

func (r *reviewRepository) ListByMedicine(ctx context.Context, medicineID string) ([]domain.Review, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE medicine_id = $1
		ORDER BY created_at DESC, id DESC
	`, medicineID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, nil
}

func scanReview(row rowScanner) (domain.Review, error) {
	var (
		review                                  domain.Review
		customerID, sellerID, orderID, parentID sql.NullString
		rating                                  sql.NullInt16
	)
	err := row.Scan(
		&review.ID, &review.MedicineID, &customerID, &sellerID, &orderID, &parentID,
		&rating, &review.Comment, &review.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, err
		}
		return domain.Review{}, fmt.Errorf("scan review: %w", err)
	}
	review.CustomerID = customerID.String
	review.SellerID = sellerID.String
	review.OrderID = orderID.String
	review.ParentID = parentID.String
	if rating.Valid {
		review.Rating = int(rating.Int16)
	}
	return review, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.ReviewStore = (*reviewRepository)(nil)
