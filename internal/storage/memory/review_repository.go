package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

type reviewRepository struct {
	st *state
}

// Create сохраняет отзыв или ответ. Отзыв верхнего уровня от клиента на препарат один.
func (r *reviewRepository) Create(_ context.Context, review domain.Review) error {
	if _, ok := r.st.medicines[review.MedicineID]; !ok {
		return fmt.Errorf("insert review: %w", domain.ErrNotFound)
	}
	if review.IsReply() {
		if _, ok := r.st.reviews[review.ParentID]; !ok {
			return fmt.Errorf("insert review: %w", domain.ErrNotFound)
		}
	} else {
		for _, existing := range r.st.reviews {
			if !existing.IsReply() && existing.CustomerID == review.CustomerID && existing.MedicineID == review.MedicineID {
				return domain.ErrAlreadyReviewed
			}
		}
	}
	if _, exists := r.st.reviews[review.ID]; exists {
		return fmt.Errorf("%w: review id %s already exists", domain.ErrConflict, review.ID)
	}

	review.Replies = nil
	r.st.reviews[review.ID] = review
	return nil
}

func (r *reviewRepository) Get(_ context.Context, id string) (domain.Review, error) {
	review, ok := r.st.reviews[id]
	if !ok {
		return domain.Review{}, domain.ErrReviewNotFound
	}
	return review, nil
}

func (r *reviewRepository) ListByMedicine(_ context.Context, medicineID string) ([]domain.Review, error) {
	result := make([]domain.Review, 0)
	for _, review := range r.st.reviews {
		if review.MedicineID == medicineID {
			result = append(result, review)
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

var _ domain.ReviewStore = (*reviewRepository)(nil)
