// Package reviews — отзывы клиентов о препаратах и ответы продавцов.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// CreateReviewRequest — отзыв клиента. OrderID необязателен и подтверждает покупку.
type CreateReviewRequest struct {
	MedicineID string
	OrderID    string
	Rating     int
	Comment    string
}

type Service struct {
	uow    domain.UnitOfWork
	now    func() time.Time
	logger *log.Entry
}

func NewService(uow domain.UnitOfWork, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Service{
		uow:    uow,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.WithField("component", "reviews"),
	}
}

// CreateReview сохраняет отзыв клиента. Один клиент оставляет не больше одного отзыва на препарат.
func (s *Service) CreateReview(ctx context.Context, actor domain.Actor, req CreateReviewRequest) (domain.Review, error) {
	if err := domain.Authorize(actor, domain.RoleCustomer); err != nil {
		return domain.Review{}, err
	}

	review := domain.Review{
		ID:         uuid.NewString(),
		MedicineID: req.MedicineID,
		CustomerID: actor.ID,
		OrderID:    req.OrderID,
		Rating:     req.Rating,
		Comment:    strings.TrimSpace(req.Comment),
		CreatedAt:  s.now(),
	}
	if errs := review.Validate(); len(errs) > 0 {
		return domain.Review{}, errors.Join(errs...)
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Medicines().Get(ctx, review.MedicineID); err != nil {
			return err
		}
		if review.OrderID != "" {
			if err := checkPurchase(ctx, tx, actor, review); err != nil {
				return err
			}
		}
		return tx.Reviews().Create(ctx, review)
	})
	if err != nil {
		return domain.Review{}, err
	}

	s.logger.WithFields(log.Fields{
		"review_id":   review.ID,
		"medicine_id": review.MedicineID,
		"rating":      review.Rating,
	}).Info("добавлен отзыв")
	return review, nil
}

// checkPurchase — заказ принадлежит клиенту, доставлен и содержит препарат.
func checkPurchase(ctx context.Context, tx domain.Tx, actor domain.Actor, review domain.Review) error {
	order, err := tx.Orders().Get(ctx, review.OrderID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrReviewNotEligible
	}
	if err != nil {
		return err
	}
	if order.CustomerID != actor.ID || order.Status != domain.OrderStatusDelivered {
		return domain.ErrReviewNotEligible
	}
	if _, ok := order.Item(review.MedicineID); !ok {
		return domain.ErrReviewNotEligible
	}
	return nil
}

// ReplyToReview добавляет ответ продавца препарата. Ответить можно только на отзыв верхнего уровня.
func (s *Service) ReplyToReview(ctx context.Context, actor domain.Actor, reviewID, comment string) (domain.Review, error) {
	if err := domain.Authorize(actor, domain.RoleSeller); err != nil {
		return domain.Review{}, err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return domain.Review{}, domain.ErrReviewEmpty
	}

	var reply domain.Review
	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		parent, err := tx.Reviews().Get(ctx, reviewID)
		if err != nil {
			return err
		}
		if parent.IsReply() {
			return domain.ErrReplyDepth
		}
		medicine, err := tx.Medicines().Get(ctx, parent.MedicineID)
		if err != nil {
			return err
		}
		if medicine.SellerID != actor.ID {
			return fmt.Errorf("%w: only the seller of the medicine can reply", domain.ErrForbidden)
		}

		reply = domain.Review{
			ID:         uuid.NewString(),
			MedicineID: parent.MedicineID,
			SellerID:   actor.ID,
			ParentID:   parent.ID,
			Comment:    comment,
			CreatedAt:  s.now(),
		}
		return tx.Reviews().Create(ctx, reply)
	})
	if err != nil {
		return domain.Review{}, err
	}
	return reply, nil
}

// ListMedicineReviews возвращает отзывы верхнего уровня, новые первыми.
// Ответы вложены в Replies в порядке написания.
func (s *Service) ListMedicineReviews(ctx context.Context, medicineID string) ([]domain.Review, error) {
	var all []domain.Review
	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Medicines().Get(ctx, medicineID); err != nil {
			return err
		}
		var err error
		all, err = tx.Reviews().ListByMedicine(ctx, medicineID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return thread(all), nil
}

// thread собирает дерево глубины один из списка, отсортированного от новых к старым.
func thread(all []domain.Review) []domain.Review {
	replies := make(map[string][]domain.Review)
	for _, r := range all {
		if r.IsReply() {
			replies[r.ParentID] = append(replies[r.ParentID], r)
		}
	}

	result := make([]domain.Review, 0, len(all))
	for _, r := range all {
		if r.IsReply() {
			continue
		}
		r.Replies = slices.Clone(replies[r.ID])
		slices.Reverse(r.Replies)
		result = append(result, r)
	}
	return result
}
