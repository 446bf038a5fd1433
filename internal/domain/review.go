package domain

import (
	"strings"
	"time"
)

// Review — отзыв клиента о препарате или ответ продавца на отзыв.
// У ответа заполнены ParentID и SellerID, у отзыва заполнен CustomerID.
type Review struct {
	ID         string
	MedicineID string
	CustomerID string
	SellerID   string
	OrderID    string
	ParentID   string
	// Rating — от 1 до 5, 0 означает «без оценки».
	Rating    int
	Comment   string
	CreatedAt time.Time
	Replies   []Review
}

// IsReply сообщает, что запись является ответом продавца.
func (r Review) IsReply() bool {
	return r.ParentID != ""
}

// Validate проверяет отзыв верхнего уровня.
func (r *Review) Validate() []error {
	var errs []error

	if r.MedicineID == "" {
		errs = append(errs, ErrMedicineIDRequired)
	}
	if r.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if r.Rating != 0 && (r.Rating < 1 || r.Rating > 5) {
		errs = append(errs, ErrReviewRatingInvalid)
	}
	if r.Rating == 0 && strings.TrimSpace(r.Comment) == "" {
		errs = append(errs, ErrReviewEmpty)
	}

	return errs
}
