package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/medistore/internal/service/reviews"
)

func (h *Handler) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	payload, err := h.decode(w, r, &req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	actor := actorFrom(r)

	h.mutate(w, r, "create_review", routeFingerprint(r, payload), http.StatusCreated, func(ctx context.Context) (any, error) {
		review, err := h.reviews.CreateReview(ctx, actor, reviews.CreateReviewRequest{
			MedicineID: req.MedicineID,
			OrderID:    req.OrderID,
			Rating:     req.Rating,
			Comment:    req.Comment,
		})
		if err != nil {
			return nil, err
		}
		return toReviewResponse(review), nil
	})
}

func (h *Handler) handleReplyToReview(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	payload, err := h.decode(w, r, &req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	reviewID := chi.URLParam(r, "reviewID")
	actor := actorFrom(r)

	h.mutate(w, r, "reply_to_review", routeFingerprint(r, payload), http.StatusCreated, func(ctx context.Context) (any, error) {
		reply, err := h.reviews.ReplyToReview(ctx, actor, reviewID, req.Comment)
		if err != nil {
			return nil, err
		}
		return toReviewResponse(reply), nil
	})
}

func (h *Handler) handleListReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.reviews.ListMedicineReviews(r.Context(), chi.URLParam(r, "medicineID"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	result := make([]reviewResponse, 0, len(list))
	for _, review := range list {
		result = append(result, toReviewResponse(review))
	}
	respondWithJSON(w, http.StatusOK, result)
}
