package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
	"github.com/vladislavdragonenkov/medistore/internal/service/ordering"
)

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if _, err := h.decode(w, r, &req); err != nil {
		respondWithError(w, err)
		return
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.LineItem{
			MedicineID: item.MedicineID,
			Quantity:   item.Quantity,
			Price:      item.Price,
		})
	}
	actor := actorFrom(r)
	create := ordering.CreateOrderRequest{
		SellerID:        req.SellerID,
		ShippingAddress: req.ShippingAddress,
		Items:           items,
	}

	h.mutate(w, r, ordering.OperationCreateOrder, create.Fingerprint(), http.StatusCreated, func(ctx context.Context) (any, error) {
		order, err := h.orders.CreateOrder(ctx, actor, create)
		if err != nil {
			return nil, err
		}
		return toOrderResponse(order), nil
	})
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	actor := actorFrom(r)

	h.mutate(w, r, ordering.OperationCancelOrder, ordering.CancelFingerprint(orderID), http.StatusOK, func(ctx context.Context) (any, error) {
		order, err := h.orders.CancelOrder(ctx, actor, orderID)
		if err != nil {
			return nil, err
		}
		return toOrderResponse(order), nil
	})
}

func (h *Handler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if _, err := h.decode(w, r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		respondWithError(w, err)
		return
	}
	orderID := chi.URLParam(r, "orderID")
	actor := actorFrom(r)

	h.mutate(w, r, ordering.OperationUpdateOrderStatus, ordering.StatusFingerprint(orderID, target), http.StatusOK, func(ctx context.Context) (any, error) {
		order, err := h.orders.UpdateOrderStatus(ctx, actor, orderID, target)
		if err != nil {
			return nil, err
		}
		return toOrderResponse(order), nil
	})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), actorFrom(r), chi.URLParam(r, "orderID"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleListMyOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := limitFrom(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	orders, err := h.orders.ListCustomerOrders(r.Context(), actorFrom(r), limit)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) handleListSellerOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := limitFrom(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	orders, err := h.orders.ListSellerOrders(r.Context(), actorFrom(r), limit)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) handleOrderTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.orders.Timeline(r.Context(), actorFrom(r), chi.URLParam(r, "orderID"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	result := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		result = append(result, timelineEventResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	respondWithJSON(w, http.StatusOK, result)
}
