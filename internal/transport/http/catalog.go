package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/medistore/internal/service/catalog"
)

func (h *Handler) handleCreateMedicine(w http.ResponseWriter, r *http.Request) {
	var req createMedicineRequest
	payload, err := h.decode(w, r, &req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	actor := actorFrom(r)

	h.mutate(w, r, "create_medicine", routeFingerprint(r, payload), http.StatusCreated, func(ctx context.Context) (any, error) {
		medicine, err := h.catalog.CreateMedicine(ctx, actor, catalog.CreateMedicineRequest{
			Name:            req.Name,
			Manufacturer:    req.Manufacturer,
			Unit:            req.Unit,
			BasePrice:       req.BasePrice,
			DiscountPercent: req.DiscountPercent,
			Stock:           req.Stock,
		})
		if err != nil {
			return nil, err
		}
		return toMedicineResponse(medicine), nil
	})
}

func (h *Handler) handleListSellerMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := h.catalog.ListSellerMedicines(r.Context(), actorFrom(r))
	if err != nil {
		respondWithError(w, err)
		return
	}
	result := make([]medicineResponse, 0, len(medicines))
	for _, m := range medicines {
		result = append(result, toMedicineResponse(m))
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetMedicine(w http.ResponseWriter, r *http.Request) {
	medicine, err := h.catalog.GetMedicine(r.Context(), chi.URLParam(r, "medicineID"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toMedicineResponse(medicine))
}

func (h *Handler) handleSetMedicineActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	payload, err := h.decode(w, r, &req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	medicineID := chi.URLParam(r, "medicineID")
	actor := actorFrom(r)

	h.mutate(w, r, "set_medicine_active", routeFingerprint(r, payload), http.StatusOK, func(ctx context.Context) (any, error) {
		medicine, err := h.catalog.SetActive(ctx, actor, medicineID, *req.IsActive)
		if err != nil {
			return nil, err
		}
		return toMedicineResponse(medicine), nil
	})
}

func (h *Handler) handleRestockMedicine(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	payload, err := h.decode(w, r, &req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	medicineID := chi.URLParam(r, "medicineID")
	actor := actorFrom(r)

	h.mutate(w, r, "restock_medicine", routeFingerprint(r, payload), http.StatusOK, func(ctx context.Context) (any, error) {
		medicine, err := h.catalog.Restock(ctx, actor, medicineID, req.Quantity)
		if err != nil {
			return nil, err
		}
		return toMedicineResponse(medicine), nil
	})
}
