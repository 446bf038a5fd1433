// Package http — REST-интерфейс маркетплейса поверх chi.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
	"github.com/vladislavdragonenkov/medistore/internal/service/catalog"
	"github.com/vladislavdragonenkov/medistore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/medistore/internal/service/ordering"
	"github.com/vladislavdragonenkov/medistore/internal/service/reviews"
)

const maxBodyBytes = 1 << 20

// OrderService — операции с заказами, которые нужны REST-слою.
type OrderService interface {
	CreateOrder(ctx context.Context, actor domain.Actor, req ordering.CreateOrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, actor domain.Actor, orderID string, target domain.OrderStatus) (domain.Order, error)
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	ListCustomerOrders(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error)
	ListSellerOrders(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error)
	Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error)
}

type CatalogService interface {
	CreateMedicine(ctx context.Context, actor domain.Actor, req catalog.CreateMedicineRequest) (domain.Medicine, error)
	GetMedicine(ctx context.Context, medicineID string) (domain.Medicine, error)
	ListSellerMedicines(ctx context.Context, actor domain.Actor) ([]domain.Medicine, error)
	SetActive(ctx context.Context, actor domain.Actor, medicineID string, active bool) (domain.Medicine, error)
	Restock(ctx context.Context, actor domain.Actor, medicineID string, qty int) (domain.Medicine, error)
}

type ReviewService interface {
	CreateReview(ctx context.Context, actor domain.Actor, req reviews.CreateReviewRequest) (domain.Review, error)
	ReplyToReview(ctx context.Context, actor domain.Actor, reviewID, comment string) (domain.Review, error)
	ListMedicineReviews(ctx context.Context, medicineID string) ([]domain.Review, error)
}

// Handler обслуживает REST-маршруты. Guard может быть nil, тогда ключ идемпотентности игнорируется.
type Handler struct {
	orders   OrderService
	catalog  CatalogService
	reviews  ReviewService
	guard    *idempotency.Guard
	validate *validator.Validate
	logger   *log.Entry
}

func NewHandler(orders OrderService, catalogSvc CatalogService, reviewSvc ReviewService, guard *idempotency.Guard, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Handler{
		orders:   orders,
		catalog:  catalogSvc,
		reviews:  reviewSvc,
		guard:    guard,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.WithField("component", "http"),
	}
}

// Routes собирает роутер со всеми маршрутами API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.handleCreateOrder)
			r.Get("/my-orders", h.handleListMyOrders)
			r.Get("/{orderID}", h.handleGetOrder)
			r.Get("/{orderID}/timeline", h.handleOrderTimeline)
			r.Patch("/{orderID}/cancel", h.handleCancelOrder)
		})
		r.Route("/seller", func(r chi.Router) {
			r.Get("/orders", h.handleListSellerOrders)
			r.Patch("/orders/{orderID}/status", h.handleUpdateOrderStatus)
			r.Post("/medicines", h.handleCreateMedicine)
			r.Get("/medicines", h.handleListSellerMedicines)
			r.Patch("/medicines/{medicineID}/active", h.handleSetMedicineActive)
			r.Post("/medicines/{medicineID}/restock", h.handleRestockMedicine)
		})
		r.Get("/medicines/{medicineID}", h.handleGetMedicine)
		r.Get("/medicines/{medicineID}/reviews", h.handleListReviews)
		r.Post("/reviews", h.handleCreateReview)
		r.Post("/reviews/{reviewID}/replies", h.handleReplyToReview)
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http запрос")
	})
}

// decode читает JSON-тело и валидирует его. Возвращает сырое тело для хэша идемпотентности.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) ([]byte, error) {
	raw, err := readBody(w, r)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return nil, err
	}
	return raw, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("%w: request body is required", domain.ErrValidation)
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrValidation, err)
	}
	return raw, nil
}

// mutate выполняет изменяющий запрос через guard идемпотентности и пишет ответ.
// Ключ берётся из заголовка Idempotency-Key; без ключа запрос выполняется как есть.
// fingerprint — каноническое представление запроса, из него и operation строится хеш.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, operation string, fingerprint []byte, successCode int, run func(ctx context.Context) (any, error)) {
	execute := func(ctx context.Context) idempotency.Outcome {
		result, err := run(ctx)
		if err != nil {
			code, body := encodeError(err)
			if code == http.StatusInternalServerError {
				h.logger.WithError(err).WithField("operation", operation).Error("ошибка обработки запроса")
			}
			return idempotency.Outcome{Code: code, Body: body}
		}
		body, err := json.Marshal(result)
		if err != nil {
			h.logger.WithError(err).WithField("operation", operation).Error("не удалось сериализовать ответ")
			return idempotency.Outcome{Code: http.StatusInternalServerError, Body: []byte(`{"error":"internal server error"}`)}
		}
		return idempotency.Outcome{Code: successCode, Body: body}
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if h.guard == nil || key == "" {
		outcome := execute(r.Context())
		writeRaw(w, outcome.Code, outcome.Body)
		return
	}

	hash := idempotency.RequestHash(operation, actorFrom(r), fingerprint)
	outcome, err := h.guard.Do(r.Context(), key, hash, execute)
	if err != nil {
		if domain.IsIdempotencyConflict(err) {
			h.logger.WithError(err).WithFields(log.Fields{
				"idempotency_key": key,
				"operation":       operation,
			}).Warn("конфликт ключа идемпотентности")
		}
		respondWithError(w, err)
		return
	}
	if outcome.Replayed {
		w.Header().Set(HeaderReplayed, "true")
	}
	writeRaw(w, outcome.Code, outcome.Body)
}

// routeFingerprint привязывает тело запроса к пути: ключ для одного ресурса не срабатывает для другого.
func routeFingerprint(r *http.Request, payload []byte) []byte {
	fp := make([]byte, 0, len(r.URL.Path)+1+len(payload))
	fp = append(fp, r.URL.Path...)
	fp = append(fp, 0)
	return append(fp, payload...)
}

// limitFrom читает ?limit=; пустое значение даёт лимит по умолчанию.
func limitFrom(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return ordering.DefaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation)
	}
	return limit, nil
}
