package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
	"github.com/vladislavdragonenkov/medistore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/medistore/internal/service/ordering"
)

// Ключи метаданных, которые выставляет шлюз идентификации.
const (
	metadataUserID         = "x-user-id"
	metadataUserRole       = "x-user-role"
	metadataIdempotencyKey = "idempotency-key"
)

// Orders — операции с заказами, которые публикует gRPC API.
type Orders interface {
	CreateOrder(ctx context.Context, actor domain.Actor, req ordering.CreateOrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, actor domain.Actor, orderID string, target domain.OrderStatus) (domain.Order, error)
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	ListCustomerOrders(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error)
	ListSellerOrders(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error)
	Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error)
}

// MarketplaceService реализует gRPC API поверх сервиса заказов.
type MarketplaceService struct {
	orders Orders
	guard  *idempotency.Guard
	logger *log.Entry
}

var _ MarketplaceServer = (*MarketplaceService)(nil)

// NewMarketplaceService конструирует сервис. guard == nil отключает идемпотентность.
func NewMarketplaceService(orders Orders, guard *idempotency.Guard, logger *log.Entry) *MarketplaceService {
	if logger == nil {
		logger = log.New().WithField("component", "grpc")
	}
	return &MarketplaceService{
		orders: orders,
		guard:  guard,
		logger: logger,
	}
}

// CreateOrder оформляет заказ от имени клиента из метаданных.
func (s *MarketplaceService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	for idx, item := range req.Items {
		price, err := parsePrice(item.Price)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "items[%d].price: %v", idx, err)
		}
		items = append(items, domain.LineItem{
			MedicineID: item.MedicineID,
			Quantity:   int(item.Quantity),
			Price:      price,
		})
	}
	create := ordering.CreateOrderRequest{
		SellerID:        req.SellerID,
		ShippingAddress: req.ShippingAddress,
		Items:           items,
	}

	return s.withIdempotency(ctx, ordering.OperationCreateOrder, create.Fingerprint(), http.StatusCreated,
		func(ctx context.Context, actor domain.Actor) (domain.Order, error) {
			return s.orders.CreateOrder(ctx, actor, create)
		})
}

// CancelOrder отменяет заказ клиентом или продавцом.
func (s *MarketplaceService) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*OrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}

	return s.withIdempotency(ctx, ordering.OperationCancelOrder, ordering.CancelFingerprint(req.OrderID), http.StatusOK,
		func(ctx context.Context, actor domain.Actor) (domain.Order, error) {
			return s.orders.CancelOrder(ctx, actor, req.OrderID)
		})
}

// UpdateOrderStatus переводит заказ продавцом или администратором.
func (s *MarketplaceService) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*OrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}
	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return s.withIdempotency(ctx, ordering.OperationUpdateOrderStatus, ordering.StatusFingerprint(req.OrderID, target), http.StatusOK,
		func(ctx context.Context, actor domain.Actor) (domain.Order, error) {
			return s.orders.UpdateOrderStatus(ctx, actor, req.OrderID, target)
		})
}

// GetOrder возвращает заказ и его хронологию.
func (s *MarketplaceService) GetOrder(ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	actor := actorFrom(ctx)

	order, err := s.orders.GetOrder(ctx, actor, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder")
	}
	events, err := s.orders.Timeline(ctx, actor, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrderTimeline")
	}

	timeline := make([]TimelineEvent, 0, len(events))
	for _, event := range events {
		timeline = append(timeline, TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			UnixTime: event.Occurred.Unix(),
		})
	}
	return &GetOrderResponse{Order: toOrder(order), Timeline: timeline}, nil
}

// ListCustomerOrders возвращает заказы клиента из метаданных.
func (s *MarketplaceService) ListCustomerOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	orders, err := s.orders.ListCustomerOrders(ctx, actorFrom(ctx), pageSize(req))
	if err != nil {
		return nil, s.toStatus(err, "ListCustomerOrders")
	}
	return toListResponse(orders), nil
}

// ListSellerOrders возвращает заказы продавца из метаданных.
func (s *MarketplaceService) ListSellerOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	orders, err := s.orders.ListSellerOrders(ctx, actorFrom(ctx), pageSize(req))
	if err != nil {
		return nil, s.toStatus(err, "ListSellerOrders")
	}
	return toListResponse(orders), nil
}

func pageSize(req *ListOrdersRequest) int {
	if req == nil || req.PageSize <= 0 {
		return ordering.DefaultListLimit
	}
	return int(req.PageSize)
}

func parsePrice(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(raw))
}

// toStatus переводит доменную ошибку в gRPC-статус. Внутренние ошибки логируются и скрываются.
func (s *MarketplaceService) toStatus(err error, operation string) error {
	code := codeFor(err)
	if code == codes.Internal {
		s.logger.WithError(err).WithField("operation", operation).Error("ошибка обработки gRPC-запроса")
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

func codeFor(err error) codes.Code {
	if errors.Is(err, domain.ErrIdempotencyKeyInProgress) {
		return codes.Aborted
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindUnauthorized:
		return codes.Unauthenticated
	case domain.KindForbidden:
		return codes.PermissionDenied
	case domain.KindConflict:
		return codes.AlreadyExists
	case domain.KindInsufficientStock, domain.KindInvalidTransition, domain.KindUnavailable:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

func actorFrom(ctx context.Context) domain.Actor {
	id := firstMetadata(ctx, metadataUserID)
	role, err := domain.ParseRole(firstMetadata(ctx, metadataUserRole))
	if err != nil {
		return domain.Actor{ID: id}
	}
	return domain.Actor{ID: id, Role: role}
}

func firstMetadata(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(key); len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
	}
	return ""
}

// idempotencyFailure — сохранённая ошибка. Поле error совпадает с телом ошибки REST API,
// code есть только у записей gRPC и уточняет статус, который не восстановить по HTTP-коду.
type idempotencyFailure struct {
	Error string `json:"error"`
	Code  int32  `json:"code,omitempty"`
}

const replayedFailureMessage = "previous request with the same idempotency key failed"

// withIdempotency выполняет операцию с заказом через guard, если в метаданных есть idempotency-key.
// Хеш строится из имени операции и отпечатка запроса, как в REST API, а сохраняется
// JSON заказа с HTTP-кодом, поэтому ключ повторяется через любой из транспортов.
func (s *MarketplaceService) withIdempotency(
	ctx context.Context,
	operation string,
	fingerprint []byte,
	successCode int,
	handler func(context.Context, domain.Actor) (domain.Order, error),
) (*OrderResponse, error) {
	actor := actorFrom(ctx)
	key := firstMetadata(ctx, metadataIdempotencyKey)
	if s.guard == nil || key == "" {
		order, err := handler(ctx, actor)
		if err != nil {
			return nil, s.toStatus(err, operation)
		}
		return &OrderResponse{Order: toOrder(order)}, nil
	}

	var (
		resp   *OrderResponse
		runErr error
	)
	outcome, err := s.guard.Do(ctx, key, idempotency.RequestHash(operation, actor, fingerprint), func(ctx context.Context) idempotency.Outcome {
		order, err := handler(ctx, actor)
		if err != nil {
			runErr = s.toStatus(err, operation)
			return encodeFailure(runErr)
		}
		resp = &OrderResponse{Order: toOrder(order)}
		body, err := json.Marshal(resp.Order)
		if err != nil {
			s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotent response")
			return idempotency.Outcome{Code: successCode}
		}
		return idempotency.Outcome{Code: successCode, Body: body}
	})
	if err != nil {
		if domain.IsIdempotencyConflict(err) {
			s.logger.WithError(err).WithFields(log.Fields{
				"idempotency_key": key,
				"operation":       operation,
			}).Warn("конфликт ключа идемпотентности")
		}
		return nil, s.toStatus(err, operation)
	}
	if !outcome.Replayed {
		return resp, runErr
	}

	if outcome.Failed() {
		return nil, decodeIdempotencyFailure(outcome)
	}
	if len(outcome.Body) == 0 {
		return nil, status.Error(codes.Internal, "idempotency cache is empty")
	}
	cached := new(Order)
	if err := json.Unmarshal(outcome.Body, cached); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to decode cached idempotency response")
		return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
	}
	return &OrderResponse{Order: cached}, nil
}

func encodeFailure(runErr error) idempotency.Outcome {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}

	payload, err := json.Marshal(idempotencyFailure{
		Error: st.Message(),
		Code:  int32(code), //nolint:gosec // codes.Code is a bounded enum value.
	})
	if err != nil {
		payload = nil
	}
	return idempotency.Outcome{Code: httpStatusFor(code), Body: payload}
}

// decodeIdempotencyFailure восстанавливает статус из сохранённой ошибки. Для записей REST
// code отсутствует, и он выводится из HTTP-кода, а сообщение берётся из поля error.
func decodeIdempotencyFailure(outcome idempotency.Outcome) error {
	var payload idempotencyFailure
	if len(outcome.Body) > 0 {
		if err := json.Unmarshal(outcome.Body, &payload); err != nil {
			payload = idempotencyFailure{}
		}
	}
	if payload.Error == "" {
		payload.Error = replayedFailureMessage
	}

	if payload.Code != 0 {
		if code, ok := grpcCodeFromInt32(payload.Code); ok {
			return status.Error(code, payload.Error)
		}
	}
	return status.Error(codeFromHTTPStatus(outcome.Code), payload.Error)
}

func grpcCodeFromInt32(value int32) (codes.Code, bool) {
	if value < int32(codes.OK) || value > int32(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

// httpStatusFor и codeFromHTTPStatus согласуют коды с записями REST-слоя в общем хранилище ключей.
func httpStatusFor(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func codeFromHTTPStatus(code int) codes.Code {
	switch code {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusConflict:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

func toOrder(order domain.Order) *Order {
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItem{
			ID:         item.ID,
			MedicineID: item.MedicineID,
			Quantity:   int32(item.Quantity), //nolint:gosec // OrderDraft.Validate ограничивает количество domain.MaxItemQuantity.
			Price:      item.Price.StringFixed(2),
		})
	}

	return &Order{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		SellerID:        order.SellerID,
		TotalAmount:     order.TotalAmount.StringFixed(2),
		Status:          string(order.Status),
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   string(order.PaymentMethod),
		Items:           items,
		Version:         order.Version,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toListResponse(orders []domain.Order) *ListOrdersResponse {
	result := make([]*Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrder(order))
	}
	return &ListOrdersResponse{Orders: result}
}
