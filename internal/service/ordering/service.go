package ordering

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
	"github.com/vladislavdragonenkov/medistore/internal/metrics"
	"github.com/vladislavdragonenkov/medistore/internal/service/inventory"
	"github.com/vladislavdragonenkov/medistore/internal/tracing"
)

// PriceSource определяет, откуда берётся цена позиции заказа.
type PriceSource string

const (
	// PriceFromRequest — цена из корзины клиента фиксируется как есть.
	PriceFromRequest PriceSource = "request"
	// PriceFromCatalog — цена вычисляется из заблокированной строки препарата.
	PriceFromCatalog PriceSource = "catalog"
)

// ParsePriceSource разбирает значение из конфигурации.
func ParsePriceSource(raw string) (PriceSource, error) {
	switch source := PriceSource(strings.ToLower(strings.TrimSpace(raw))); source {
	case "":
		return PriceFromRequest, nil
	case PriceFromRequest, PriceFromCatalog:
		return source, nil
	default:
		return "", fmt.Errorf("unknown price source %q", raw)
	}
}

// Options — необязательные зависимости сервиса.
type Options struct {
	PriceSource  PriceSource
	OrderNumbers domain.OrderNumberGenerator
	Retry        RetryConfig
	Metrics      *metrics.OrderMetrics
	Tracer       trace.Tracer
	Now          func() time.Time
	Logger       *log.Entry
}

// Service выполняет операции над заказами, каждая в одной единице работы хранилища.
type Service struct {
	uow         domain.UnitOfWork
	ledger      *inventory.Ledger
	priceSource PriceSource
	numbers     domain.OrderNumberGenerator
	retry       RetryConfig
	metrics     *metrics.OrderMetrics
	tracer      trace.Tracer
	now         func() time.Time
	logger      *log.Entry
}

// NewService создаёт сервис заказов.
func NewService(uow domain.UnitOfWork, ledger *inventory.Ledger, opts Options) *Service {
	if opts.PriceSource == "" {
		opts.PriceSource = PriceFromRequest
	}
	if opts.OrderNumbers == nil {
		opts.OrderNumbers = domain.NewOrderNumber
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracing.InstrumentationName)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}
	if ledger == nil {
		var recorder inventory.Recorder
		if opts.Metrics != nil {
			recorder = opts.Metrics
		}
		ledger = inventory.NewLedger(recorder, opts.Logger)
	}

	return &Service{
		uow:         uow,
		ledger:      ledger,
		priceSource: opts.PriceSource,
		numbers:     opts.OrderNumbers,
		retry:       opts.Retry.normalized(),
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
		now:         opts.Now,
		logger:      opts.Logger.WithField("component", "ordering"),
	}
}

// CreateOrderRequest — корзина клиента для одного продавца.
type CreateOrderRequest struct {
	SellerID        string
	ShippingAddress string
	Items           []domain.LineItem
}

// CreateOrder оформляет заказ: заголовок, позиции и списание остатков фиксируются вместе или не фиксируются вовсе.
func (s *Service) CreateOrder(ctx context.Context, actor domain.Actor, req CreateOrderRequest) (order domain.Order, err error) {
	ctx, finish := s.begin(ctx, metrics.OperationCreate,
		attribute.String("seller.id", req.SellerID),
		attribute.Int("order.items", len(req.Items)),
	)
	defer func() { finish(err) }()

	if err := domain.Authorize(actor, domain.RoleCustomer); err != nil {
		return domain.Order{}, err
	}

	draft := domain.OrderDraft{
		CustomerID:      actor.ID,
		SellerID:        req.SellerID,
		ShippingAddress: req.ShippingAddress,
		Items:           req.Items,
	}

	err = s.withRetry(ctx, func(int) error {
		built, buildErr := domain.BuildOrder(draft, s.numbers, s.now())
		if buildErr != nil {
			return buildErr
		}
		txErr := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
			return s.placeOrder(ctx, tx, actor, &built)
		})
		if txErr != nil {
			return txErr
		}
		order = built
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.number", order.OrderNumber),
	)
	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"seller_id":    order.SellerID,
		"total":        order.TotalAmount.StringFixed(2),
	}).Info("заказ создан")

	return order, nil
}

// placeOrder резервирует позиции в порядке возрастания ID препарата и сохраняет заказ
// с позициями в порядке корзины. Любая ошибка откатывает всю единицу работы.
func (s *Service) placeOrder(ctx context.Context, tx domain.Tx, actor domain.Actor, order *domain.Order) error {
	medicines := tx.Medicines()
	for _, i := range lockOrder(order.Items) {
		item := &order.Items[i]
		medicine, err := s.ledger.Reserve(ctx, medicines, order.SellerID, item.MedicineID, item.Quantity)
		if err != nil {
			return err
		}
		if s.priceSource == PriceFromCatalog {
			item.Price = medicine.UnitPrice()
		}
	}
	order.TotalAmount = domain.TotalOf(order.Items)
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	orders := tx.Orders()
	if err := orders.CreateHeader(ctx, *order); err != nil {
		return err
	}
	for _, item := range order.Items {
		if err := orders.AddItem(ctx, item); err != nil {
			return err
		}
	}

	return s.emit(ctx, tx, *order, "", actor, domain.EventOrderCreated, domain.TimelineOrderPlaced,
		fmt.Sprintf("placed by customer %s", actor.ID))
}

// CancelOrder отменяет заказ по запросу клиента или продавца и возвращает остатки.
// Чужой заказ неотличим от отсутствующего.
func (s *Service) CancelOrder(ctx context.Context, actor domain.Actor, orderID string) (order domain.Order, err error) {
	ctx, finish := s.begin(ctx, metrics.OperationCancel, attribute.String("order.id", orderID))
	defer func() { finish(err) }()

	if err := domain.Authorize(actor, domain.RoleCustomer, domain.RoleSeller); err != nil {
		return domain.Order{}, err
	}

	var previous domain.OrderStatus
	err = s.withRetry(ctx, func(int) error {
		return s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
			current, err := tx.Orders().GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if actor.ID != current.CustomerID && actor.ID != current.SellerID {
				return domain.ErrOrderNotFound
			}

			previous = current.Status
			if err := current.Cancel(s.now()); err != nil {
				return err
			}
			if err := s.releaseItems(ctx, tx, current); err != nil {
				return err
			}
			if err := tx.Orders().Save(ctx, current); err != nil {
				return err
			}
			current.Version++

			if err := s.emit(ctx, tx, current, previous, actor, domain.EventOrderCancelled, domain.TimelineCancelled,
				fmt.Sprintf("cancelled by %s %s from %s", strings.ToLower(string(actor.Role)), actor.ID, previous)); err != nil {
				return err
			}
			order = current
			return nil
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCancelled()
	}
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"actor_id": actor.ID,
		"previous": previous,
	}).Info("заказ отменён")

	return order, nil
}

// UpdateOrderStatus переводит заказ по таблице переходов. Продавец видит только свои заказы,
// администратор видит любые. Переход в CANCELLED возвращает остатки в той же единице работы.
func (s *Service) UpdateOrderStatus(ctx context.Context, actor domain.Actor, orderID string, target domain.OrderStatus) (order domain.Order, err error) {
	ctx, finish := s.begin(ctx, metrics.OperationUpdateStatus,
		attribute.String("order.id", orderID),
		attribute.String("order.target_status", string(target)),
	)
	defer func() { finish(err) }()

	if err := domain.Authorize(actor, domain.RoleSeller, domain.RoleAdmin); err != nil {
		return domain.Order{}, err
	}
	if !target.Valid() {
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrUnknownOrderStatus, target)
	}

	var previous domain.OrderStatus
	err = s.withRetry(ctx, func(int) error {
		return s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
			current, err := tx.Orders().GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if current.AuthorizeStatusUpdate(actor) != nil {
				return domain.ErrOrderNotFound
			}

			previous = current.Status
			if err := current.TransitionTo(target, s.now()); err != nil {
				return err
			}
			if target == domain.OrderStatusCancelled {
				if err := s.releaseItems(ctx, tx, current); err != nil {
					return err
				}
			}
			if err := tx.Orders().Save(ctx, current); err != nil {
				return err
			}
			current.Version++

			eventType, timelineType := domain.EventOrderStatusChanged, domain.TimelineStatusChanged
			if target == domain.OrderStatusCancelled {
				eventType, timelineType = domain.EventOrderCancelled, domain.TimelineCancelled
			}
			if err := s.emit(ctx, tx, current, previous, actor, eventType, timelineType,
				fmt.Sprintf("%s -> %s by %s %s", previous, target, strings.ToLower(string(actor.Role)), actor.ID)); err != nil {
				return err
			}
			order = current
			return nil
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordStatusChange(string(target))
		if target == domain.OrderStatusCancelled {
			s.metrics.RecordOrderCancelled()
		}
	}
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"actor_id": actor.ID,
		"from":     previous,
		"to":       target,
	}).Info("статус заказа обновлён")

	return order, nil
}

// releaseItems возвращает остатки в том же порядке блокировок, что и placeOrder.
func (s *Service) releaseItems(ctx context.Context, tx domain.Tx, order domain.Order) error {
	medicines := tx.Medicines()
	for _, i := range lockOrder(order.Items) {
		item := order.Items[i]
		if err := s.ledger.Release(ctx, medicines, item.MedicineID, item.Quantity); err != nil {
			return fmt.Errorf("release %s for order %s: %w", item.MedicineID, order.ID, err)
		}
	}
	return nil
}

// lockOrder возвращает индексы позиций по возрастанию ID препарата. Все транзакции
// блокируют строки medicines в этом порядке, поэтому встречные корзины не взаимоблокируются.
func lockOrder(items []domain.OrderItem) []int {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int {
		return strings.Compare(items[a].MedicineID, items[b].MedicineID)
	})
	return idx
}

// begin открывает span и замер длительности операции. Возвращаемая функция
// фиксирует ошибку в метриках и span и закрывает их.
func (s *Service) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "ordering."+operation, trace.WithAttributes(attrs...))

	var done func()
	if s.metrics != nil {
		done = s.metrics.Begin(operation)
	}

	return ctx, func(err error) {
		if err != nil {
			kind := domain.KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, string(kind))
			if s.metrics != nil {
				s.metrics.RecordFailure(operation, string(kind))
			}
			if kind == domain.KindInternal {
				s.logger.WithError(err).WithField("operation", operation).Error("операция с заказом завершилась ошибкой")
			}
		}
		if done != nil {
			done()
		}
		span.End()
	}
}
