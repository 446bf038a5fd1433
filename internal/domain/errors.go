package domain

import (
	"errors"
	"fmt"
)

// Классы ошибок. Конкретные ошибки ниже оборачивают один из них,
// поэтому транспорт может сопоставить код ответа через KindOf.
var (
	// ErrValidation — некорректные входные данные.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound — сущность отсутствует или не видна актору.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized — актор не представился.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden — у актора нет нужной роли или владения.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict — конфликт с уже сохранённым состоянием.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock — на складе меньше, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition — переход статуса заказа запрещён.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrMedicineUnavailable — препарат нельзя заказать у этого продавца.
	ErrMedicineUnavailable = errors.New("medicine unavailable")
)

var (
	ErrCustomerRequired        = fmt.Errorf("%w: customer_id is required", ErrValidation)
	ErrSellerRequired          = fmt.Errorf("%w: seller_id is required", ErrValidation)
	ErrShippingAddressRequired = fmt.Errorf("%w: shipping_address is required", ErrValidation)
	ErrItemsRequired           = fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	ErrMedicineIDRequired      = fmt.Errorf("%w: medicine_id is required", ErrValidation)
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQuantityInvalid  = fmt.Errorf("%w: item quantity must be greater than zero", ErrValidation)
	ErrItemQuantityTooLarge = fmt.Errorf("%w: item quantity must not exceed %d", ErrValidation, MaxItemQuantity)
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = fmt.Errorf("%w: item price must be non-negative", ErrValidation)
	// ErrItemPriceOutOfRange — цена не помещается в NUMERIC(12,2) без округления.
	ErrItemPriceOutOfRange  = fmt.Errorf("%w: item price must have at most two decimal places and not exceed 9999999999.99", ErrValidation)
	ErrOrderTotalOutOfRange = fmt.Errorf("%w: order total must not exceed 999999999999.99", ErrValidation)
	// ErrDuplicateLineItem — один и тот же препарат встречается в заказе дважды.
	ErrDuplicateLineItem    = fmt.Errorf("%w: duplicate medicine in order items", ErrValidation)
	ErrUnknownOrderStatus   = fmt.Errorf("%w: unknown order status", ErrValidation)
	ErrUnknownRole          = fmt.Errorf("%w: unknown role", ErrValidation)
	ErrMedicineNameRequired = fmt.Errorf("%w: medicine name is required", ErrValidation)
	ErrMedicinePriceInvalid = fmt.Errorf("%w: medicine price must be non-negative with at most two decimal places and not exceed 9999999999.99", ErrValidation)
	ErrDiscountInvalid      = fmt.Errorf("%w: discount percent must be within [0, 100]", ErrValidation)
	ErrStockNegative        = fmt.Errorf("%w: stock must be non-negative", ErrValidation)
	ErrReviewRatingInvalid  = fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	ErrReviewEmpty          = fmt.Errorf("%w: review needs a rating or a comment", ErrValidation)
	// ErrReviewNotEligible — заказ не подтверждает покупку препарата.
	ErrReviewNotEligible = fmt.Errorf("%w: order is not delivered or does not contain the medicine", ErrValidation)
	// ErrReplyDepth — ответы допускаются только на отзывы верхнего уровня.
	ErrReplyDepth = fmt.Errorf("%w: replies to replies are not allowed", ErrValidation)

	ErrIdempotencyKeyRequired         = fmt.Errorf("%w: idempotency key is required", ErrValidation)
	ErrIdempotencyRequestHashRequired = fmt.Errorf("%w: idempotency request hash is required", ErrValidation)
)

var (
	// ErrOrderNotFound возвращается, если заказ не найден или не виден актору.
	ErrOrderNotFound    = fmt.Errorf("order %w", ErrNotFound)
	ErrMedicineNotFound = fmt.Errorf("medicine %w", ErrNotFound)
	ErrReviewNotFound   = fmt.Errorf("review %w", ErrNotFound)
	// ErrIdempotencyKeyNotFound — по ключу идемпотентности нет записи.
	ErrIdempotencyKeyNotFound = fmt.Errorf("idempotency key %w", ErrNotFound)
)

var (
	// ErrOrderNumberConflict — сгенерированный номер заказа уже занят; можно повторить с новым номером.
	ErrOrderNumberConflict = fmt.Errorf("%w: order number already exists", ErrConflict)
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = fmt.Errorf("%w: order version conflict", ErrConflict)
	ErrMedicineExists       = fmt.Errorf("%w: medicine already exists", ErrConflict)
	// ErrAlreadyReviewed — клиент уже оставил отзыв на препарат.
	ErrAlreadyReviewed = fmt.Errorf("%w: you already reviewed this medicine", ErrConflict)
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = fmt.Errorf("%w: idempotency key already exists", ErrConflict)
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = fmt.Errorf("%w: idempotency key reused with different request", ErrConflict)
	// ErrTransientConflict — БД прервала транзакцию из-за взаимоблокировки или сбоя сериализации.
	// Единицу работы можно повторить целиком.
	ErrTransientConflict = fmt.Errorf("%w: transaction aborted by a concurrent update, retry", ErrConflict)
	// ErrIdempotencyKeyInProgress — запрос с этим ключом ещё обрабатывается.
	ErrIdempotencyKeyInProgress = fmt.Errorf("%w: request with this idempotency key is in progress", ErrConflict)
)

var (
	// ErrMedicineInactive — препарат снят с продажи.
	ErrMedicineInactive = fmt.Errorf("%w: medicine is not active", ErrMedicineUnavailable)
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientStockError описывает нехватку остатка по конкретному препарату.
type InsufficientStockError struct {
	MedicineID string
	Name       string
	Available  int
	Requested  int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.MedicineID
	}
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// MedicineUnavailableError указывает, какой препарат из корзины нельзя заказать и почему.
type MedicineUnavailableError struct {
	MedicineID string
	Cause      error
}

func (e *MedicineUnavailableError) Error() string {
	return fmt.Sprintf("medicine %s not found or not available from this seller", e.MedicineID)
}

func (e *MedicineUnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrMedicineUnavailable}
	}
	return []error{ErrMedicineUnavailable, e.Cause}
}

// InvalidTransitionError описывает отклонённый переход статуса.
type InvalidTransitionError struct {
	From   OrderStatus
	To     OrderStatus
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// ErrorKind — внешне наблюдаемый класс ошибки.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindForbidden         ErrorKind = "forbidden"
	KindConflict          ErrorKind = "conflict"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindUnavailable       ErrorKind = "medicine_unavailable"
	KindInternal          ErrorKind = "internal"
)

// KindOf классифицирует ошибку. Доменные классы проверяются раньше общих:
// MedicineUnavailableError может оборачивать ErrMedicineNotFound.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrMedicineUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
// Такой конфликт, как и ErrTransientConflict, снимается повтором единицы работы.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным использованием ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) ||
		errors.Is(err, ErrIdempotencyHashMismatch) ||
		errors.Is(err, ErrIdempotencyKeyInProgress)
}
