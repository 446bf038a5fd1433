package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// money — денежная сумма в ответе: строка с двумя знаками после запятой, как в gRPC API.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + decimal.Decimal(m).StringFixed(2) + `"`), nil
}

type lineItemRequest struct {
	MedicineID string          `json:"medicineId" validate:"required"`
	Quantity   int             `json:"quantity" validate:"required,min=1,max=2147483647"`
	Price      decimal.Decimal `json:"price"`
}

type createOrderRequest struct {
	SellerID        string            `json:"sellerId" validate:"required"`
	ShippingAddress string            `json:"shippingAddress" validate:"required"`
	Items           []lineItemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type createMedicineRequest struct {
	Name            string          `json:"name" validate:"required"`
	Manufacturer    string          `json:"manufacturer"`
	Unit            string          `json:"unit"`
	BasePrice       decimal.Decimal `json:"basePrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	// Stock: null или отсутствие поля означает неучитываемый остаток.
	Stock *int `json:"stock" validate:"omitempty,min=0,max=2147483647"`
}

type setActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

type restockRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=2147483647"`
}

type createReviewRequest struct {
	MedicineID string `json:"medicineId" validate:"required"`
	OrderID    string `json:"orderId"`
	Rating     int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment    string `json:"comment" validate:"max=2000"`
}

type replyRequest struct {
	Comment string `json:"comment" validate:"required,max=2000"`
}

type orderItemResponse struct {
	ID         string `json:"id"`
	MedicineID string `json:"medicineId"`
	Quantity   int    `json:"quantity"`
	Price      money  `json:"price"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	CustomerID      string              `json:"customerId"`
	SellerID        string              `json:"sellerId"`
	TotalAmount     money               `json:"totalAmount"`
	Status          string              `json:"status"`
	ShippingAddress string              `json:"shippingAddress"`
	PaymentMethod   string              `json:"paymentMethod"`
	Items           []orderItemResponse `json:"items"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:         item.ID,
			MedicineID: item.MedicineID,
			Quantity:   item.Quantity,
			Price:      money(item.Price),
		})
	}
	return orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		SellerID:        order.SellerID,
		TotalAmount:     money(order.TotalAmount),
		Status:          string(order.Status),
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   string(order.PaymentMethod),
		Items:           items,
		Version:         order.Version,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	result := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	return result
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason"`
	Occurred time.Time `json:"occurred"`
}

type medicineResponse struct {
	ID              string          `json:"id"`
	SellerID        string          `json:"sellerId"`
	Name            string          `json:"name"`
	Manufacturer    string          `json:"manufacturer,omitempty"`
	Unit            string          `json:"unit,omitempty"`
	BasePrice       money           `json:"basePrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	UnitPrice       money           `json:"unitPrice"`
	// Stock равен null для неучитываемого остатка.
	Stock     *int      `json:"stock"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func toMedicineResponse(m domain.Medicine) medicineResponse {
	return medicineResponse{
		ID:              m.ID,
		SellerID:        m.SellerID,
		Name:            m.Name,
		Manufacturer:    m.Manufacturer,
		Unit:            m.Unit,
		BasePrice:       money(m.BasePrice),
		DiscountPercent: m.DiscountPercent,
		UnitPrice:       money(m.UnitPrice()),
		Stock:           m.Stock.Nullable(),
		IsActive:        m.IsActive,
		CreatedAt:       m.CreatedAt,
	}
}

type reviewResponse struct {
	ID         string           `json:"id"`
	MedicineID string           `json:"medicineId"`
	CustomerID string           `json:"customerId,omitempty"`
	SellerID   string           `json:"sellerId,omitempty"`
	OrderID    string           `json:"orderId,omitempty"`
	ParentID   string           `json:"parentId,omitempty"`
	Rating     int              `json:"rating,omitempty"`
	Comment    string           `json:"comment,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	Replies    []reviewResponse `json:"replies,omitempty"`
}

func toReviewResponse(r domain.Review) reviewResponse {
	resp := reviewResponse{
		ID:         r.ID,
		MedicineID: r.MedicineID,
		CustomerID: r.CustomerID,
		SellerID:   r.SellerID,
		OrderID:    r.OrderID,
		ParentID:   r.ParentID,
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
	}
	for _, reply := range r.Replies {
		resp.Replies = append(resp.Replies, toReviewResponse(reply))
	}
	return resp
}
