package grpcsvc

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "medistore.v1.MarketplaceService"

const (
	methodCreateOrder        = "/" + ServiceName + "/CreateOrder"
	methodGetOrder           = "/" + ServiceName + "/GetOrder"
	methodCancelOrder        = "/" + ServiceName + "/CancelOrder"
	methodUpdateOrderStatus  = "/" + ServiceName + "/UpdateOrderStatus"
	methodListCustomerOrders = "/" + ServiceName + "/ListCustomerOrders"
	methodListSellerOrders   = "/" + ServiceName + "/ListSellerOrders"
)

type LineItem struct {
	MedicineID string `json:"medicineId"`
	Quantity   int32  `json:"quantity"`
	// Price — десятичная строка, например "12.50".
	Price string `json:"price"`
}

type CreateOrderRequest struct {
	SellerID        string     `json:"sellerId"`
	ShippingAddress string     `json:"shippingAddress"`
	Items           []LineItem `json:"items"`
}

type OrderItem struct {
	ID         string `json:"id"`
	MedicineID string `json:"medicineId"`
	Quantity   int32  `json:"quantity"`
	Price      string `json:"price"`
}

// Order совпадает по JSON с ответом REST API: записи идемпотентности общие для обоих транспортов.
type Order struct {
	ID              string      `json:"id"`
	OrderNumber     string      `json:"orderNumber"`
	CustomerID      string      `json:"customerId"`
	SellerID        string      `json:"sellerId"`
	TotalAmount     string      `json:"totalAmount"`
	Status          string      `json:"status"`
	ShippingAddress string      `json:"shippingAddress"`
	PaymentMethod   string      `json:"paymentMethod"`
	Items           []OrderItem `json:"items"`
	Version         int64       `json:"version"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

type OrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"orderId"`
}

type TimelineEvent struct {
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	UnixTime int64  `json:"unixTime"`
}

type GetOrderResponse struct {
	Order    *Order          `json:"order"`
	Timeline []TimelineEvent `json:"timeline"`
}

type CancelOrderRequest struct {
	OrderID string `json:"orderId"`
}

type UpdateOrderStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type ListOrdersRequest struct {
	PageSize int32 `json:"pageSize"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

// MarketplaceServer — серверная сторона MarketplaceService.
type MarketplaceServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*OrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*OrderResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*OrderResponse, error)
	ListCustomerOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	ListSellerOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
}

// unaryHandler строит grpc.MethodHandler для метода с запросом типа Req.
func unaryHandler[Req any, Resp any](fullMethod string, call func(MarketplaceServer, context.Context, *Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(MarketplaceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*Req))
		})
	}
}

// ServiceDesc описывает MarketplaceService без сгенерированного кода.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketplaceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler(methodCreateOrder, MarketplaceServer.CreateOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(methodGetOrder, MarketplaceServer.GetOrder)},
		{MethodName: "CancelOrder", Handler: unaryHandler(methodCancelOrder, MarketplaceServer.CancelOrder)},
		{MethodName: "UpdateOrderStatus", Handler: unaryHandler(methodUpdateOrderStatus, MarketplaceServer.UpdateOrderStatus)},
		{MethodName: "ListCustomerOrders", Handler: unaryHandler(methodListCustomerOrders, MarketplaceServer.ListCustomerOrders)},
		{MethodName: "ListSellerOrders", Handler: unaryHandler(methodListSellerOrders, MarketplaceServer.ListSellerOrders)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "medistore/v1/marketplace.json",
}

// RegisterMarketplaceServer регистрирует реализацию на gRPC-сервере.
func RegisterMarketplaceServer(s grpc.ServiceRegistrar, srv MarketplaceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client — клиент MarketplaceService, всегда использующий JSON-кодек.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, methodCreateOrder, in, opts)
}

func (c *Client) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, methodGetOrder, in, opts)
}

func (c *Client) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, methodCancelOrder, in, opts)
}

func (c *Client) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, methodUpdateOrderStatus, in, opts)
}

func (c *Client) ListCustomerOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, methodListCustomerOrders, in, opts)
}

func (c *Client) ListSellerOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, methodListSellerOrders, in, opts)
}
