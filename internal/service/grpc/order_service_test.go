package grpcsvc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/medistore/internal/service/grpc"
	"github.com/vladislavdragonenkov/medistore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/medistore/internal/service/ordering"
	"github.com/vladislavdragonenkov/medistore/internal/storage/memory"
)

const bufSize = 1024 * 1024

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func asActor(ctx context.Context, id, role string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "x-user-id", id, "x-user-role", role)
}

func customerCtx() context.Context { return asActor(context.Background(), "customer-1", "CUSTOMER") }

func sellerCtx() context.Context { return asActor(context.Background(), "seller-1", "SELLER") }

func idemCtx(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "idempotency-key", key)
}

type testEnv struct {
	client *grpcsvc.Client
	conn   *grpc.ClientConn
	store  *memory.Store
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	store := memory.NewStore()
	logger := loggerForTests()

	require.NoError(t, store.Do(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Medicines().Create(ctx, domain.Medicine{
			ID:        "med-1",
			SellerID:  "seller-1",
			Name:      "Paracetamol",
			BasePrice: decimal.RequireFromString("4.50"),
			Stock:     domain.Tracked(3),
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		})
	}))

	orders := ordering.NewService(store, nil, ordering.Options{Logger: logger})
	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), time.Hour, logger)
	server := grpcsvc.NewServer(grpcsvc.NewMarketplaceService(orders, guard, logger), prometheus.NewRegistry(), logger)

	go func() {
		if err := server.Serve(listener); err != nil {
			logger.WithError(err).Error("grpc serve failed")
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}

	//nolint:staticcheck // grpc.Dial is required for bufconn testing
	conn, err := grpc.Dial("bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	return &testEnv{client: grpcsvc.NewClient(conn), conn: conn, store: store}
}

func mustStatusCode(t *testing.T, err error, expected codes.Code) {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "expected grpc status error, got %v", err)
	require.Equal(t, expected, st.Code(), st.Message())
}

func createRequest(qty int32) *grpcsvc.CreateOrderRequest {
	return &grpcsvc.CreateOrderRequest{
		SellerID:        "seller-1",
		ShippingAddress: "Samara, Molodogvardeyskaya 2",
		Items:           []grpcsvc.LineItem{{MedicineID: "med-1", Quantity: qty, Price: "4.50"}},
	}
}

func TestMarketplaceService_CreateAndGet(t *testing.T) {
	env := newTestServer(t)

	created, err := env.client.CreateOrder(customerCtx(), createRequest(2))
	require.NoError(t, err)
	require.NotNil(t, created.Order)
	require.Equal(t, "PLACED", created.Order.Status)
	require.Equal(t, "9.00", created.Order.TotalAmount)
	require.Len(t, created.Order.Items, 1)

	got, err := env.client.GetOrder(sellerCtx(), &grpcsvc.GetOrderRequest{OrderID: created.Order.ID})
	require.NoError(t, err)
	require.Equal(t, created.Order.OrderNumber, got.Order.OrderNumber)
	require.Len(t, got.Timeline, 1)
	require.Equal(t, domain.TimelineOrderPlaced, got.Timeline[0].Type)

	_, err = env.client.GetOrder(asActor(context.Background(), "customer-2", "CUSTOMER"), &grpcsvc.GetOrderRequest{OrderID: created.Order.ID})
	mustStatusCode(t, err, codes.NotFound)

	list, err := env.client.ListCustomerOrders(customerCtx(), &grpcsvc.ListOrdersRequest{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)

	sellerList, err := env.client.ListSellerOrders(sellerCtx(), &grpcsvc.ListOrdersRequest{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, sellerList.Orders, 1)
}

func TestMarketplaceService_ErrorCodes(t *testing.T) {
	env := newTestServer(t)

	_, err := env.client.CreateOrder(context.Background(), createRequest(1))
	mustStatusCode(t, err, codes.Unauthenticated)

	_, err = env.client.CreateOrder(sellerCtx(), createRequest(1))
	mustStatusCode(t, err, codes.PermissionDenied)

	_, err = env.client.CreateOrder(customerCtx(), createRequest(4))
	mustStatusCode(t, err, codes.FailedPrecondition)

	bad := createRequest(1)
	bad.Items[0].Price = "abc"
	_, err = env.client.CreateOrder(customerCtx(), bad)
	mustStatusCode(t, err, codes.InvalidArgument)

	subCent := createRequest(1)
	subCent.Items[0].Price = "4.505"
	_, err = env.client.CreateOrder(customerCtx(), subCent)
	mustStatusCode(t, err, codes.InvalidArgument)

	_, err = env.client.CreateOrder(customerCtx(), createRequest(-1))
	mustStatusCode(t, err, codes.InvalidArgument)

	_, err = env.client.UpdateOrderStatus(sellerCtx(), &grpcsvc.UpdateOrderStatusRequest{OrderID: "x", Status: "LOST"})
	mustStatusCode(t, err, codes.InvalidArgument)

	_, err = env.client.CancelOrder(customerCtx(), &grpcsvc.CancelOrderRequest{})
	mustStatusCode(t, err, codes.InvalidArgument)
}

func TestMarketplaceService_StatusFlowAndCancel(t *testing.T) {
	env := newTestServer(t)

	created, err := env.client.CreateOrder(customerCtx(), createRequest(3))
	require.NoError(t, err)
	orderID := created.Order.ID

	_, err = env.client.UpdateOrderStatus(sellerCtx(), &grpcsvc.UpdateOrderStatusRequest{OrderID: orderID, Status: "SHIPPED"})
	mustStatusCode(t, err, codes.FailedPrecondition)

	processing, err := env.client.UpdateOrderStatus(sellerCtx(), &grpcsvc.UpdateOrderStatusRequest{OrderID: orderID, Status: "processing"})
	require.NoError(t, err)
	require.Equal(t, "PROCESSING", processing.Order.Status)

	cancelled, err := env.client.CancelOrder(customerCtx(), &grpcsvc.CancelOrderRequest{OrderID: orderID})
	require.NoError(t, err)
	require.Equal(t, "CANCELLED", cancelled.Order.Status)

	_, err = env.client.CancelOrder(customerCtx(), &grpcsvc.CancelOrderRequest{OrderID: orderID})
	mustStatusCode(t, err, codes.FailedPrecondition)

	again, err := env.client.CreateOrder(customerCtx(), createRequest(3))
	require.NoError(t, err)
	require.Equal(t, "PLACED", again.Order.Status)
}

func TestMarketplaceService_IdempotentReplay(t *testing.T) {
	env := newTestServer(t)
	ctx := idemCtx(customerCtx(), "order-key")

	first, err := env.client.CreateOrder(ctx, createRequest(1))
	require.NoError(t, err)

	second, err := env.client.CreateOrder(ctx, createRequest(1))
	require.NoError(t, err)
	require.Equal(t, first.Order.ID, second.Order.ID)

	list, err := env.client.ListCustomerOrders(customerCtx(), &grpcsvc.ListOrdersRequest{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)

	_, err = env.client.CreateOrder(ctx, createRequest(2))
	mustStatusCode(t, err, codes.AlreadyExists)
}

func TestMarketplaceService_IdempotencyIgnoresPriceNotation(t *testing.T) {
	env := newTestServer(t)
	ctx := idemCtx(customerCtx(), "notation-key")

	first, err := env.client.CreateOrder(ctx, createRequest(1))
	require.NoError(t, err)

	trimmed := createRequest(1)
	trimmed.Items[0].Price = "4.5"
	second, err := env.client.CreateOrder(ctx, trimmed)
	require.NoError(t, err)
	require.Equal(t, first.Order.ID, second.Order.ID)
	require.Equal(t, "4.50", second.Order.TotalAmount)
}

func TestMarketplaceService_IdempotentFailureReplay(t *testing.T) {
	env := newTestServer(t)
	ctx := idemCtx(customerCtx(), "too-many")

	_, err := env.client.CreateOrder(ctx, createRequest(5))
	mustStatusCode(t, err, codes.FailedPrecondition)

	_, err = env.client.CreateOrder(ctx, createRequest(5))
	mustStatusCode(t, err, codes.FailedPrecondition)
	require.Contains(t, status.Convert(err).Message(), "insufficient stock")
}

func TestMarketplaceService_Health(t *testing.T) {
	env := newTestServer(t)

	resp, err := healthpb.NewHealthClient(env.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: grpcsvc.ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
