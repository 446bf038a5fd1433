package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/medistore/internal/service/catalog"
	"github.com/vladislavdragonenkov/medistore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/medistore/internal/service/ordering"
	"github.com/vladislavdragonenkov/medistore/internal/service/reviews"
	"github.com/vladislavdragonenkov/medistore/internal/storage/memory"
	httpapi "github.com/vladislavdragonenkov/medistore/internal/transport/http"
)

type testActor struct {
	id   string
	role string
}

var (
	customer = testActor{id: "customer-1", role: "CUSTOMER"}
	seller   = testActor{id: "seller-1", role: "SELLER"}
	stranger = testActor{id: "customer-9", role: "customer"}
)

type apiFixture struct {
	t      *testing.T
	server *httptest.Server
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	store := memory.NewStore()
	handler := httpapi.NewHandler(
		ordering.NewService(store, nil, ordering.Options{}),
		catalog.NewService(store, nil, nil),
		reviews.NewService(store, nil),
		idempotency.NewGuard(memory.NewIdempotencyRepository(), 0, nil),
		nil,
	)
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)
	return &apiFixture{t: t, server: server}
}

type response struct {
	code    int
	body    []byte
	replay  string
	payload map[string]any
}

func (f *apiFixture) do(method, path string, actor *testActor, body any, headers ...string) response {
	f.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(httpapi.HeaderUserID, actor.id)
		req.Header.Set(httpapi.HeaderUserRole, actor.role)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(f.t, err)

	out := response{code: resp.StatusCode, body: buf.Bytes(), replay: resp.Header.Get(httpapi.HeaderReplayed)}
	if len(out.body) > 0 && out.body[0] == '{' {
		require.NoError(f.t, json.Unmarshal(out.body, &out.payload))
	}
	return out
}

func (f *apiFixture) createMedicine(stock *int) string {
	f.t.Helper()
	body := map[string]any{"name": "Ibuprofen", "basePrice": "10.00", "discountPercent": "10"}
	if stock != nil {
		body["stock"] = *stock
	}
	resp := f.do(http.MethodPost, "/api/seller/medicines", &seller, body)
	require.Equal(f.t, http.StatusCreated, resp.code, string(resp.body))
	return resp.payload["id"].(string)
}

func orderBody(medicineID string, qty int) map[string]any {
	return map[string]any{
		"sellerId":        "seller-1",
		"shippingAddress": "Kazan, Baumana 5",
		"items": []map[string]any{
			{"medicineId": medicineID, "quantity": qty, "price": "9.00"},
		},
	}
}

func pricedOrderBody(medicineID, price string) map[string]any {
	body := orderBody(medicineID, 1)
	body["items"] = []map[string]any{{"medicineId": medicineID, "quantity": 1, "price": price}}
	return body
}

func intPtr(v int) *int { return &v }

func TestOrderLifecycle(t *testing.T) {
	api := newAPI(t)
	medicineID := api.createMedicine(intPtr(5))

	created := api.do(http.MethodPost, "/api/orders", &customer, orderBody(medicineID, 5))
	require.Equal(t, http.StatusCreated, created.code, string(created.body))
	assert.Equal(t, "PLACED", created.payload["status"])
	assert.Equal(t, "45.00", created.payload["totalAmount"])
	orderID := created.payload["id"].(string)

	medicine := api.do(http.MethodGet, "/api/medicines/"+medicineID, nil, nil)
	require.Equal(t, http.StatusOK, medicine.code)
	assert.EqualValues(t, 0, medicine.payload["stock"])

	rejected := api.do(http.MethodPost, "/api/orders", &customer, orderBody(medicineID, 1))
	assert.Equal(t, http.StatusConflict, rejected.code)
	assert.Contains(t, rejected.payload["error"], "insufficient stock")

	skip := api.do(http.MethodPatch, "/api/seller/orders/"+orderID+"/status", &seller, map[string]string{"status": "SHIPPED"})
	assert.Equal(t, http.StatusConflict, skip.code)

	cancelled := api.do(http.MethodPatch, "/api/orders/"+orderID+"/cancel", &customer, nil)
	require.Equal(t, http.StatusOK, cancelled.code, string(cancelled.body))
	assert.Equal(t, "CANCELLED", cancelled.payload["status"])

	medicine = api.do(http.MethodGet, "/api/medicines/"+medicineID, nil, nil)
	assert.EqualValues(t, 5, medicine.payload["stock"])

	timeline := api.do(http.MethodGet, "/api/orders/"+orderID+"/timeline", &customer, nil)
	require.Equal(t, http.StatusOK, timeline.code)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(timeline.body, &events))
	require.Len(t, events, 2)
	assert.Equal(t, "order_placed", events[0]["type"])
	assert.Equal(t, "order_cancelled", events[1]["type"])

	hidden := api.do(http.MethodGet, "/api/orders/"+orderID, &stranger, nil)
	assert.Equal(t, http.StatusNotFound, hidden.code)

	mine := api.do(http.MethodGet, "/api/orders/my-orders", &customer, nil)
	require.Equal(t, http.StatusOK, mine.code)
	var orders []map[string]any
	require.NoError(t, json.Unmarshal(mine.body, &orders))
	assert.Len(t, orders, 1)
}

func TestRequestErrors(t *testing.T) {
	api := newAPI(t)
	medicineID := api.createMedicine(nil)

	tests := []struct {
		name   string
		method string
		path   string
		actor  *testActor
		body   any
		code   int
	}{
		{name: "anonymous", method: http.MethodPost, path: "/api/orders", body: orderBody(medicineID, 1), code: http.StatusUnauthorized},
		{name: "seller cannot order", method: http.MethodPost, path: "/api/orders", actor: &seller, body: orderBody(medicineID, 1), code: http.StatusForbidden},
		{name: "malformed json", method: http.MethodPost, path: "/api/orders", actor: &customer, body: "{oops", code: http.StatusBadRequest},
		{name: "empty cart", method: http.MethodPost, path: "/api/orders", actor: &customer, body: map[string]any{"sellerId": "seller-1", "shippingAddress": "x", "items": []any{}}, code: http.StatusBadRequest},
		{name: "zero quantity", method: http.MethodPost, path: "/api/orders", actor: &customer, body: orderBody(medicineID, 0), code: http.StatusBadRequest},
		{name: "quantity above int32", method: http.MethodPost, path: "/api/orders", actor: &customer, body: orderBody(medicineID, 2147483648), code: http.StatusBadRequest},
		{name: "sub-cent price", method: http.MethodPost, path: "/api/orders", actor: &customer, body: pricedOrderBody(medicineID, "9.001"), code: http.StatusBadRequest},
		{name: "price above column", method: http.MethodPost, path: "/api/orders", actor: &customer, body: pricedOrderBody(medicineID, "10000000000"), code: http.StatusBadRequest},
		{name: "restock above int32", method: http.MethodPost, path: "/api/seller/medicines/" + medicineID + "/restock", actor: &seller, body: map[string]int{"quantity": 2147483648}, code: http.StatusBadRequest},
		{name: "unknown status", method: http.MethodPatch, path: "/api/seller/orders/any/status", actor: &seller, body: map[string]string{"status": "LOST"}, code: http.StatusBadRequest},
		{name: "missing order", method: http.MethodPatch, path: "/api/orders/missing/cancel", actor: &customer, code: http.StatusNotFound},
		{name: "bad limit", method: http.MethodGet, path: "/api/orders/my-orders?limit=-1", actor: &customer, code: http.StatusBadRequest},
		{name: "missing medicine", method: http.MethodGet, path: "/api/medicines/none", code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.do(tt.method, tt.path, tt.actor, tt.body)
			assert.Equal(t, tt.code, resp.code, string(resp.body))
			assert.NotEmpty(t, resp.payload["error"])
		})
	}
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	api := newAPI(t)
	medicineID := api.createMedicine(intPtr(10))

	first := api.do(http.MethodPost, "/api/orders", &customer, orderBody(medicineID, 2), httpapi.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, first.code, string(first.body))
	assert.Empty(t, first.replay)

	second := api.do(http.MethodPost, "/api/orders", &customer, orderBody(medicineID, 2), httpapi.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, second.code)
	assert.Equal(t, "true", second.replay)
	assert.JSONEq(t, string(first.body), string(second.body))

	reused := api.do(http.MethodPost, "/api/orders", &customer, orderBody(medicineID, 3), httpapi.HeaderIdempotencyKey, "key-1")
	assert.Equal(t, http.StatusConflict, reused.code)

	medicine := api.do(http.MethodGet, "/api/medicines/"+medicineID, nil, nil)
	assert.EqualValues(t, 8, medicine.payload["stock"])
}

func TestCreateOrderIdempotencyIgnoresPriceNotation(t *testing.T) {
	api := newAPI(t)
	medicineID := api.createMedicine(intPtr(10))

	first := api.do(http.MethodPost, "/api/orders", &customer, pricedOrderBody(medicineID, "9.00"), httpapi.HeaderIdempotencyKey, "key-n")
	require.Equal(t, http.StatusCreated, first.code, string(first.body))

	second := api.do(http.MethodPost, "/api/orders", &customer, pricedOrderBody(medicineID, "9"), httpapi.HeaderIdempotencyKey, "key-n")
	require.Equal(t, http.StatusCreated, second.code, string(second.body))
	assert.Equal(t, "true", second.replay)
	assert.Equal(t, first.payload["id"], second.payload["id"])

	medicine := api.do(http.MethodGet, "/api/medicines/"+medicineID, nil, nil)
	assert.EqualValues(t, 9, medicine.payload["stock"])
}

func TestIdempotencyReplaysFailure(t *testing.T) {
	api := newAPI(t)
	medicineID := api.createMedicine(intPtr(1))

	first := api.do(http.MethodPost, "/api/orders", &customer, orderBody(medicineID, 2), httpapi.HeaderIdempotencyKey, "key-f")
	require.Equal(t, http.StatusConflict, first.code)

	api.do(http.MethodPost, "/api/seller/medicines/"+medicineID+"/restock", &seller, map[string]int{"quantity": 5})

	second := api.do(http.MethodPost, "/api/orders", &customer, orderBody(medicineID, 2), httpapi.HeaderIdempotencyKey, "key-f")
	assert.Equal(t, http.StatusConflict, second.code)
	assert.Equal(t, "true", second.replay)
}

func TestCatalogAndReviewRoutes(t *testing.T) {
	api := newAPI(t)
	medicineID := api.createMedicine(intPtr(3))

	other := testActor{id: "seller-2", role: "SELLER"}
	forbidden := api.do(http.MethodPatch, "/api/seller/medicines/"+medicineID+"/active", &other, map[string]bool{"isActive": false})
	assert.Equal(t, http.StatusForbidden, forbidden.code)

	missingFlag := api.do(http.MethodPatch, "/api/seller/medicines/"+medicineID+"/active", &seller, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, missingFlag.code)

	deactivated := api.do(http.MethodPatch, "/api/seller/medicines/"+medicineID+"/active", &seller, map[string]bool{"isActive": false})
	require.Equal(t, http.StatusOK, deactivated.code)
	assert.Equal(t, false, deactivated.payload["isActive"])
	assert.Equal(t, "9.00", deactivated.payload["unitPrice"])

	unavailable := api.do(http.MethodPost, "/api/orders", &customer, orderBody(medicineID, 1))
	assert.Equal(t, http.StatusConflict, unavailable.code)

	restocked := api.do(http.MethodPost, "/api/seller/medicines/"+medicineID+"/restock", &seller, map[string]int{"quantity": 2})
	require.Equal(t, http.StatusOK, restocked.code)
	assert.EqualValues(t, 5, restocked.payload["stock"])

	review := api.do(http.MethodPost, "/api/reviews", &customer, map[string]any{"medicineId": medicineID, "rating": 5, "comment": "works"})
	require.Equal(t, http.StatusCreated, review.code, string(review.body))
	reviewID := review.payload["id"].(string)

	duplicate := api.do(http.MethodPost, "/api/reviews", &customer, map[string]any{"medicineId": medicineID, "rating": 4})
	assert.Equal(t, http.StatusConflict, duplicate.code)

	badRating := api.do(http.MethodPost, "/api/reviews", &stranger, map[string]any{"medicineId": medicineID, "rating": 9})
	assert.Equal(t, http.StatusBadRequest, badRating.code)

	reply := api.do(http.MethodPost, "/api/reviews/"+reviewID+"/replies", &seller, map[string]string{"comment": "thank you"})
	require.Equal(t, http.StatusCreated, reply.code, string(reply.body))

	list := api.do(http.MethodGet, "/api/medicines/"+medicineID+"/reviews", nil, nil)
	require.Equal(t, http.StatusOK, list.code)
	var threads []map[string]any
	require.NoError(t, json.Unmarshal(list.body, &threads))
	require.Len(t, threads, 1)
	assert.Len(t, threads[0]["replies"], 1)

	mine := api.do(http.MethodGet, "/api/seller/medicines", &seller, nil)
	require.Equal(t, http.StatusOK, mine.code)
	var medicines []map[string]any
	require.NoError(t, json.Unmarshal(mine.body, &medicines))
	assert.Len(t, medicines, 1)
}
