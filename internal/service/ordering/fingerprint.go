package ordering

import (
	"encoding/json"
	"strings"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// Имена операций для ключей идемпотентности. REST и gRPC используют одни и те же,
// поэтому ключ, созданный через один транспорт, повторяется через другой.
const (
	OperationCreateOrder       = "create_order"
	OperationCancelOrder       = "cancel_order"
	OperationUpdateOrderStatus = "update_order_status"
)

type lineFingerprint struct {
	MedicineID string `json:"medicineId"`
	Quantity   int    `json:"quantity"`
	Price      string `json:"price"`
}

type createFingerprint struct {
	SellerID        string            `json:"sellerId"`
	ShippingAddress string            `json:"shippingAddress"`
	Items           []lineFingerprint `json:"items"`
}

// Fingerprint — каноническое JSON-представление корзины для хеша идемпотентности.
// Не зависит от транспорта и записи цены: "2.50" и "2.5" дают одинаковый отпечаток.
func (r CreateOrderRequest) Fingerprint() []byte {
	fp := createFingerprint{
		SellerID:        r.SellerID,
		ShippingAddress: strings.TrimSpace(r.ShippingAddress),
		Items:           make([]lineFingerprint, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		fp.Items = append(fp.Items, lineFingerprint{
			MedicineID: item.MedicineID,
			Quantity:   item.Quantity,
			Price:      item.Price.String(),
		})
	}
	data, err := json.Marshal(fp)
	if err != nil {
		// структура состоит из строк и чисел, сюда не попадаем
		return nil
	}
	return data
}

// CancelFingerprint — отпечаток запроса на отмену заказа.
func CancelFingerprint(orderID string) []byte {
	return []byte(orderID)
}

// StatusFingerprint — отпечаток запроса на смену статуса.
func StatusFingerprint(orderID string, target domain.OrderStatus) []byte {
	return []byte(orderID + "\x00" + string(target))
}
