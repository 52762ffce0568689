package validation

import (
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
)

// CheckoutItem описывает одну позицию в запросе оформления заказа.
type CheckoutItem struct {
	ProductID int64 `json:"productId" validate:"required"`
	Quantity  int32 `json:"quantity" validate:"required,min=1"`
}

// CheckoutRequest описывает запрос оформления заказа.
// Идентификатор может быть сгенерирован клиентом; пустые items отклоняет
// не валидатор, а создание заказа, чтобы ошибка была различима.
type CheckoutRequest struct {
	ID          string         `json:"id" validate:"omitempty,max=64"`
	TotalAmount float64        `json:"totalAmount" validate:"gte=0"`
	Payment     string         `json:"payment" validate:"required"`
	ReceiveDate string         `json:"receiveDate"`
	ReceiveTime string         `json:"receiveTime"`
	Note        string         `json:"note"`
	Address     string         `json:"address" validate:"required"`
	Receiver    string         `json:"receiver" validate:"required"`
	Phone       string         `json:"phone" validate:"required"`
	Items       []CheckoutItem `json:"items" validate:"dive"`
}

// NewCheckoutValidator возвращает настроенный валидатор запроса оформления заказа.
func NewCheckoutValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})
	return v
}

// checkoutStructValidation проверяет формат клиентского идентификатора заказа
// и формат даты выдачи.
func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)

	if req.ID != "" && !IsValidOrderID(req.ID) {
		sl.ReportError(req.ID, "id", "ID", "order_id_format", "")
	}

	if req.ReceiveDate != "" {
		if _, err := time.Parse("2006-01-02", req.ReceiveDate); err != nil {
			sl.ReportError(req.ReceiveDate, "receiveDate", "ReceiveDate", "date_format", "")
		}
	}
}
