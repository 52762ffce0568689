package validation

import "testing"

func validCheckout() CheckoutRequest {
	return CheckoutRequest{
		ID:          "ORD-1756700000000",
		TotalAmount: 25.5,
		Payment:     "cash",
		ReceiveDate: "2026-09-02",
		ReceiveTime: "10:00-12:00",
		Address:     "Lenina 1",
		Receiver:    "Ivan",
		Phone:       "+79990000000",
		Items: []CheckoutItem{
			{ProductID: 1, Quantity: 2},
		},
	}
}

func TestCheckoutValidator(t *testing.T) {
	v := NewCheckoutValidator()

	tests := []struct {
		name    string
		mutate  func(req *CheckoutRequest)
		wantErr bool
	}{
		{
			name:   "valid request",
			mutate: func(req *CheckoutRequest) {},
		},
		{
			name:   "id may be omitted",
			mutate: func(req *CheckoutRequest) { req.ID = "" },
		},
		{
			name:   "receive date may be omitted",
			mutate: func(req *CheckoutRequest) { req.ReceiveDate = "" },
		},
		{
			name:    "bad order id format",
			mutate:  func(req *CheckoutRequest) { req.ID = "not-an-id" },
			wantErr: true,
		},
		{
			name:    "bad receive date",
			mutate:  func(req *CheckoutRequest) { req.ReceiveDate = "02.09.2026" },
			wantErr: true,
		},
		{
			name:    "negative total",
			mutate:  func(req *CheckoutRequest) { req.TotalAmount = -1 },
			wantErr: true,
		},
		{
			name:    "missing receiver",
			mutate:  func(req *CheckoutRequest) { req.Receiver = "" },
			wantErr: true,
		},
		{
			name:    "zero quantity item",
			mutate:  func(req *CheckoutRequest) { req.Items[0].Quantity = 0 },
			wantErr: true,
		},
		{
			// Пустой список позиций отклоняет создание заказа, а не валидатор.
			name:   "empty items pass validation",
			mutate: func(req *CheckoutRequest) { req.Items = nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCheckout()
			tt.mutate(&req)

			err := v.Struct(req)
			if tt.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
