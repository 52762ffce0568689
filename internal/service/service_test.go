package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/bakery-system/internal/lifecycle"
	"github.com/mmeshcher/bakery-system/internal/model"
	"github.com/mmeshcher/bakery-system/internal/repository"
)

type stubRepo struct {
	createAccountID  int64
	createAccountErr error

	account    *model.Account
	accountErr error

	insertedOrder *model.Order
	insertedLines []model.OrderLine
	inTxErr       error

	revenueCents int64
	revenueCount int
	revenueErr   error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateAccount(ctx context.Context, email string, passwordHash []byte, fullName string, role model.Role) (int64, error) {
	return s.createAccountID, s.createAccountErr
}

func (s *stubRepo) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return s.account, s.accountErr
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx lifecycle.Tx) error) error {
	if s.inTxErr != nil {
		return s.inTxErr
	}
	return fn(&stubTx{repo: s})
}

type stubTx struct {
	repo *stubRepo
}

func (t *stubTx) OrderStatusForUpdate(ctx context.Context, orderID string) (model.OrderStatus, error) {
	if t.repo.insertedOrder == nil || t.repo.insertedOrder.ID != orderID {
		return "", lifecycle.ErrOrderNotFound
	}
	return t.repo.insertedOrder.Status, nil
}

func (t *stubTx) OrderLines(ctx context.Context, orderID string) ([]model.OrderLine, error) {
	return t.repo.insertedLines, nil
}

func (t *stubTx) ProductStockForUpdate(ctx context.Context, productID int64) (int32, error) {
	return 100, nil
}

func (t *stubTx) AdjustProductStock(ctx context.Context, productID int64, delta int32) error {
	return nil
}

func (t *stubTx) SetOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	if t.repo.insertedOrder != nil {
		t.repo.insertedOrder.Status = status
	}
	return nil
}

func (t *stubTx) InsertOrder(ctx context.Context, order *model.Order) error {
	t.repo.insertedOrder = order
	return nil
}

func (t *stubTx) InsertOrderLines(ctx context.Context, lines []model.OrderLine) error {
	t.repo.insertedLines = lines
	return nil
}

func (s *stubRepo) ListActiveProducts(ctx context.Context) ([]model.Product, error) { return nil, nil }

func (s *stubRepo) ListAllProducts(ctx context.Context) ([]model.Product, error) { return nil, nil }

func (s *stubRepo) SearchProducts(ctx context.Context, query string) ([]model.Product, error) {
	return nil, nil
}

func (s *stubRepo) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return nil, lifecycle.ErrProductNotFound
}

func (s *stubRepo) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	return 1, nil
}

func (s *stubRepo) UpdateProduct(ctx context.Context, p *model.Product) error { return nil }

func (s *stubRepo) DeactivateProduct(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) GetOrderWithLines(ctx context.Context, orderID string) (*model.Order, error) {
	return nil, lifecycle.ErrOrderNotFound
}

func (s *stubRepo) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) ListOrdersByDate(ctx context.Context, date string, byReceiveDate bool) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) UpdateEmployeeNote(ctx context.Context, orderID, note string) error { return nil }

func (s *stubRepo) RevenueByDate(ctx context.Context, date string) (int64, int, error) {
	return s.revenueCents, s.revenueCount, s.revenueErr
}

func (s *stubRepo) RevenueByRange(ctx context.Context, start, end string) ([]model.RevenueReport, error) {
	return nil, nil
}

func TestRegister_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{
		createAccountErr: repository.ErrAccountExists,
	}
	svc := NewService(repo)

	_, err := svc.Register(context.Background(), "a@b.c", "pass", "user")
	if !errors.Is(err, repository.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	repo := &stubRepo{
		account: &model.Account{ID: 1, Email: "a@b.c", PasswordHash: hash, Role: model.RoleCustomer},
	}
	svc := NewService(repo)

	_, err = svc.Authenticate(context.Background(), "a@b.c", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticate_UnknownEmail(t *testing.T) {
	repo := &stubRepo{
		accountErr: repository.ErrAccountNotFound,
	}
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "nobody@b.c", "pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestPlaceOrder_GeneratesID(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	id, err := svc.PlaceOrder(context.Background(), &model.Order{
		Lines: []model.OrderLine{{ProductID: 1, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	if !strings.HasPrefix(id, "ORD-") {
		t.Fatalf("id = %q, want ORD- prefix", id)
	}
	if repo.insertedOrder == nil || repo.insertedOrder.Status != model.OrderStatusPending {
		t.Fatalf("order not inserted as pending: %+v", repo.insertedOrder)
	}
}

func TestPlaceOrder_KeepsClientID(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	id, err := svc.PlaceOrder(context.Background(), &model.Order{
		ID:    "ORD-1756700000000",
		Lines: []model.OrderLine{{ProductID: 1, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	if id != "ORD-1756700000000" {
		t.Fatalf("id = %q, want client id preserved", id)
	}
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	err := svc.UpdateOrderStatus(context.Background(), "ORD-1", "shipped")
	if !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
	if repo.insertedOrder != nil {
		t.Fatalf("store must not be touched for unknown status")
	}
}

func TestDailyRevenue_ConvertsCents(t *testing.T) {
	repo := &stubRepo{
		revenueCents: 12345,
		revenueCount: 3,
	}
	svc := NewService(repo)

	report, err := svc.DailyRevenue(context.Background(), "2026-09-01")
	if err != nil {
		t.Fatalf("DailyRevenue error: %v", err)
	}
	if report.Total != 123.45 {
		t.Fatalf("Total = %v, want 123.45", report.Total)
	}
	if report.OrdersCount != 3 {
		t.Fatalf("OrdersCount = %d, want 3", report.OrdersCount)
	}
}
