// Package service реализует бизнес-логику сервиса пекарни.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/bakery-system/internal/lifecycle"
	"github.com/mmeshcher/bakery-system/internal/model"
	"github.com/mmeshcher/bakery-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownStatus возвращается, если запрошен неизвестный статус заказа.
	ErrUnknownStatus = errors.New("unknown order status")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	lifecycle.Store
	Close() error
	CreateAccount(ctx context.Context, email string, passwordHash []byte, fullName string, role model.Role) (int64, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	ListActiveProducts(ctx context.Context) ([]model.Product, error)
	ListAllProducts(ctx context.Context) ([]model.Product, error)
	SearchProducts(ctx context.Context, query string) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) (int64, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeactivateProduct(ctx context.Context, id int64) error
	GetOrderWithLines(ctx context.Context, orderID string) (*model.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	ListOrdersByDate(ctx context.Context, date string, byReceiveDate bool) ([]model.Order, error)
	UpdateEmployeeNote(ctx context.Context, orderID, note string) error
	RevenueByDate(ctx context.Context, date string) (int64, int, error)
	RevenueByRange(ctx context.Context, start, end string) ([]model.RevenueReport, error)
}

// Service содержит бизнес-логику сервиса пекарни.
type Service struct {
	repo   Repository
	orders *lifecycle.Manager
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{
		repo:   repo,
		orders: lifecycle.NewManager(repo),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Register регистрирует нового покупателя.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*model.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateAccount(ctx, email, hash, fullName, model.RoleCustomer)
	if err != nil {
		return nil, err
	}

	return &model.Account{
		ID:       id,
		Email:    email,
		FullName: fullName,
		Role:     model.RoleCustomer,
	}, nil
}

// Authenticate проверяет email и пароль и возвращает учётную запись.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	acc, err := s.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return acc, nil
}

// PlaceOrder создаёт заказ в статусе pending. Если идентификатор не задан
// клиентом, он генерируется на сервере.
func (s *Service) PlaceOrder(ctx context.Context, order *model.Order) (string, error) {
	if order.ID == "" {
		order.ID = "ORD-" + uuid.NewString()
	}
	return s.orders.CreateOrder(ctx, order)
}

// UpdateOrderStatus переводит заказ в запрошенный статус, выполняя связанные
// со сменой статуса списания и возвраты остатков.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownStatus, status)
	}
	return s.orders.Transition(ctx, orderID, status)
}

// TrackOrder возвращает заказ с позициями для страницы отслеживания.
func (s *Service) TrackOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return s.repo.GetOrderWithLines(ctx, orderID)
}

// OrdersByCustomer возвращает историю заказов покупателя.
func (s *Service) OrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return s.repo.ListOrdersByCustomer(ctx, customerID)
}

// OrdersByDate возвращает заказы за день для панели сотрудника.
func (s *Service) OrdersByDate(ctx context.Context, date string, byReceiveDate bool) ([]model.Order, error) {
	return s.repo.ListOrdersByDate(ctx, date, byReceiveDate)
}

// UpdateEmployeeNote сохраняет служебную заметку сотрудника на заказе.
func (s *Service) UpdateEmployeeNote(ctx context.Context, orderID, note string) error {
	return s.repo.UpdateEmployeeNote(ctx, orderID, note)
}

// Menu возвращает активные товары каталога.
func (s *Service) Menu(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListActiveProducts(ctx)
}

// SearchMenu ищет активные товары по подстроке.
func (s *Service) SearchMenu(ctx context.Context, query string) ([]model.Product, error) {
	return s.repo.SearchProducts(ctx, query)
}

// ProductByID возвращает товар по идентификатору.
func (s *Service) ProductByID(ctx context.Context, id int64) (*model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// Stock возвращает все товары с остатками для панели сотрудника.
func (s *Service) Stock(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListAllProducts(ctx)
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	if p.Status == "" {
		p.Status = model.ProductStatusActive
	}
	return s.repo.CreateProduct(ctx, p)
}

// UpdateProduct обновляет атрибуты товара.
func (s *Service) UpdateProduct(ctx context.Context, p *model.Product) error {
	return s.repo.UpdateProduct(ctx, p)
}

// DeactivateProduct снимает товар с продажи.
func (s *Service) DeactivateProduct(ctx context.Context, id int64) error {
	return s.repo.DeactivateProduct(ctx, id)
}

// DailyRevenue возвращает выручку за день.
func (s *Service) DailyRevenue(ctx context.Context, date string) (*model.RevenueReport, error) {
	totalCents, count, err := s.repo.RevenueByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return &model.RevenueReport{
		Date:        date,
		Total:       float64(totalCents) / 100,
		OrdersCount: count,
	}, nil
}

// WeeklyRevenue возвращает выручку по дням за период.
func (s *Service) WeeklyRevenue(ctx context.Context, start, end string) ([]model.RevenueReport, error) {
	return s.repo.RevenueByRange(ctx, start, end)
}
