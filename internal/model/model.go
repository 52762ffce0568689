// Package model содержит доменные сущности сервиса пекарни.
package model

import "time"

// Role определяет роль учётной записи и доступные ей операции.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
)

// Account представляет учётную запись пользователя системы.
type Account struct {
	ID           int64
	Email        string
	PasswordHash []byte
	FullName     string
	Role         Role
	CreatedAt    time.Time
}

// OrderStatus описывает статус жизненного цикла заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid сообщает, является ли значение одним из известных статусов заказа.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivering,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Order описывает заказ покупателя. Суммы хранятся в копейках.
type Order struct {
	ID             string
	CustomerID     *int64
	EmployeeID     *int64
	TotalCents     int64
	Payment        string
	ReceiveDate    string
	ReceiveTime    string
	Note           string
	ReceiveAddress string
	Receiver       string
	ReceivePhone   string
	EmployeeNote   string
	Status         OrderStatus
	CreatedAt      time.Time
	Lines          []OrderLine
}

// OrderLine описывает одну позицию заказа.
// Цена позиции не фиксируется: при отображении берётся текущая цена товара.
type OrderLine struct {
	OrderID   string
	ProductID int64
	Quantity  int32

	// Заполняются из таблицы товаров при чтении.
	ProductName string
	PriceCents  int64
}

// ProductStatus описывает доступность товара в каталоге.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

// Product описывает товар каталога. Цена хранится в копейках.
type Product struct {
	ID          int64
	Name        string
	Category    string
	Description string
	PriceCents  int64
	Stock       int32
	Status      ProductStatus
	CreatedAt   time.Time
}

// RevenueReport содержит выручку и число заказов за один день.
type RevenueReport struct {
	Date        string  `json:"date"`
	Total       float64 `json:"total"`
	OrdersCount int     `json:"ordersCount"`
}
