// Package lifecycle реализует машину состояний заказа и протокол
// резервирования остатков товаров.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mmeshcher/bakery-system/internal/model"
)

// ErrOrderNotFound возвращается, если заказ с указанным идентификатором не существует.
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если позиция заказа ссылается на несуществующий товар.
	ErrProductNotFound = errors.New("product not found")
	// ErrEmptyOrder возвращается при попытке создать заказ без позиций.
	ErrEmptyOrder = errors.New("order has no lines")
	// ErrInvalidQuantity возвращается, если количество в позиции заказа не положительное.
	ErrInvalidQuantity = errors.New("line quantity must be positive")
	// ErrLockTimeout возвращается при истечении времени ожидания блокировки строки.
	// Ошибка временная: вызывающая сторона может повторить операцию целиком.
	ErrLockTimeout = errors.New("lock wait timeout")
)

// InvalidTransitionError возвращается при недопустимой смене статуса заказа.
type InvalidTransitionError struct {
	From model.OrderStatus
	To   model.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

// OutOfStockError возвращается, если остатка товара не хватает для подтверждения заказа.
type OutOfStockError struct {
	ProductID int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %d is out of stock", e.ProductID)
}

// transitions задаёт допустимые переходы статусов. Пары, которых нет
// в таблице, отклоняются; completed и cancelled — терминальные состояния.
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:    {model.OrderStatusConfirmed, model.OrderStatusCancelled},
	model.OrderStatusConfirmed:  {model.OrderStatusDelivering, model.OrderStatusCancelled},
	model.OrderStatusDelivering: {model.OrderStatusCompleted, model.OrderStatusCancelled},
	model.OrderStatusCompleted:  {},
	model.OrderStatusCancelled:  {},
}

// CanTransition сообщает, допустим ли переход заказа из статуса from в статус to.
func CanTransition(from, to model.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Tx описывает операции над заказами и остатками внутри одной транзакции.
// Методы *ForUpdate берут эксклюзивную блокировку строки до конца транзакции.
type Tx interface {
	OrderStatusForUpdate(ctx context.Context, orderID string) (model.OrderStatus, error)
	OrderLines(ctx context.Context, orderID string) ([]model.OrderLine, error)
	ProductStockForUpdate(ctx context.Context, productID int64) (int32, error)
	AdjustProductStock(ctx context.Context, productID int64, delta int32) error
	SetOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error
	InsertOrder(ctx context.Context, order *model.Order) error
	InsertOrderLines(ctx context.Context, lines []model.OrderLine) error
}

// Store запускает fn внутри транзакции. Ошибка fn откатывает транзакцию
// целиком и возвращается вызывающей стороне без изменений.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Manager управляет жизненным циклом заказа поверх транзакционного хранилища.
type Manager struct {
	store Store
}

// NewManager создаёт менеджер жизненного цикла заказов.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// CreateOrder создаёт заказ в статусе pending вместе со всеми позициями.
// Остатки товаров при создании не проверяются: доступность проверяется
// только при подтверждении заказа.
func (m *Manager) CreateOrder(ctx context.Context, order *model.Order) (string, error) {
	if len(order.Lines) == 0 {
		return "", ErrEmptyOrder
	}
	for _, l := range order.Lines {
		if l.Quantity <= 0 {
			return "", fmt.Errorf("%w: product %d", ErrInvalidQuantity, l.ProductID)
		}
	}

	order.Status = model.OrderStatusPending

	err := m.store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		lines := make([]model.OrderLine, len(order.Lines))
		copy(lines, order.Lines)
		for i := range lines {
			lines[i].OrderID = order.ID
		}

		return tx.InsertOrderLines(ctx, lines)
	})
	if err != nil {
		return "", err
	}

	return order.ID, nil
}

// Transition переводит заказ в статус to. Строка заказа блокируется на всё
// время транзакции, поэтому конкурирующие вызовы для одного заказа строго
// сериализуются: второй вызов видит уже зафиксированный статус первого.
func (m *Manager) Transition(ctx context.Context, orderID string, to model.OrderStatus) error {
	return m.store.InTx(ctx, func(tx Tx) error {
		from, err := tx.OrderStatusForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		if !CanTransition(from, to) {
			return &InvalidTransitionError{From: from, To: to}
		}

		switch {
		case from == model.OrderStatusPending && to == model.OrderStatusConfirmed:
			if err := m.reserveStock(ctx, tx, orderID); err != nil {
				return err
			}
		case from == model.OrderStatusConfirmed && to == model.OrderStatusCancelled:
			if err := m.releaseStock(ctx, tx, orderID); err != nil {
				return err
			}
		}

		return tx.SetOrderStatus(ctx, orderID, to)
	})
}

// reserveStock списывает остатки по всем позициям заказа либо не списывает
// ничего. Товары блокируются в порядке возрастания идентификатора, чтобы два
// заказа с пересекающимися товарами не взаимоблокировались.
func (m *Manager) reserveStock(ctx context.Context, tx Tx, orderID string) error {
	lines, err := lockedLines(ctx, tx, orderID)
	if err != nil {
		return err
	}

	for _, l := range lines {
		stock, err := tx.ProductStockForUpdate(ctx, l.ProductID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return &OutOfStockError{ProductID: l.ProductID}
			}
			return err
		}
		if stock < l.Quantity {
			return &OutOfStockError{ProductID: l.ProductID}
		}
	}

	for _, l := range lines {
		if err := tx.AdjustProductStock(ctx, l.ProductID, -l.Quantity); err != nil {
			return err
		}
	}

	return nil
}

// releaseStock возвращает остатки по всем позициям подтверждённого заказа.
// Проверка не нужна, остаток только увеличивается; блокировка сохраняется
// для сериализации с параллельным резервированием тех же товаров.
func (m *Manager) releaseStock(ctx context.Context, tx Tx, orderID string) error {
	lines, err := lockedLines(ctx, tx, orderID)
	if err != nil {
		return err
	}

	for _, l := range lines {
		if _, err := tx.ProductStockForUpdate(ctx, l.ProductID); err != nil {
			return err
		}
		if err := tx.AdjustProductStock(ctx, l.ProductID, l.Quantity); err != nil {
			return err
		}
	}

	return nil
}

func lockedLines(ctx context.Context, tx Tx, orderID string) ([]model.OrderLine, error) {
	lines, err := tx.OrderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// Фиксированный порядок захвата блокировок.
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ProductID < lines[j].ProductID
	})

	return lines, nil
}
