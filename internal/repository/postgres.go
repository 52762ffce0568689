// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/bakery-system/internal/lifecycle"
	"github.com/mmeshcher/bakery-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAccountExists возвращается при попытке зарегистрировать уже занятый email.
var (
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound возвращается, если учётная запись не найдена.
	ErrAccountNotFound = errors.New("account not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при сетевых сбоях соединения с БД.
// Бизнес-ошибки и ошибки блокировок не ретраятся.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(1*time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// mapLockErr преобразует ошибки ожидания блокировки в lifecycle.ErrLockTimeout.
func mapLockErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgerrcode.LockNotAvailable || pgErr.Code == pgerrcode.QueryCanceled {
			return fmt.Errorf("%w: %s", lifecycle.ErrLockTimeout, pgErr.Message)
		}
	}
	return err
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// InTx выполняет fn внутри одной транзакции. Ошибка fn откатывает транзакцию целиком.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx lifecycle.Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(&pgxTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// pgxTx реализует lifecycle.Tx поверх транзакции pgx.
type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) OrderStatusForUpdate(ctx context.Context, orderID string) (model.OrderStatus, error) {
	var status string
	err := t.tx.QueryRow(ctx,
		`SELECT status FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", lifecycle.ErrOrderNotFound
		}
		return "", mapLockErr(fmt.Errorf("lock order: %w", err))
	}
	return model.OrderStatus(status), nil
}

func (t *pgxTx) OrderLines(ctx context.Context, orderID string) ([]model.OrderLine, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT order_id, prod_id, quantity FROM orderline WHERE order_id = $1`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	var lines []model.OrderLine
	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

func (t *pgxTx) ProductStockForUpdate(ctx context.Context, productID int64) (int32, error) {
	var stock int32
	err := t.tx.QueryRow(ctx,
		`SELECT stock FROM product WHERE id = $1 FOR UPDATE`,
		productID,
	).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, lifecycle.ErrProductNotFound
		}
		return 0, mapLockErr(fmt.Errorf("lock product: %w", err))
	}
	return stock, nil
}

func (t *pgxTx) AdjustProductStock(ctx context.Context, productID int64, delta int32) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE product SET stock = stock + $1 WHERE id = $2`,
		delta, productID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			// Сработало ограничение схемы stock >= 0.
			return &lifecycle.OutOfStockError{ProductID: productID}
		}
		return fmt.Errorf("adjust stock: %w", err)
	}
	return nil
}

func (t *pgxTx) SetOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2`,
		string(status), orderID,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (t *pgxTx) InsertOrder(ctx context.Context, order *model.Order) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO orders
		 (id, customer_id, employee_id, total_amount, payment, receive_date, receive_time,
		  note, receive_address, receiver, receive_phone, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::date, $7, $8, $9, $10, $11, $12, now())`,
		order.ID, order.CustomerID, order.EmployeeID, order.TotalCents, order.Payment,
		order.ReceiveDate, order.ReceiveTime, order.Note, order.ReceiveAddress,
		order.Receiver, order.ReceivePhone, string(order.Status),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgxTx) InsertOrderLines(ctx context.Context, lines []model.OrderLine) error {
	for _, l := range lines {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO orderline (order_id, prod_id, quantity) VALUES ($1, $2, $3)`,
			l.OrderID, l.ProductID, l.Quantity,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				return fmt.Errorf("%w: %d", lifecycle.ErrProductNotFound, l.ProductID)
			}
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

// CreateAccount создаёт учётную запись с указанной ролью.
func (r *PostgresRepository) CreateAccount(ctx context.Context, email string, passwordHash []byte, fullName string, role model.Role) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (email, password_hash, full_name, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		email, passwordHash, fullName, string(role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrAccountExists, email)
		}
		return 0, fmt.Errorf("create account: %w", err)
	}
	return id, nil
}

// GetAccountByEmail возвращает учётную запись по email.
func (r *PostgresRepository) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, full_name, role, created_at FROM accounts WHERE email = $1`,
		email,
	)

	var a model.Account
	var role string
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FullName, &role, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	a.Role = model.Role(role)

	return &a, nil
}

func scanProducts(rows pgx.Rows) ([]model.Product, error) {
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		var status string
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.PriceCents, &p.Stock, &status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Status = model.ProductStatus(status)
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

const productColumns = `id, name, category, description, price, stock, status, created_at`

// ListActiveProducts возвращает товары, доступные в меню.
func (r *PostgresRepository) ListActiveProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM product WHERE status = $1 ORDER BY category, name`,
		string(model.ProductStatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return scanProducts(rows)
}

// ListAllProducts возвращает все товары, включая снятые с продажи.
func (r *PostgresRepository) ListAllProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM product ORDER BY category, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return scanProducts(rows)
}

// SearchProducts ищет активные товары по подстроке имени или категории.
func (r *PostgresRepository) SearchProducts(ctx context.Context, query string) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+`
		 FROM product
		 WHERE status = $1 AND (name ILIKE '%' || $2 || '%' OR category ILIKE '%' || $2 || '%')
		 ORDER BY category, name`,
		string(model.ProductStatusActive), query,
	)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return scanProducts(rows)
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM product WHERE id = $1`,
		id,
	)

	var p model.Product
	var status string
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.PriceCents, &p.Stock, &status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lifecycle.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	p.Status = model.ProductStatus(status)

	return &p, nil
}

// CreateProduct добавляет товар в каталог.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO product (name, category, description, price, stock, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.Name, p.Category, p.Description, p.PriceCents, p.Stock, string(p.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

// UpdateProduct обновляет атрибуты товара.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p *model.Product) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE product SET name = $1, category = $2, description = $3, price = $4, stock = $5, status = $6
		 WHERE id = $7`,
		p.Name, p.Category, p.Description, p.PriceCents, p.Stock, string(p.Status), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return lifecycle.ErrProductNotFound
	}
	return nil
}

// DeactivateProduct снимает товар с продажи. Строка не удаляется,
// чтобы исторические заказы сохраняли ссылки на товар.
func (r *PostgresRepository) DeactivateProduct(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE product SET status = $1 WHERE id = $2`,
		string(model.ProductStatusInactive), id,
	)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return lifecycle.ErrProductNotFound
	}
	return nil
}

const orderColumns = `o.id, o.customer_id, o.employee_id, o.total_amount, o.payment,
	COALESCE(to_char(o.receive_date, 'YYYY-MM-DD'), ''), o.receive_time,
	o.note, o.receive_address, o.receiver, o.receive_phone, o.employee_note, o.status, o.created_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var status string
	err := row.Scan(&o.ID, &o.CustomerID, &o.EmployeeID, &o.TotalCents, &o.Payment,
		&o.ReceiveDate, &o.ReceiveTime, &o.Note, &o.ReceiveAddress, &o.Receiver,
		&o.ReceivePhone, &o.EmployeeNote, &status, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

// GetOrderWithLines возвращает заказ вместе с позициями.
// Имя и цена товара в позициях читаются из каталога на момент запроса.
func (r *PostgresRepository) GetOrderWithLines(ctx context.Context, orderID string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`,
		orderID,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lifecycle.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	lines, err := r.orderLinesWithProducts(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Lines = lines

	return o, nil
}

func (r *PostgresRepository) orderLinesWithProducts(ctx context.Context, orderID string) ([]model.OrderLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ol.order_id, ol.prod_id, ol.quantity, p.name, p.price
		 FROM orderline ol
		 JOIN product p ON ol.prod_id = p.id
		 WHERE ol.order_id = $1`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	var lines []model.OrderLine
	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.Quantity, &l.ProductName, &l.PriceCents); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

func (r *PostgresRepository) listOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range orders {
		lines, err := r.orderLinesWithProducts(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

// ListOrdersByCustomer возвращает заказы покупателя, новые первыми.
func (r *PostgresRepository) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.customer_id = $1 ORDER BY o.created_at DESC`,
		customerID,
	)
}

// ListOrdersByDate возвращает заказы за день: по дате оформления либо по дате выдачи.
func (r *PostgresRepository) ListOrdersByDate(ctx context.Context, date string, byReceiveDate bool) ([]model.Order, error) {
	if byReceiveDate {
		return r.listOrders(ctx,
			`SELECT `+orderColumns+` FROM orders o WHERE o.receive_date = $1::date ORDER BY o.receive_time ASC`,
			date,
		)
	}
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.created_at::date = $1::date ORDER BY o.created_at DESC`,
		date,
	)
}

// UpdateEmployeeNote обновляет служебную заметку сотрудника на заказе.
func (r *PostgresRepository) UpdateEmployeeNote(ctx context.Context, orderID, note string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET employee_note = $1 WHERE id = $2`,
		note, orderID,
	)
	if err != nil {
		return fmt.Errorf("update employee note: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return lifecycle.ErrOrderNotFound
	}
	return nil
}

// RevenueByDate возвращает выручку в копейках и число заказов за день.
// Отменённые заказы в выручку не входят.
func (r *PostgresRepository) RevenueByDate(ctx context.Context, date string) (int64, int, error) {
	var totalCents int64
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total_amount), 0), COUNT(*)
		 FROM orders
		 WHERE created_at::date = $1::date AND status <> $2`,
		date, string(model.OrderStatusCancelled),
	).Scan(&totalCents, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("sum revenue: %w", err)
	}
	return totalCents, count, nil
}

// RevenueByRange возвращает выручку по дням за период, включая границы.
func (r *PostgresRepository) RevenueByRange(ctx context.Context, start, end string) ([]model.RevenueReport, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT to_char(created_at::date, 'YYYY-MM-DD'), COALESCE(SUM(total_amount), 0), COUNT(*)
		 FROM orders
		 WHERE created_at::date BETWEEN $1::date AND $2::date AND status <> $3
		 GROUP BY created_at::date
		 ORDER BY created_at::date`,
		start, end, string(model.OrderStatusCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("select revenue: %w", err)
	}
	defer rows.Close()

	var res []model.RevenueReport
	for rows.Next() {
		var date string
		var totalCents int64
		var count int
		if err := rows.Scan(&date, &totalCents, &count); err != nil {
			return nil, fmt.Errorf("scan revenue: %w", err)
		}
		res = append(res, model.RevenueReport{
			Date:        date,
			Total:       float64(totalCents) / 100,
			OrdersCount: count,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
