package base

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/vocalix/bookline/internal/model"
)

// Store база для репозиториев: транзакции с привязкой tenant'а и retry
// Каждая транзакция выставляет app.tenant_id, на который опираются
// RLS-политики — изоляция проверяется самой БД, не только кодом
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool возвращает пул соединений
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

type txKey struct{}

const (
	maxRetries   = 3
	retryBackoff = 100 * time.Millisecond
)

// WithTenantTx выполняет fn в транзакции, закреплённой за tenant'ом
// Вложенный вызов переиспользует уже открытую транзакцию
// Транзиентные ошибки стора ретраятся с backoff, после исчерпания
// попыток возвращается model.ErrStore
func (s *Store) WithTenantTx(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.runTx(ctx, tenantID, fn)
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if isTransient(err) {
		return errors.Join(model.ErrStore, err)
	}
	return err
}

// WithSystemTx транзакция фонового процесса (sweep, retry уведомлений),
// которой разрешено видеть все tenant'ы; единственный путь мимо
// tenant-привязки, наружу из пакетов app/* не торчит
func (s *Store) WithSystemTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.WithTenantTx(ctx, systemTenant, fn)
}

// systemTenant значение app.tenant_id для фоновых задач;
// RLS-политики содержат отдельную ветку для него
const systemTenant = "system:sweeper"

func (s *Store) runTx(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	// SET LOCAL действует до конца транзакции, параметризация через
	// set_config — SET не принимает placeholder'ы
	if _, err := tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// TxFromContext достаёт транзакцию, открытую WithTenantTx
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// Exec выполняет команду в текущей транзакции, если она есть
func (s *Store) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

// QueryRow выполняет запрос одной строки в текущей транзакции, если она есть
func (s *Store) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

// Query выполняет запрос множества строк в текущей транзакции, если она есть
func (s *Store) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation нарушение уникального ограничения
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isTransient ошибки, имеющие смысл для retry: обрывы соединения,
// сериализационные конфликты, deadlock
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "08000", "08003", "08006", "57P03":
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
