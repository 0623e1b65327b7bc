package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vocalix/bookline/internal/model"
)

// Cache живые сигналы звонка в Redis: время начала, последний
// sentiment, явная просьба перевода. Пишет голосовой слой через
// controller, читает оценщик эскалаций. Ключи с TTL — сигналы
// завершённого звонка умирают сами
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

const defaultSignalTTL = 2 * time.Hour

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb, ttl: defaultSignalTTL}
}

func signalKey(tenantID, callID string) string {
	return fmt.Sprintf("signals:%s:%s", tenantID, callID)
}

// Put сохраняет снимок сигналов звонка
func (c *Cache) Put(ctx context.Context, tenantID string, signals model.CallSignals) error {
	payload, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("marshal call signals: %w", err)
	}

	if err := c.rdb.Set(ctx, signalKey(tenantID, signals.CallID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("put call signals: %w", err)
	}

	return nil
}

// Get возвращает сигналы звонка; nil, если звонок неизвестен
func (c *Cache) Get(ctx context.Context, tenantID, callID string) (*model.CallSignals, error) {
	raw, err := c.rdb.Get(ctx, signalKey(tenantID, callID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get call signals: %w", err)
	}

	var signals model.CallSignals
	if err := json.Unmarshal(raw, &signals); err != nil {
		return nil, fmt.Errorf("unmarshal call signals: %w", err)
	}

	return &signals, nil
}

// UpdateSentiment обновляет только sentiment, не трогая остальное
func (c *Cache) UpdateSentiment(ctx context.Context, tenantID, callID string, score float64) error {
	return c.merge(ctx, tenantID, callID, func(s *model.CallSignals) {
		s.Sentiment = &score
	})
}

// MarkTransferRequested фиксирует явную просьбу позвать человека
func (c *Cache) MarkTransferRequested(ctx context.Context, tenantID, callID string) error {
	return c.merge(ctx, tenantID, callID, func(s *model.CallSignals) {
		s.TransferRequest = true
	})
}

// StartCall регистрирует начало звонка
func (c *Cache) StartCall(ctx context.Context, tenantID, callID string, startedAt time.Time) error {
	return c.Put(ctx, tenantID, model.CallSignals{
		CallID:    callID,
		StartedAt: startedAt,
	})
}

// mergeAttempts попыток optimistic lock'а при конкурентных обновлениях
const mergeAttempts = 3

// merge атомарное читай-изменяй-пиши: ключ берётся под WATCH,
// конкурентная запись отменяет транзакцию и шаг повторяется
func (c *Cache) merge(ctx context.Context, tenantID, callID string, mutate func(*model.CallSignals)) error {
	key := signalKey(tenantID, callID)

	txFn := func(tx *redis.Tx) error {
		signals := &model.CallSignals{CallID: callID}

		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
			// Звонок ещё не зарегистрирован, начинаем с пустых сигналов
		case err != nil:
			return fmt.Errorf("get call signals: %w", err)
		default:
			if err := json.Unmarshal(raw, signals); err != nil {
				return fmt.Errorf("unmarshal call signals: %w", err)
			}
		}

		mutate(signals)

		payload, err := json.Marshal(signals)
		if err != nil {
			return fmt.Errorf("marshal call signals: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.ttl)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < mergeAttempts; i++ {
		err = c.rdb.Watch(ctx, txFn, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("merge call signals: %w", err)
}
