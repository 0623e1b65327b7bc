package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Result ответ провайдера на отправку сообщения
// Rejected — это ответ, а не ошибка транспорта: провайдер принял запрос,
// но отказался доставлять
type Result struct {
	Accepted       bool   `json:"accepted"`
	MessageID      string `json:"message_id"`
	ProviderStatus string `json:"provider_status,omitempty"`
}

// Dispatcher внешний messaging collaborator; ошибки отдаются наверх,
// никогда не глотаются
type Dispatcher interface {
	Send(ctx context.Context, destination, body string) (*Result, error)
}

// Client HTTP-клиент SMS-провайдера с ограниченным таймаутом
type Client struct {
	http   *resty.Client
	from   string
	logger *zap.Logger
}

const dispatchTimeout = 10 * time.Second

func NewClient(apiURL, apiKey, from string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(dispatchTimeout).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Client{
		http:   httpClient,
		from:   from,
		logger: logger,
	}
}

type sendRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// Send отправляет сообщение; таймаут ограничен клиентом, по истечении
// возвращается ошибка этого шага, не всего flow
func (c *Client) Send(ctx context.Context, destination, body string) (*Result, error) {
	var parsed sendResponse

	// SetResult распаковывает только 2xx; причину отказа провайдер
	// кладёт в то же тело, поэтому SetError указывает туда же
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendRequest{From: c.from, To: destination, Body: body}).
		SetResult(&parsed).
		SetError(&parsed).
		Post("/messages")

	if err != nil {
		return nil, fmt.Errorf("dispatch sms: %w", err)
	}

	if resp.IsError() {
		c.logger.Warn("SMS provider rejected message",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("provider_status", parsed.Status),
		)
		return &Result{Accepted: false, ProviderStatus: parsed.Status}, nil
	}

	return &Result{
		Accepted:       true,
		MessageID:      parsed.MessageID,
		ProviderStatus: parsed.Status,
	}, nil
}
