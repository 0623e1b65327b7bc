package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vocalix/bookline/internal/clock"
	"github.com/vocalix/bookline/internal/model"
	"github.com/vocalix/bookline/internal/sms"
)

// VerificationService машина состояний hold'а:
// held -> otp_sent -> verified -> confirmed, с выходами expired/released
// Недопустимый переход — no-op с ошибкой, частичных мутаций нет
type VerificationService struct {
	tx          TxRunner
	slotRepo    SlotStore
	holdRepo    HoldStore
	bookingRepo BookingStore
	auditRepo   AuditStore
	dispatcher  sms.Dispatcher
	clock       clock.Clock
	cooldown    time.Duration
	logger      *zap.Logger
}

const (
	codeLength      = 6
	defaultCooldown = 30 * time.Second
)

func NewVerificationService(
	tx TxRunner,
	slotRepo SlotStore,
	holdRepo HoldStore,
	bookingRepo BookingStore,
	auditRepo AuditStore,
	dispatcher sms.Dispatcher,
	clk clock.Clock,
	logger *zap.Logger,
	opts ...VerificationOption,
) *VerificationService {
	s := &VerificationService{
		tx:          tx,
		slotRepo:    slotRepo,
		holdRepo:    holdRepo,
		bookingRepo: bookingRepo,
		auditRepo:   auditRepo,
		dispatcher:  dispatcher,
		clock:       clk,
		cooldown:    defaultCooldown,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type VerificationOption func(*VerificationService)

// WithResendCooldown переопределяет окно между повторными отправками кода
func WithResendCooldown(d time.Duration) VerificationOption {
	return func(s *VerificationService) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// SendCode генерирует и отправляет одноразовый код
// Все проверки и внешняя отправка происходят до мутации hold'а:
// неудавшийся dispatch откатывает транзакцию, и hold не заявляет
// "код отправлен", когда он не отправлен
func (s *VerificationService) SendCode(ctx context.Context, tenantID, holdID, destination string) error {
	now := s.clock.Now()

	// Как и в VerifyCode: security-аудит должен закоммититься,
	// поэтому исход отдаётся через opErr, а не откатом
	var opErr error

	err := s.tx.WithTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		hold, err := s.holdRepo.GetForUpdate(txCtx, tenantID, holdID)
		if err != nil {
			return err
		}

		if hold.TenantID != tenantID {
			opErr = s.tenantMismatch(txCtx, tenantID, holdID, "send_code")
			return nil
		}

		if hold.ExpiredAt(now) {
			return model.ErrHoldExpired
		}

		if !hold.CanTransition(model.HoldStatusOTPSent) {
			return &model.TransitionError{Current: hold.Status, Requested: model.HoldStatusOTPSent}
		}

		// Cool-down: недавний код ещё действует, второй не выдаём
		if hold.CodeIssuedAt != nil && now.Sub(*hold.CodeIssuedAt) < s.cooldown {
			return model.ErrCodeAlreadySent
		}

		code, err := generateCode()
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}

		result, err := s.dispatcher.Send(txCtx, destination, fmt.Sprintf("Your verification code is %s", code))
		if err != nil {
			return model.ErrDispatchFailed
		}
		if !result.Accepted {
			return model.ErrDispatchFailed
		}

		return s.holdRepo.SetCode(txCtx, tenantID, holdID, code, destination, now)
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}

	s.logger.Info("Verification code sent",
		zap.String("tenant_id", tenantID),
		zap.String("hold_id", holdID),
	)

	return nil
}

// VerifyCode сверяет код и атомарно продвигает hold в verified,
// создавая Booking в той же транзакции: либо обе записи, либо ни одной
// Принадлежность hold'а tenant'у проверяется раньше всех прочих проверок
func (s *VerificationService) VerifyCode(ctx context.Context, tenantID, holdID, submittedCode string) (*model.Booking, error) {
	now := s.clock.Now()
	var booking *model.Booking

	// opErr — исход проверки, который должен пережить коммит:
	// возврат ошибки из fn откатил бы счётчик попыток, пометку
	// истечения и security-аудит
	var opErr error

	err := s.tx.WithTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		hold, err := s.holdRepo.GetForUpdate(txCtx, tenantID, holdID)
		if err != nil {
			return err
		}

		if hold.TenantID != tenantID {
			opErr = s.tenantMismatch(txCtx, tenantID, holdID, "verify_code")
			return nil
		}

		if hold.ExpiredAt(now) {
			// Помечаем сразу, не дожидаясь sweep'а; sweep идемпотентен
			// и повторная пометка ничего не изменит
			if hold.Status == model.HoldStatusHeld || hold.Status == model.HoldStatusOTPSent {
				if err := s.holdRepo.UpdateStatus(txCtx, tenantID, holdID, model.HoldStatusExpired); err != nil {
					return err
				}
				if err := s.slotRepo.UpdateStatus(txCtx, tenantID, hold.SlotID, model.SlotStatusOpen); err != nil {
					return err
				}
			}
			opErr = model.ErrHoldExpired
			return nil
		}

		if !hold.CanTransition(model.HoldStatusVerified) {
			return &model.TransitionError{Current: hold.Status, Requested: model.HoldStatusVerified}
		}

		if hold.Attempts >= model.MaxVerifyAttempts {
			return model.ErrLockedOut
		}

		if hold.Code == nil || *hold.Code != submittedCode {
			attempts, err := s.holdRepo.IncrementAttempts(txCtx, tenantID, holdID)
			if err != nil {
				return err
			}
			if attempts >= model.MaxVerifyAttempts {
				opErr = model.ErrLockedOut
			} else {
				opErr = model.ErrCodeMismatch
			}
			return nil
		}

		if err := s.holdRepo.UpdateStatus(txCtx, tenantID, holdID, model.HoldStatusVerified); err != nil {
			return err
		}

		if err := s.slotRepo.UpdateStatus(txCtx, tenantID, hold.SlotID, model.SlotStatusBooked); err != nil {
			return err
		}

		contact := ""
		if hold.Destination != nil {
			contact = *hold.Destination
		}

		booking = &model.Booking{
			ID:           uuid.NewString(),
			TenantID:     tenantID,
			SlotID:       hold.SlotID,
			HoldID:       hold.ID,
			Contact:      contact,
			NotifyStatus: model.NotifyStatusPending,
		}

		return s.bookingRepo.Create(txCtx, booking)
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	s.logger.Info("Hold verified, booking created",
		zap.String("tenant_id", tenantID),
		zap.String("hold_id", holdID),
		zap.String("booking_id", booking.ID),
	)

	return booking, nil
}

// ConfirmAndNotify отправляет подтверждающее сообщение
// Booking остаётся durable при любой судьбе отправки; каждая попытка
// фиксируется в аудите, provider message id возвращается наверх
func (s *VerificationService) ConfirmAndNotify(ctx context.Context, tenantID, bookingID string) (string, error) {
	var booking *model.Booking
	var slot *model.Slot

	// Читаем всё необходимое до внешнего вызова
	err := s.tx.WithTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		var err error
		booking, err = s.bookingRepo.GetByID(txCtx, tenantID, bookingID)
		if err != nil {
			return err
		}
		slot, err = s.slotRepo.GetByID(txCtx, tenantID, booking.SlotID)
		return err
	})
	if err != nil {
		return "", err
	}

	body := fmt.Sprintf("Your appointment is confirmed for %s.", slot.StartTime.Format("Mon, 2 Jan 15:04 MST"))
	result, sendErr := s.dispatcher.Send(ctx, booking.Contact, body)

	accepted := sendErr == nil && result.Accepted
	messageID := ""
	if accepted {
		messageID = result.MessageID
	}

	now := s.clock.Now()
	status := model.NotifyStatusFailed
	var confirmedAt *time.Time
	if accepted {
		status = model.NotifyStatusSent
		confirmedAt = &now
	}

	err = s.tx.WithTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		if err := s.bookingRepo.UpdateNotifyStatus(txCtx, tenantID, bookingID, status, confirmedAt); err != nil {
			return err
		}

		if accepted {
			// verified -> confirmed; при повторной доставке hold уже
			// confirmed, это не ошибка
			hold, err := s.holdRepo.GetForUpdate(txCtx, tenantID, booking.HoldID)
			if err != nil {
				return err
			}
			if hold.CanTransition(model.HoldStatusConfirmed) {
				if err := s.holdRepo.UpdateStatus(txCtx, tenantID, booking.HoldID, model.HoldStatusConfirmed); err != nil {
					return err
				}
			}
		}

		outcome := "sent"
		if !accepted {
			outcome = "failed"
		}
		return s.auditRepo.Insert(txCtx, &model.AuditEvent{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Kind:      model.AuditConfirmAttempt,
			SubjectID: bookingID,
			Outcome:   outcome,
			Detail:    providerDetail(result, sendErr),
		})
	})
	if err != nil {
		return "", err
	}

	if !accepted {
		s.logger.Warn("Confirmation dispatch failed, booking kept durable",
			zap.String("tenant_id", tenantID),
			zap.String("booking_id", bookingID),
			zap.Error(sendErr),
		)
		return "", model.ErrDispatchFailed
	}

	s.logger.Info("Confirmation sent",
		zap.String("tenant_id", tenantID),
		zap.String("booking_id", bookingID),
		zap.String("message_id", messageID),
	)

	return messageID, nil
}

// RetryUnnotified повторяет отправку подтверждений для bookings со
// статусом pending/failed; вызывается фоновым notifier'ом
func (s *VerificationService) RetryUnnotified(ctx context.Context, olderThan time.Time, limit int) error {
	var pending []*model.Booking

	err := s.tx.WithSystemTx(ctx, func(txCtx context.Context) error {
		var err error
		pending, err = s.bookingRepo.ListUnnotified(txCtx, olderThan, limit)
		return err
	})
	if err != nil {
		return err
	}

	for _, booking := range pending {
		if _, err := s.ConfirmAndNotify(ctx, booking.TenantID, booking.ID); err != nil {
			s.logger.Warn("Confirmation retry failed",
				zap.String("booking_id", booking.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// tenantMismatch фиксирует security event; наружу отдаём not found,
// существование чужого hold'а не подтверждаем
func (s *VerificationService) tenantMismatch(ctx context.Context, tenantID, holdID, operation string) error {
	s.logger.Error("Cross-tenant access attempt",
		zap.String("security", "tenant_mismatch"),
		zap.String("tenant_id", tenantID),
		zap.String("hold_id", holdID),
		zap.String("operation", operation),
	)

	_ = s.auditRepo.Insert(ctx, &model.AuditEvent{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Kind:      model.AuditSecurityEvent,
		SubjectID: holdID,
		Outcome:   "tenant_mismatch",
		Detail:    operation,
	})

	return model.ErrTenantMismatch
}

func providerDetail(result *sms.Result, sendErr error) string {
	if sendErr != nil {
		return sendErr.Error()
	}
	if result == nil {
		return ""
	}
	if result.Accepted {
		return result.MessageID
	}
	return result.ProviderStatus
}

// generateCode криптослучайный числовой код фиксированной длины
func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeLength, n), nil
}
