// tracker.go — учёт попыток скачивания.
// Счётчик успешных скачиваний + опциональный append-only аудит.
// Учёт никогда не ломает ответ клиенту: ошибки логируются и глотаются.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/linkgate/internal/domain/model"
	"github.com/bigkaa/linkgate/internal/repository"
)

// Attempt — итог одной попытки скачивания для учёта.
type Attempt struct {
	// Link — контекст ссылки; nil, если токен не был найден
	// (такие попытки не учитываются вовсе)
	Link *model.Link
	// Caller — идентичность вызывающего
	Caller model.Caller
	// ClientAddr — сетевой адрес клиента
	ClientAddr string
	// Success — файл отдан целиком
	Success bool
	// ErrorText — причина неудачи (пустая при успехе)
	ErrorText string
}

// Tracker фиксирует итоги попыток скачивания.
type Tracker struct {
	tokens       repository.TokenRepository
	audit        repository.AuditRepository
	auditEnabled bool
	logger       *slog.Logger
}

// NewTracker создаёт трекер учёта.
// При auditEnabled == false журнал аудита не ведётся, счётчик — всегда.
func NewTracker(
	tokens repository.TokenRepository,
	audit repository.AuditRepository,
	auditEnabled bool,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		tokens:       tokens,
		audit:        audit,
		auditEnabled: auditEnabled,
		logger:       logger.With(slog.String("component", "tracker")),
	}
}

// Track фиксирует итог попытки: при успехе атомарно инкрементирует
// счётчик скачиваний, при включённом аудите пишет строку журнала.
// Вызывается ровно один раз на каждую разрешённую к учёту попытку.
func (t *Tracker) Track(ctx context.Context, attempt Attempt) {
	if attempt.Link == nil {
		// Несуществующий токен не привязать ни к какой ссылке.
		return
	}

	if attempt.Success {
		switch err := t.tokens.RecordDownload(ctx, attempt.Link.Token); {
		case err == nil:
		case errors.Is(err, repository.ErrNotFound):
			// Токен удалили между резолвом и учётом: тихий no-op, не авария.
			t.logger.Debug("Токен исчез до обновления счётчика",
				slog.String("token", attempt.Link.Token),
			)
		default:
			t.logger.Error("Не удалось обновить счётчик скачиваний",
				slog.String("token", attempt.Link.Token),
				slog.String("error", err.Error()),
			)
		}
	}

	if !t.auditEnabled {
		return
	}

	entry := &model.AuditEntry{
		ID:         uuid.New().String(),
		Token:      attempt.Link.Token,
		AssetID:    attempt.Link.AssetID,
		UserID:     attempt.Caller.UserID,
		ClientAddr: attempt.ClientAddr,
		Success:    attempt.Success,
		ErrorText:  attempt.ErrorText,
	}
	if err := t.audit.Append(ctx, entry); err != nil {
		t.logger.Error("Не удалось записать строку аудита",
			slog.String("token", attempt.Link.Token),
			slog.String("error", err.Error()),
		)
	}
}
