// resolver.go — резолвер токена в контекст авторизации Link.
// Каждый запрос собирает Link заново из свежей строки БД:
// кэширование здесь запрещено, иначе квота и флаг enabled устареют.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/linkgate/internal/domain/model"
	"github.com/bigkaa/linkgate/internal/repository"
)

// Форматы срока действия ссылки. Основной — RFC 3339; второй формат
// остаётся от старых записей без таймзоны, трактуется как UTC.
var expiresLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// Resolver превращает опаковый токен в Link.
type Resolver struct {
	tokens repository.TokenRepository
	logger *slog.Logger
}

// NewResolver создаёт резолвер токенов.
func NewResolver(tokens repository.TokenRepository, logger *slog.Logger) *Resolver {
	return &Resolver{
		tokens: tokens,
		logger: logger.With(slog.String("component", "resolver")),
	}
}

// Resolve находит запись токена и собирает из неё Link.
// Возвращает ErrTokenNotFound, если токен отсутствует в хранилище.
func (r *Resolver) Resolve(ctx context.Context, token string) (*model.Link, error) {
	rec, err := r.tokens.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("получение записи токена: %w", err)
	}

	link := &model.Link{
		Token:          rec.Token,
		AssetID:        rec.AssetID,
		Enabled:        rec.Enabled,
		ExpiresAt:      r.parseExpires(rec),
		MaxDownloads:   rec.MaxDownloads,
		TotalDownloads: rec.TotalDownloads,
		Require:        model.ParseRequirement(rec.RequireUser),
		Headers:        r.parseHeaders(rec),
	}

	return link, nil
}

// parseExpires разбирает строковый срок действия и нормализует его в UTC.
// Непарсируемое значение даёт бессрочную ссылку: создатель явно задал
// срок, но формат сломан — блокировать скачивание из-за этого нельзя.
func (r *Resolver) parseExpires(rec *model.TokenRecord) *time.Time {
	if rec.Expires == nil || *rec.Expires == "" {
		return nil
	}
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, *rec.Expires); err == nil {
			t = t.UTC()
			return &t
		}
	}
	r.logger.Warn("Непарсируемый срок действия ссылки, трактуется как бессрочная",
		slog.String("token", rec.Token),
		slog.String("expires", *rec.Expires),
	)
	return nil
}

// parseHeaders разбирает JSONB дополнительных заголовков ответа.
// Сломанный JSON игнорируется: заголовки — косметика, не контракт.
func (r *Resolver) parseHeaders(rec *model.TokenRecord) map[string]string {
	if len(rec.Headers) == 0 {
		return nil
	}
	var headers map[string]string
	if err := json.Unmarshal(rec.Headers, &headers); err != nil {
		r.logger.Warn("Непарсируемые заголовки ссылки, игнорируются",
			slog.String("token", rec.Token),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return headers
}
