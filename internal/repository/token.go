// token.go — репозиторий таблицы download_tokens.
// Чтение записи по токену и атомарный учёт успешного скачивания.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/linkgate/internal/domain/model"
)

// tokenColumns — список столбцов таблицы download_tokens для SELECT-запросов.
const tokenColumns = `token, asset_id, enabled, expires, max_downloads,
	total_downloads, require_user, headers, last_downloaded, created_at, updated_at`

// TokenRepository — доступ к записям токенов скачивания.
type TokenRepository interface {
	// GetByToken возвращает запись по токену или ErrNotFound.
	GetByToken(ctx context.Context, token string) (*model.TokenRecord, error)
	// RecordDownload атомарно инкрементирует счётчик успешных скачиваний
	// и обновляет last_downloaded. ErrNotFound, если токен исчез из БД.
	RecordDownload(ctx context.Context, token string) error
}

// tokenRepo — реализация TokenRepository через pgx.
type tokenRepo struct {
	db DBTX
}

// NewTokenRepository создаёт репозиторий токенов.
func NewTokenRepository(db DBTX) TokenRepository {
	return &tokenRepo{db: db}
}

// GetByToken возвращает запись по токену или ErrNotFound.
func (r *tokenRepo) GetByToken(ctx context.Context, token string) (*model.TokenRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM download_tokens WHERE token = $1`, tokenColumns)

	rec := &model.TokenRecord{}
	err := r.db.QueryRow(ctx, query, token).Scan(
		&rec.Token, &rec.AssetID, &rec.Enabled, &rec.Expires, &rec.MaxDownloads,
		&rec.TotalDownloads, &rec.RequireUser, &rec.Headers,
		&rec.LastDownloaded, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения токена: %w", err)
	}
	return rec, nil
}

// RecordDownload выполняет учёт успешного скачивания одним UPDATE.
// Инкремент на стороне БД исключает потерю обновлений при
// конкурентных скачиваниях одного токена.
func (r *tokenRepo) RecordDownload(ctx context.Context, token string) error {
	query := `
		UPDATE download_tokens
		SET total_downloads = total_downloads + 1,
			last_downloaded = now(),
			updated_at = now()
		WHERE token = $1`

	tag, err := r.db.Exec(ctx, query, token)
	if err != nil {
		return fmt.Errorf("ошибка учёта скачивания: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
