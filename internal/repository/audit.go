// audit.go — репозиторий append-only журнала download_audit.
// Записи никогда не мутируются после вставки.
package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/linkgate/internal/domain/model"
)

// AuditRepository — доступ к журналу попыток скачивания.
type AuditRepository interface {
	// Append добавляет одну запись журнала.
	Append(ctx context.Context, entry *model.AuditEntry) error
}

// auditRepo — реализация AuditRepository через pgx.
type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

// Append добавляет одну запись журнала.
func (r *auditRepo) Append(ctx context.Context, entry *model.AuditEntry) error {
	query := `
		INSERT INTO download_audit (id, token, asset_id, user_id, client_addr,
			success, error_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		entry.ID, entry.Token, entry.AssetID, entry.UserID, entry.ClientAddr,
		entry.Success, entry.ErrorText,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал скачиваний: %w", err)
	}
	return nil
}
