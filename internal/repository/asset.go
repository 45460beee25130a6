// asset.go — read-only репозиторий каталога assets/volumes (owned by CMS).
// Выдаёт файл вместе с его томом одним JOIN-запросом.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/linkgate/internal/domain/model"
)

// AssetRepository — доступ к каталогу файлов.
type AssetRepository interface {
	// GetByID возвращает файл вместе с томом или ErrNotFound.
	GetByID(ctx context.Context, assetID string) (*model.AssetInfo, error)
}

// assetRepo — реализация AssetRepository через pgx.
type assetRepo struct {
	db DBTX
}

// NewAssetRepository создаёт репозиторий каталога файлов.
func NewAssetRepository(db DBTX) AssetRepository {
	return &assetRepo{db: db}
}

// GetByID возвращает файл вместе с томом или ErrNotFound.
func (r *assetRepo) GetByID(ctx context.Context, assetID string) (*model.AssetInfo, error) {
	query := `
		SELECT a.id, a.filename, a.size_bytes, a.content_type,
			a.volume_id, a.folder_path, a.public_url, a.created_at,
			v.id, v.name, v.kind, v.base_path, v.root_url
		FROM assets a
		JOIN volumes v ON v.id = a.volume_id
		WHERE a.id = $1`

	info := &model.AssetInfo{}
	err := r.db.QueryRow(ctx, query, assetID).Scan(
		&info.Asset.ID, &info.Asset.Filename, &info.Asset.Size, &info.Asset.ContentType,
		&info.Asset.VolumeID, &info.Asset.FolderPath, &info.Asset.PublicURL, &info.Asset.CreatedAt,
		&info.Volume.ID, &info.Volume.Name, &info.Volume.Kind,
		&info.Volume.BasePath, &info.Volume.RootURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла из каталога: %w", err)
	}
	return info, nil
}
