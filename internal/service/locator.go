// locator.go — локатор файла: каталог (кэш или БД) → физическое
// расположение на local- или remote-томе.
package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bigkaa/linkgate/internal/domain/model"
	"github.com/bigkaa/linkgate/internal/repository"
)

// Location — физическое расположение файла.
// Заполнено ровно одно из полей Path/URL в зависимости от Kind.
type Location struct {
	// Kind — тип тома, на котором лежит файл
	Kind model.VolumeKind
	// Path — абсолютный путь на локальной файловой системе (local)
	Path string
	// URL — публичный URL файла (remote)
	URL string
}

// Locator находит метаданные актива и его физическое расположение.
type Locator struct {
	assets repository.AssetRepository
	cache  *CacheService
	logger *slog.Logger
}

// NewLocator создаёт локатор файлов.
func NewLocator(assets repository.AssetRepository, cache *CacheService, logger *slog.Logger) *Locator {
	return &Locator{
		assets: assets,
		cache:  cache,
		logger: logger.With(slog.String("component", "locator")),
	}
}

// Locate возвращает метаданные актива и его расположение.
//
// Отсутствие актива в каталоге после успешной авторизации — серверная
// ошибка (рассинхронизация токенов и каталога), а не 404 клиента.
func (l *Locator) Locate(ctx context.Context, assetID string) (*model.AssetInfo, *Location, *DownloadError) {
	info, err := l.getAssetInfo(ctx, assetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			l.logger.Error("Актив отсутствует в каталоге при валидном токене",
				slog.String("asset_id", assetID),
			)
			return nil, nil, errServer(CodeAssetMissing, ReasonAssetMissing)
		}
		l.logger.Error("Ошибка чтения каталога",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		return nil, nil, errServer(CodeUnknownFailure, ReasonUnknown)
	}

	switch info.Volume.Kind {
	case model.VolumeRemote:
		if info.Asset.PublicURL == nil || *info.Asset.PublicURL == "" {
			return nil, nil, errServer(CodeCloudURL, ReasonCloudURLMissing)
		}
		// Пробелы в URL остаются от имён файлов; процентно кодируем
		// только их, остальное — зона ответственности каталога.
		url := strings.ReplaceAll(*info.Asset.PublicURL, " ", "%20")
		return info, &Location{Kind: model.VolumeRemote, URL: url}, nil
	default:
		// filepath.Join схлопывает дублированные разделители между
		// base_path, folder_path и именем файла.
		path := filepath.Join(info.Volume.BasePath, info.Asset.FolderPath, info.Asset.Filename)
		return info, &Location{Kind: model.VolumeLocal, Path: path}, nil
	}
}

// getAssetInfo возвращает AssetInfo из кэша или каталога.
func (l *Locator) getAssetInfo(ctx context.Context, assetID string) (*model.AssetInfo, error) {
	if info, ok := l.cache.Get(assetID); ok {
		return info, nil
	}

	info, err := l.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}

	l.cache.Set(assetID, info)
	return info, nil
}
