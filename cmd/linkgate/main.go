// main.go — точка входа Linkgate.
// Сборка конвейера: конфигурация → логгер → миграции и БД → репозитории →
// кэш → remote-клиент → сервисы → middleware → HTTP-сервер.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/linkgate/internal/api/handlers"
	"github.com/bigkaa/linkgate/internal/api/middleware"
	"github.com/bigkaa/linkgate/internal/config"
	"github.com/bigkaa/linkgate/internal/database"
	"github.com/bigkaa/linkgate/internal/remote"
	"github.com/bigkaa/linkgate/internal/repository"
	"github.com/bigkaa/linkgate/internal/server"
	"github.com/bigkaa/linkgate/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Linkgate запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// 3. Миграции и подключение к PostgreSQL
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка применения миграций", slog.String("error", err.Error()))
		log.Fatalf("Миграции не применены: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		log.Fatalf("PostgreSQL недоступен: %v", err)
	}
	defer pool.Close()

	// 4. Репозитории
	tokenRepo := repository.NewTokenRepository(pool)
	assetRepo := repository.NewAssetRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	// 5. Кэш каталога и remote-клиент
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)

	remoteClient, err := remote.New(cfg.RemoteCACertPath, cfg.RemoteTimeout, cfg.RemoteBearerToken, logger)
	if err != nil {
		logger.Error("Ошибка создания remote-клиента", slog.String("error", err.Error()))
		log.Fatalf("Remote-клиент не создан: %v", err)
	}

	// 6. Сервисы конвейера скачивания
	resolver := service.NewResolver(tokenRepo, logger)
	locator := service.NewLocator(assetRepo, cache, logger)
	transfer := service.NewTransfer(cfg.ChunkSize, remoteClient, logger)
	tracker := service.NewTracker(tokenRepo, auditRepo, cfg.AuditEnabled, logger)
	downloads := service.NewDownloadService(resolver, locator, transfer, tracker, logger)

	// 7. Dephealth — мониторинг зависимостей
	var dephealthSvc *service.DephealthService
	if cfg.DephealthEnabled {
		sqlDB := stdlib.OpenDBFromPool(pool)
		dephealthSvc, err = service.NewDephealthService(
			"linkgate",
			cfg.DephealthGroup,
			sqlDB,
			cfg.DatabaseDSN(),
			cfg.JWKSURL,
			cfg.DephealthCheckInterval,
			cfg.DephealthIsEntry,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания dephealth", slog.String("error", err.Error()))
			log.Fatalf("Dephealth не создан: %v", err)
		}
		if err := dephealthSvc.Start(ctx); err != nil {
			logger.Error("Ошибка запуска dephealth", slog.String("error", err.Error()))
			log.Fatalf("Dephealth не запущен: %v", err)
		}
		defer dephealthSvc.Stop()
	}

	// 8. Middleware: метрики, логирование, опциональная аутентификация
	middlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}

	var idpChecker handlers.ReadinessChecker
	if cfg.JWKSURL != "" {
		jwtAuth, err := middleware.NewJWTAuth(
			cfg.JWKSURL,
			cfg.IDPCACertPath,
			cfg.JWTIssuer,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			log.Fatalf("JWT middleware не создан: %v", err)
		}
		defer jwtAuth.Close()
		middlewares = append(middlewares, jwtAuth.Middleware())

		idpChecker, err = middleware.NewIdPReadinessChecker(cfg.JWKSURL, cfg.IDPCACertPath, cfg.JWKSClientTimeout)
		if err != nil {
			logger.Error("Ошибка создания IdP readiness checker", slog.String("error", err.Error()))
			log.Fatalf("IdP readiness checker не создан: %v", err)
		}
	} else {
		logger.Warn("LG_IDP_JWKS_URL не задан: аутентификация отключена, все запросы анонимны")
	}

	// 9. Handlers и HTTP-сервер
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), idpChecker)
	downloadHandler := handlers.NewDownloadHandler(downloads, cfg.LoginURL, logger)

	srv := server.New(cfg, logger, downloadHandler, healthHandler, middlewares...)

	// 10. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		log.Fatalf("Сервер завершился с ошибкой: %v", err)
	}

	logger.Info("Linkgate остановлен")
}
