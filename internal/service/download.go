// download.go — оркестратор скачивания по токен-ссылке.
// Полный конвейер: резолв токена → авторизация → локация файла →
// отдача чанками → учёт. Каждая попытка с существующим токеном
// проходит через Tracker ровно один раз.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/linkgate/internal/domain/model"
)

// Prometheus-метрики скачивания.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lg_downloads_total",
		Help: "Общее количество попыток скачивания (по исходу).",
	}, []string{"outcome"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lg_download_duration_seconds",
		Help:    "Длительность успешного скачивания (от запроса до конца отдачи).",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_download_bytes_total",
		Help: "Общее количество отданных байт.",
	})

	activeDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lg_active_downloads",
		Help: "Количество активных (in-progress) скачиваний.",
	})
)

// Исходы попытки для метрики lg_downloads_total.
const (
	outcomeSuccess      = "success"
	outcomeMissingToken = "missing_token"
	outcomeNotFound     = "token_not_found"
	outcomeDenied       = "denied"
	outcomeAuthRequired = "auth_required"
	outcomeServerError  = "server_error"
	outcomeStreamError  = "stream_error"
)

// DownloadService — оркестратор конвейера скачивания.
type DownloadService struct {
	resolver *Resolver
	locator  *Locator
	transfer *Transfer
	tracker  *Tracker
	logger   *slog.Logger
	// now подменяется в тестах
	now func() time.Time
}

// NewDownloadService создаёт оркестратор.
func NewDownloadService(
	resolver *Resolver,
	locator *Locator,
	transfer *Transfer,
	tracker *Tracker,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		resolver: resolver,
		locator:  locator,
		transfer: transfer,
		tracker:  tracker,
		logger:   logger.With(slog.String("component", "download_service")),
		now:      time.Now,
	}
}

// Download выполняет полный конвейер скачивания по токену.
//
// Возвращает *DownloadError, если ответ клиенту ещё не начат и boundary-слой
// должен отдать ошибку сам. Возвращает nil при успехе и при обрыве
// после отправки заголовков (клиенту уже ничего не вернуть).
func (ds *DownloadService) Download(
	ctx context.Context,
	w http.ResponseWriter,
	token string,
	caller model.Caller,
	clientAddr string,
) *DownloadError {
	start := ds.now()
	activeDownloads.Inc()
	defer activeDownloads.Dec()

	if token == "" {
		downloadsTotal.WithLabelValues(outcomeMissingToken).Inc()
		return errMissingToken()
	}

	// 1. Резолв токена
	link, err := ds.resolver.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			downloadsTotal.WithLabelValues(outcomeNotFound).Inc()
			ds.logger.Info("Запрос с несуществующим токеном",
				slog.String("token", token),
				slog.String("client_addr", clientAddr),
			)
			return errTokenNotFound()
		}
		downloadsTotal.WithLabelValues(outcomeServerError).Inc()
		ds.logger.Error("Ошибка резолва токена",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		return errServer(CodeUnknownFailure, ReasonUnknown)
	}

	// fail фиксирует неудачную попытку в учёте и возвращает ошибку клиенту.
	fail := func(outcome string, derr *DownloadError) *DownloadError {
		downloadsTotal.WithLabelValues(outcome).Inc()
		ds.tracker.Track(ctx, Attempt{
			Link:       link,
			Caller:     caller,
			ClientAddr: clientAddr,
			ErrorText:  derr.Message,
		})
		return derr
	}

	// 2. Авторизация
	decision := Authorize(link, caller, ds.now())
	if !decision.Allowed {
		if decision.AuthRequired {
			return fail(outcomeAuthRequired, errAuthRequired())
		}
		// Защита от «тихого» отказа без зафиксированной причины
		if decision.Reason == "" {
			decision.Reason = ReasonUnknown
		}
		ds.logger.Info("Отказ в скачивании",
			slog.String("token", token),
			slog.String("reason", decision.Reason),
			slog.String("client_addr", clientAddr),
		)
		return fail(outcomeDenied, errDenied(denyCode(decision.Reason), decision.Reason))
	}

	// 3. Локация файла
	info, loc, derr := ds.locator.Locate(ctx, link.AssetID)
	if derr != nil {
		return fail(outcomeServerError, derr)
	}

	// 4. Отдача файла
	written, sent, derr := ds.transfer.Send(ctx, w, info, link, loc)
	if derr != nil {
		if sent {
			// Заголовки уже ушли клиенту: учитываем обрыв, не отвечаем.
			fail(outcomeStreamError, derr)
			return nil
		}
		return fail(outcomeServerError, derr)
	}

	// 5. Учёт успешной попытки
	ds.tracker.Track(ctx, Attempt{
		Link:       link,
		Caller:     caller,
		ClientAddr: clientAddr,
		Success:    true,
	})

	duration := ds.now().Sub(start)
	downloadsTotal.WithLabelValues(outcomeSuccess).Inc()
	downloadDuration.Observe(duration.Seconds())
	downloadBytesTotal.Add(float64(written))

	ds.logger.Debug("Скачивание завершено",
		slog.String("token", token),
		slog.String("asset_id", link.AssetID),
		slog.Int64("bytes", written),
		slog.Duration("duration", duration),
	)

	return nil
}

// denyCode сопоставляет контрактную причину отказа машиночитаемому коду.
func denyCode(reason string) string {
	switch reason {
	case ReasonLinkDisabled:
		return CodeLinkDisabled
	case ReasonLinkExpired:
		return CodeLinkExpired
	case ReasonQuotaExceeded:
		return CodeQuotaExceeded
	case ReasonUserNotAuthorized:
		return CodeNotAuthorized
	default:
		return CodeUnknownFailure
	}
}
