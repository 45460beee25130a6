// transfer.go — отдача файла клиенту фиксированными чанками.
// Источник — локальная файловая система либо remote-хранилище
// (сквозной proxy без буферизации тела в памяти).
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/bigkaa/linkgate/internal/domain/model"
	"github.com/bigkaa/linkgate/internal/remote"
)

// Transfer — движок отдачи файлов.
type Transfer struct {
	chunkSize int
	remote    *remote.Client
	logger    *slog.Logger
}

// NewTransfer создаёт движок отдачи.
// chunkSize — размер чанка в байтах (строго больше нуля).
func NewTransfer(chunkSize int, remoteClient *remote.Client, logger *slog.Logger) *Transfer {
	return &Transfer{
		chunkSize: chunkSize,
		remote:    remoteClient,
		logger:    logger.With(slog.String("component", "transfer")),
	}
}

// Send отдаёт файл клиенту.
//
// Возвращает (записано байт, заголовки отправлены, ошибка).
// Ошибка до отправки заголовков (sent == false) может быть передана
// клиенту обычным error-ответом; после (sent == true) соединение
// обрывается, ошибка остаётся только для учёта и логов.
func (t *Transfer) Send(
	ctx context.Context,
	w http.ResponseWriter,
	info *model.AssetInfo,
	link *model.Link,
	loc *Location,
) (int64, bool, *DownloadError) {
	body, derr := t.openSource(ctx, loc)
	if derr != nil {
		return 0, false, derr
	}
	defer body.Close()

	t.writeHeaders(w, info, link)
	w.WriteHeader(http.StatusOK)

	written, err := t.copyChunks(w, body)
	if err != nil {
		// Заголовки уже отправлены: клиенту ничего не вернуть,
		// фиксируем обрыв для учёта.
		t.logger.Error("Обрыв отдачи файла",
			slog.String("asset_id", info.Asset.ID),
			slog.Int64("bytes_written", written),
			slog.String("error", err.Error()),
		)
		return written, true, errServer(CodeUnreadable, ReasonUnreadable)
	}

	return written, true, nil
}

// openSource открывает источник данных по расположению файла.
func (t *Transfer) openSource(ctx context.Context, loc *Location) (io.ReadCloser, *DownloadError) {
	if loc.Kind == model.VolumeRemote {
		resp, err := t.remote.Fetch(ctx, loc.URL)
		if err != nil {
			t.logger.Error("Ошибка запроса к remote-хранилищу",
				slog.String("url", loc.URL),
				slog.String("error", err.Error()),
			)
			return nil, errServer(CodeUnreadable, ReasonUnreadable)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.logger.Error("Remote-хранилище вернуло неожиданный статус",
				slog.String("url", loc.URL),
				slog.Int("status", resp.StatusCode),
			)
			return nil, errServer(CodeUnreadable, ReasonUnreadable)
		}
		return resp.Body, nil
	}

	f, err := os.Open(loc.Path)
	if err != nil {
		t.logger.Error("Файл недоступен на локальном томе",
			slog.String("path", loc.Path),
			slog.String("error", err.Error()),
		)
		return nil, errServer(CodeUnreadable, ReasonUnreadable)
	}
	return f, nil
}

// writeHeaders выставляет заголовки ответа.
// Content-Type принудительно application/octet-stream: браузер должен
// скачать файл, а не отрисовать его. Заголовки ссылки перекрывают
// одноимённые заголовки по умолчанию.
func (t *Transfer) writeHeaders(w http.ResponseWriter, info *model.AssetInfo, link *model.Link) {
	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Asset.Filename))
	if info.Asset.Size > 0 {
		h.Set("Content-Length", strconv.FormatInt(info.Asset.Size, 10))
	}
	for name, value := range link.Headers {
		h.Set(name, value)
	}
}

// copyChunks копирует тело фиксированными чанками с flush после каждого.
// Размер чанка ограничивает пиковое потребление памяти на соединение.
func (t *Transfer) copyChunks(w http.ResponseWriter, r io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, t.chunkSize)
	var written int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			wn, writeErr := w.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, fmt.Errorf("запись чанка клиенту: %w", writeErr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("чтение чанка источника: %w", readErr)
		}
	}
}
