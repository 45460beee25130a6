package service

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/linkgate/internal/domain/model"
	"github.com/bigkaa/linkgate/internal/remote"
)

// chunkRecorder — ResponseWriter, запоминающий размер каждого Write.
// Проверяет, что отдача идёт чанками заданного размера, а не одним куском.
type chunkRecorder struct {
	header http.Header
	status int
	body   strings.Builder
	writes []int
}

func newChunkRecorder() *chunkRecorder {
	return &chunkRecorder{header: make(http.Header), status: http.StatusOK}
}

func (c *chunkRecorder) Header() http.Header {
	return c.header
}

func (c *chunkRecorder) WriteHeader(status int) {
	c.status = status
}

func (c *chunkRecorder) Write(b []byte) (int, error) {
	c.writes = append(c.writes, len(b))
	return c.body.Write(b)
}

func (c *chunkRecorder) Flush() {}

// newTestTransfer создаёт движок отдачи с указанным размером чанка.
func newTestTransfer(t *testing.T, chunkSize int) *Transfer {
	t.Helper()
	client, err := remote.New("", 10*time.Second, "", slog.Default())
	if err != nil {
		t.Fatalf("Ошибка создания remote-клиента: %v", err)
	}
	return NewTransfer(chunkSize, client, slog.Default())
}

// writeTempFile создаёт файл с содержимым в tempdir теста.
func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Ошибка создания файла: %v", err)
	}
	return path
}

// TestTransfer_LocalChunked — локальный файл отдаётся чанками
// фиксированного размера с корректными заголовками.
func TestTransfer_LocalChunked(t *testing.T) {
	content := "abcdefghij" // 10 байт, чанк 4 → записи 4+4+2
	path := writeTempFile(t, "data.bin", content)

	tr := newTestTransfer(t, 4)
	info := &model.AssetInfo{
		Asset: model.Asset{ID: "asset-1", Filename: "data.bin", Size: int64(len(content))},
	}
	link := &model.Link{Token: "tok"}
	rec := newChunkRecorder()

	written, sent, derr := tr.Send(context.Background(), rec, info, link, &Location{Kind: model.VolumeLocal, Path: path})
	if derr != nil {
		t.Fatalf("неожиданная ошибка: %v", derr)
	}
	if !sent {
		t.Error("sent = false, заголовки должны быть отправлены")
	}
	if written != int64(len(content)) {
		t.Errorf("written = %d, ожидалось %d", written, len(content))
	}
	if rec.body.String() != content {
		t.Errorf("тело = %q, ожидалось %q", rec.body.String(), content)
	}

	// Ни одна запись не превышает размер чанка
	for i, n := range rec.writes {
		if n > 4 {
			t.Errorf("запись %d размером %d байт превышает чанк", i, n)
		}
	}
	if len(rec.writes) < 3 {
		t.Errorf("записей = %d, ожидалось минимум 3 при чанке 4", len(rec.writes))
	}

	if got := rec.header.Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.header.Get("Content-Disposition"); got != `attachment; filename="data.bin"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := rec.header.Get("Content-Length"); got != "10" {
		t.Errorf("Content-Length = %q", got)
	}
}

// TestTransfer_LinkHeadersOverride — заголовки ссылки перекрывают
// заголовки по умолчанию и добавляют новые.
func TestTransfer_LinkHeadersOverride(t *testing.T) {
	path := writeTempFile(t, "x.txt", "hello")

	tr := newTestTransfer(t, 1024)
	info := &model.AssetInfo{Asset: model.Asset{ID: "a", Filename: "x.txt", Size: 5}}
	link := &model.Link{
		Headers: map[string]string{
			"Content-Type":  "text/plain",
			"Cache-Control": "no-store",
		},
	}
	rec := newChunkRecorder()

	_, _, derr := tr.Send(context.Background(), rec, info, link, &Location{Kind: model.VolumeLocal, Path: path})
	if derr != nil {
		t.Fatalf("неожиданная ошибка: %v", derr)
	}
	if got := rec.header.Get("Content-Type"); got != "text/plain" {
		t.Errorf("Content-Type = %q, заголовок ссылки не перекрыл дефолт", got)
	}
	if got := rec.header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
}

// TestTransfer_LocalMissing — отсутствующий файл даёт ошибку
// до отправки заголовков.
func TestTransfer_LocalMissing(t *testing.T) {
	tr := newTestTransfer(t, 1024)
	info := &model.AssetInfo{Asset: model.Asset{ID: "a", Filename: "ghost.txt"}}
	rec := newChunkRecorder()

	_, sent, derr := tr.Send(context.Background(), rec, info, &model.Link{},
		&Location{Kind: model.VolumeLocal, Path: filepath.Join(t.TempDir(), "ghost.txt")})
	if derr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if sent {
		t.Error("sent = true, заголовки не должны отправляться при недоступном файле")
	}
	if derr.Code != CodeUnreadable {
		t.Errorf("Code = %q, ожидался %q", derr.Code, CodeUnreadable)
	}
}

// TestTransfer_MidStreamAbort — ошибка записи после отправки заголовков:
// sent = true, ошибка возвращается только для учёта, записанные до
// обрыва байты посчитаны.
func TestTransfer_MidStreamAbort(t *testing.T) {
	content := "abcdefghij" // чанк 4 → обрыв на второй записи
	path := writeTempFile(t, "data.bin", content)

	tr := newTestTransfer(t, 4)
	info := &model.AssetInfo{Asset: model.Asset{ID: "a", Filename: "data.bin", Size: int64(len(content))}}
	w := &brokenPipeWriter{}

	written, sent, derr := tr.Send(context.Background(), w, info, &model.Link{},
		&Location{Kind: model.VolumeLocal, Path: path})
	if derr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if !sent {
		t.Error("sent = false, заголовки уже были отправлены")
	}
	if written != 4 {
		t.Errorf("written = %d, ожидалось 4 (один полный чанк до обрыва)", written)
	}
	if derr.Code != CodeUnreadable {
		t.Errorf("Code = %q, ожидался %q", derr.Code, CodeUnreadable)
	}
}

// TestTransfer_RemoteProxy — файл с remote-тома проксируется клиенту,
// заголовки выставляются свои, а не upstream.
func TestTransfer_RemoteProxy(t *testing.T) {
	content := "remote file body"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(content))
	}))
	defer upstream.Close()

	tr := newTestTransfer(t, 4)
	info := &model.AssetInfo{Asset: model.Asset{ID: "a", Filename: "pic.png", Size: int64(len(content))}}
	rec := newChunkRecorder()

	written, _, derr := tr.Send(context.Background(), rec, info, &model.Link{},
		&Location{Kind: model.VolumeRemote, URL: upstream.URL + "/files/pic.png"})
	if derr != nil {
		t.Fatalf("неожиданная ошибка: %v", derr)
	}
	if written != int64(len(content)) {
		t.Errorf("written = %d, ожидалось %d", written, len(content))
	}
	if rec.body.String() != content {
		t.Errorf("тело = %q", rec.body.String())
	}
	if got := rec.header.Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q, upstream-заголовок не должен просачиваться", got)
	}
}

// TestTransfer_RemoteUpstreamError — не-200 от remote-хранилища даёт
// ошибку до отправки заголовков.
func TestTransfer_RemoteUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	tr := newTestTransfer(t, 1024)
	info := &model.AssetInfo{Asset: model.Asset{ID: "a", Filename: "gone.bin"}}
	rec := newChunkRecorder()

	_, sent, derr := tr.Send(context.Background(), rec, info, &model.Link{},
		&Location{Kind: model.VolumeRemote, URL: upstream.URL + "/gone.bin"})
	if derr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if sent {
		t.Error("sent = true, заголовки не должны отправляться")
	}
	if derr.Code != CodeUnreadable {
		t.Errorf("Code = %q, ожидался %q", derr.Code, CodeUnreadable)
	}
}
