package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/linkgate/internal/domain/model"
	"github.com/bigkaa/linkgate/internal/remote"
	"github.com/bigkaa/linkgate/internal/repository"
)

// --- Mock-репозитории ---

type mockTokenRepo struct {
	getByTokenFn     func(ctx context.Context, token string) (*model.TokenRecord, error)
	recordDownloadFn func(ctx context.Context, token string) error
}

func (m *mockTokenRepo) GetByToken(ctx context.Context, token string) (*model.TokenRecord, error) {
	return m.getByTokenFn(ctx, token)
}

func (m *mockTokenRepo) RecordDownload(ctx context.Context, token string) error {
	if m.recordDownloadFn == nil {
		return nil
	}
	return m.recordDownloadFn(ctx, token)
}

type mockAssetRepo struct {
	getByIDFn func(ctx context.Context, assetID string) (*model.AssetInfo, error)
}

func (m *mockAssetRepo) GetByID(ctx context.Context, assetID string) (*model.AssetInfo, error) {
	return m.getByIDFn(ctx, assetID)
}

type mockAuditRepo struct {
	appendFn func(ctx context.Context, entry *model.AuditEntry) error
}

func (m *mockAuditRepo) Append(ctx context.Context, entry *model.AuditEntry) error {
	if m.appendFn == nil {
		return nil
	}
	return m.appendFn(ctx, entry)
}

// newTestDownloadService собирает полный конвейер с mock-репозиториями.
func newTestDownloadService(
	t *testing.T,
	tokens repository.TokenRepository,
	assets repository.AssetRepository,
	audit repository.AuditRepository,
) *DownloadService {
	t.Helper()
	logger := slog.Default()

	remoteClient, err := remote.New("", 10*time.Second, "", logger)
	if err != nil {
		t.Fatalf("Ошибка создания remote-клиента: %v", err)
	}

	resolver := NewResolver(tokens, logger)
	locator := NewLocator(assets, NewCacheService(100, 5*time.Minute), logger)
	transfer := NewTransfer(4, remoteClient, logger)
	tracker := NewTracker(tokens, audit, true, logger)

	return NewDownloadService(resolver, locator, transfer, tracker, logger)
}

// localAssetRepo возвращает mock каталога с одним локальным активом.
func localAssetRepo(basePath, filename string, size int64) *mockAssetRepo {
	return &mockAssetRepo{
		getByIDFn: func(_ context.Context, assetID string) (*model.AssetInfo, error) {
			return &model.AssetInfo{
				Asset:  model.Asset{ID: assetID, Filename: filename, Size: size},
				Volume: model.Volume{ID: "vol-1", Kind: model.VolumeLocal, BasePath: basePath},
			}, nil
		},
	}
}

// TestDownload_SuccessLocal — полный happy path: локальный файл отдан,
// счётчик инкрементирован, аудит зафиксировал успех.
func TestDownload_SuccessLocal(t *testing.T) {
	content := "token gated file"
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "doc.txt"), []byte(content), 0o600); err != nil {
		t.Fatalf("Ошибка создания файла: %v", err)
	}

	recorded := 0
	tokens := &mockTokenRepo{
		getByTokenFn: func(_ context.Context, token string) (*model.TokenRecord, error) {
			return &model.TokenRecord{Token: token, AssetID: "asset-1", Enabled: true}, nil
		},
		recordDownloadFn: func(_ context.Context, _ string) error {
			recorded++
			return nil
		},
	}
	var entry *model.AuditEntry
	audit := &mockAuditRepo{
		appendFn: func(_ context.Context, e *model.AuditEntry) error {
			entry = e
			return nil
		},
	}

	svc := newTestDownloadService(t, tokens, localAssetRepo(dir, "doc.txt", int64(len(content))), audit)

	rec := httptest.NewRecorder()
	derr := svc.Download(context.Background(), rec, "tok-1", model.Caller{}, "10.0.0.1:5555")
	if derr != nil {
		t.Fatalf("неожиданная ошибка: %v", derr)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Body.String() != content {
		t.Errorf("тело = %q, ожидалось %q", rec.Body.String(), content)
	}
	if recorded != 1 {
		t.Errorf("счётчик инкрементирован %d раз, ожидался 1", recorded)
	}
	if entry == nil || !entry.Success {
		t.Errorf("аудит: %+v, ожидалась успешная запись", entry)
	}
}

// TestDownload_TokenNotFound — несуществующий токен: 404 без учёта.
func TestDownload_TokenNotFound(t *testing.T) {
	tokens := &mockTokenRepo{
		getByTokenFn: func(_ context.Context, _ string) (*model.TokenRecord, error) {
			return nil, repository.ErrNotFound
		},
	}
	audit := &mockAuditRepo{
		appendFn: func(_ context.Context, _ *model.AuditEntry) error {
			t.Error("несуществующий токен не должен попадать в аудит")
			return nil
		},
	}

	svc := newTestDownloadService(t, tokens, localAssetRepo("/data", "x", 1), audit)

	rec := httptest.NewRecorder()
	derr := svc.Download(context.Background(), rec, "ghost", model.Caller{}, "10.0.0.1:5555")
	if derr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if derr.StatusCode != http.StatusNotFound || derr.Code != CodeTokenNotFound {
		t.Errorf("StatusCode/Code = %d/%q", derr.StatusCode, derr.Code)
	}
}

// TestDownload_MissingToken — пустой токен: 400.
func TestDownload_MissingToken(t *testing.T) {
	svc := newTestDownloadService(t,
		&mockTokenRepo{getByTokenFn: func(_ context.Context, _ string) (*model.TokenRecord, error) {
			t.Error("резолв не должен вызываться для пустого токена")
			return nil, repository.ErrNotFound
		}},
		localAssetRepo("/data", "x", 1),
		&mockAuditRepo{},
	)

	derr := svc.Download(context.Background(), httptest.NewRecorder(), "", model.Caller{}, "")
	if derr == nil || derr.Code != CodeMissingToken {
		t.Fatalf("derr = %+v, ожидался MISSING_TOKEN", derr)
	}
}

// TestDownload_Denied — отказ авторизации: контрактная причина клиенту,
// неудачная попытка в аудите, счётчик не тронут.
func TestDownload_Denied(t *testing.T) {
	expired := "2020-01-01T00:00:00Z"
	tokens := &mockTokenRepo{
		getByTokenFn: func(_ context.Context, token string) (*model.TokenRecord, error) {
			return &model.TokenRecord{Token: token, AssetID: "asset-1", Enabled: true, Expires: &expired}, nil
		},
		recordDownloadFn: func(_ context.Context, _ string) error {
			t.Error("счётчик не должен инкрементироваться при отказе")
			return nil
		},
	}
	var entry *model.AuditEntry
	audit := &mockAuditRepo{
		appendFn: func(_ context.Context, e *model.AuditEntry) error {
			entry = e
			return nil
		},
	}

	svc := newTestDownloadService(t, tokens, localAssetRepo("/data", "x", 1), audit)

	derr := svc.Download(context.Background(), httptest.NewRecorder(), "tok-1", model.Caller{}, "10.0.0.1:5555")
	if derr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if derr.StatusCode != http.StatusForbidden || derr.Code != CodeLinkExpired {
		t.Errorf("StatusCode/Code = %d/%q", derr.StatusCode, derr.Code)
	}
	if derr.Message != ReasonLinkExpired {
		t.Errorf("Message = %q, ожидался %q", derr.Message, ReasonLinkExpired)
	}
	if entry == nil || entry.Success || entry.ErrorText != ReasonLinkExpired {
		t.Errorf("аудит: %+v", entry)
	}
}

// TestDownload_AuthRequired — аноним против защищённой ссылки:
// особый отказ с AuthRequired для редиректа на логин.
func TestDownload_AuthRequired(t *testing.T) {
	tokens := &mockTokenRepo{
		getByTokenFn: func(_ context.Context, token string) (*model.TokenRecord, error) {
			return &model.TokenRecord{Token: token, AssetID: "asset-1", Enabled: true, RequireUser: []byte(`"*"`)}, nil
		},
	}

	svc := newTestDownloadService(t, tokens, localAssetRepo("/data", "x", 1), &mockAuditRepo{})

	derr := svc.Download(context.Background(), httptest.NewRecorder(), "tok-1", model.Caller{}, "")
	if derr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if !derr.AuthRequired {
		t.Error("AuthRequired = false, ожидался особый отказ")
	}
	if derr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", derr.StatusCode)
	}

	// Аутентифицированный вызывающий проходит то же правило,
	// но падает дальше на отсутствующем файле — уже не AuthRequired.
	derr = svc.Download(context.Background(), httptest.NewRecorder(), "tok-1",
		model.Caller{Authenticated: true}, "")
	if derr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if derr.AuthRequired {
		t.Error("AuthRequired = true для аутентифицированного")
	}
}

// TestDownload_QuotaExceeded — исчерпанная квота.
func TestDownload_QuotaExceeded(t *testing.T) {
	tokens := &mockTokenRepo{
		getByTokenFn: func(_ context.Context, token string) (*model.TokenRecord, error) {
			return &model.TokenRecord{
				Token: token, AssetID: "asset-1", Enabled: true,
				MaxDownloads: 2, TotalDownloads: 2,
			}, nil
		},
	}

	svc := newTestDownloadService(t, tokens, localAssetRepo("/data", "x", 1), &mockAuditRepo{})

	derr := svc.Download(context.Background(), httptest.NewRecorder(), "tok-1", model.Caller{}, "")
	if derr == nil || derr.Code != CodeQuotaExceeded {
		t.Fatalf("derr = %+v, ожидался QUOTA_EXCEEDED", derr)
	}
	if derr.Message != ReasonQuotaExceeded {
		t.Errorf("Message = %q, ожидался %q", derr.Message, ReasonQuotaExceeded)
	}
}

// TestDownload_RemoteProxy — актив на remote-томе проксируется
// из mock-хранилища.
func TestDownload_RemoteProxy(t *testing.T) {
	content := "cloud object payload"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(content))
	}))
	defer upstream.Close()

	publicURL := upstream.URL + "/objects/pic.png"
	tokens := &mockTokenRepo{
		getByTokenFn: func(_ context.Context, token string) (*model.TokenRecord, error) {
			return &model.TokenRecord{Token: token, AssetID: "asset-2", Enabled: true}, nil
		},
	}
	assets := &mockAssetRepo{
		getByIDFn: func(_ context.Context, assetID string) (*model.AssetInfo, error) {
			return &model.AssetInfo{
				Asset:  model.Asset{ID: assetID, Filename: "pic.png", Size: int64(len(content)), PublicURL: &publicURL},
				Volume: model.Volume{ID: "vol-2", Kind: model.VolumeRemote},
			}, nil
		},
	}

	svc := newTestDownloadService(t, tokens, assets, &mockAuditRepo{})

	rec := httptest.NewRecorder()
	derr := svc.Download(context.Background(), rec, "tok-2", model.Caller{}, "")
	if derr != nil {
		t.Fatalf("неожиданная ошибка: %v", derr)
	}
	if rec.Body.String() != content {
		t.Errorf("тело = %q, ожидалось %q", rec.Body.String(), content)
	}
}

// TestDownload_CloudURLMissing — remote-актив без публичного URL:
// серверная ошибка с фиксацией в аудите.
func TestDownload_CloudURLMissing(t *testing.T) {
	tokens := &mockTokenRepo{
		getByTokenFn: func(_ context.Context, token string) (*model.TokenRecord, error) {
			return &model.TokenRecord{Token: token, AssetID: "asset-3", Enabled: true}, nil
		},
	}
	assets := &mockAssetRepo{
		getByIDFn: func(_ context.Context, assetID string) (*model.AssetInfo, error) {
			return &model.AssetInfo{
				Asset:  model.Asset{ID: assetID, Filename: "x.bin"},
				Volume: model.Volume{ID: "vol-2", Kind: model.VolumeRemote},
			}, nil
		},
	}
	var entry *model.AuditEntry
	audit := &mockAuditRepo{
		appendFn: func(_ context.Context, e *model.AuditEntry) error {
			entry = e
			return nil
		},
	}

	svc := newTestDownloadService(t, tokens, assets, audit)

	derr := svc.Download(context.Background(), httptest.NewRecorder(), "tok-3", model.Caller{}, "")
	if derr == nil || derr.Code != CodeCloudURL {
		t.Fatalf("derr = %+v, ожидался CLOUD_URL_MISSING", derr)
	}
	if entry == nil || entry.Success || entry.ErrorText != ReasonCloudURLMissing {
		t.Errorf("аудит: %+v", entry)
	}
}

// brokenPipeWriter — ResponseWriter, имитирующий обрыв соединения
// клиентом: первая запись тела проходит, последующие падают.
type brokenPipeWriter struct {
	header http.Header
	writes int
}

func (b *brokenPipeWriter) Header() http.Header {
	if b.header == nil {
		b.header = make(http.Header)
	}
	return b.header
}

func (b *brokenPipeWriter) WriteHeader(int) {}

func (b *brokenPipeWriter) Write(p []byte) (int, error) {
	b.writes++
	if b.writes > 1 {
		return 0, errors.New("write tcp: broken pipe")
	}
	return len(p), nil
}

func (b *brokenPipeWriter) Flush() {}

// TestDownload_ClientDisconnect — обрыв соединения после отправки
// заголовков: boundary-слой не получает ошибку (отвечать уже некому),
// счётчик не инкрементируется, аудит фиксирует неудачу.
func TestDownload_ClientDisconnect(t *testing.T) {
	content := "abcdefghij" // 10 байт, чанк 4 → обрыв на второй записи
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "big.bin"), []byte(content), 0o600); err != nil {
		t.Fatalf("Ошибка создания файла: %v", err)
	}

	tokens := &mockTokenRepo{
		getByTokenFn: func(_ context.Context, token string) (*model.TokenRecord, error) {
			return &model.TokenRecord{Token: token, AssetID: "asset-5", Enabled: true}, nil
		},
		recordDownloadFn: func(_ context.Context, _ string) error {
			t.Error("счётчик не должен инкрементироваться при обрыве отдачи")
			return nil
		},
	}
	var entry *model.AuditEntry
	audit := &mockAuditRepo{
		appendFn: func(_ context.Context, e *model.AuditEntry) error {
			entry = e
			return nil
		},
	}

	svc := newTestDownloadService(t, tokens, localAssetRepo(dir, "big.bin", int64(len(content))), audit)

	w := &brokenPipeWriter{}
	derr := svc.Download(context.Background(), w, "tok-5", model.Caller{}, "10.0.0.3:7777")
	if derr != nil {
		t.Fatalf("derr = %v, после отправки заголовков ошибка не возвращается", derr)
	}
	if w.writes < 2 {
		t.Errorf("записей = %d, отдача должна была дойти до обрыва", w.writes)
	}
	if entry == nil {
		t.Fatal("строка аудита не записана")
	}
	if entry.Success {
		t.Error("аудит: Success = true для оборванной попытки")
	}
	if entry.ErrorText == "" {
		t.Error("аудит: пустой ErrorText для оборванной попытки")
	}
}

// TestDownload_ResourceUnreadable — файл числится в каталоге,
// но отсутствует на диске.
func TestDownload_ResourceUnreadable(t *testing.T) {
	tokens := &mockTokenRepo{
		getByTokenFn: func(_ context.Context, token string) (*model.TokenRecord, error) {
			return &model.TokenRecord{Token: token, AssetID: "asset-4", Enabled: true}, nil
		},
	}

	svc := newTestDownloadService(t, tokens, localAssetRepo(t.TempDir(), "ghost.bin", 10), &mockAuditRepo{})

	derr := svc.Download(context.Background(), httptest.NewRecorder(), "tok-4", model.Caller{}, "")
	if derr == nil || derr.Code != CodeUnreadable {
		t.Fatalf("derr = %+v, ожидался RESOURCE_UNREADABLE", derr)
	}
	if derr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", derr.StatusCode)
	}
}
