// Пакет remote — HTTP-клиент для получения файлов с remote-томов.
// Поддерживает TLS с кастомным CA (LG_REMOTE_CA_CERT_PATH), streaming-чтение
// тела ответа и опциональный статический bearer-токен для хранилищ,
// требующих сервисной авторизации.
package remote

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Client — HTTP-клиент remote-томов.
type Client struct {
	httpClient  *http.Client
	bearerToken string
	logger      *slog.Logger
}

// New создаёт клиент remote-томов.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// timeout — таймаут HTTP-запросов (из конфигурации LG_REMOTE_TIMEOUT).
// bearerToken — статический токен авторизации (пустая строка — без авторизации).
func New(caCertPath string, timeout time.Duration, bearerToken string, logger *slog.Logger) (*Client, error) {
	transport := &http.Transport{
		// Настройка пула idle-соединений для эффективного переиспользования
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата remote-хранилища: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат remote-хранилища добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}

	return &Client{
		httpClient:  httpClient,
		bearerToken: bearerToken,
		logger:      logger.With(slog.String("component", "remote_client")),
	}, nil
}

// Fetch выполняет streaming-загрузку файла по публичному URL.
// Возвращает *http.Response — вызывающий код ОБЯЗАН закрыть resp.Body.
// URL передаётся уже нормализованным (пробелы percent-encoded локатором).
func (c *Client) Fetch(ctx context.Context, fileURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Fetch: %w", err)
	}

	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из каталога томов
	if err != nil {
		return nil, fmt.Errorf("запрос файла %s: %w", fileURL, err)
	}

	// Не закрываем resp.Body — вызывающий код отвечает за это (streaming)
	return resp, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}
