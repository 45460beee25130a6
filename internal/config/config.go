// Пакет config — загрузка и валидация конфигурации Linkgate
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Linkgate.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 0 — без лимита:
	// длительность отдачи файла пропорциональна его размеру)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Пользователь БД
	DBUser string
	// Пароль БД (обязательный)
	DBPassword string
	// Режим SSL (disable, require, verify-full)
	DBSSLMode string

	// --- Identity Provider ---

	// URL JWKS endpoint провайдера идентичности.
	// Пустая строка — аутентификация не настроена, все запросы анонимны.
	JWKSURL string
	// Путь к CA-сертификату для TLS к JWKS (опционально)
	IDPCACertPath string
	// Ожидаемый issuer JWT (пустая строка — не проверяется)
	JWTIssuer string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// URL страницы логина для редиректа при authentication required.
	// Пустая строка — вместо редиректа возвращается 401.
	LoginURL string

	// --- Передача файлов ---

	// Размер чанка при streaming-отдаче файла (по умолчанию 8 KiB)
	ChunkSize int
	// Таймаут HTTP-запросов к remote-томам
	RemoteTimeout time.Duration
	// Путь к CA-сертификату для TLS к remote-томам (опционально)
	RemoteCACertPath string
	// Статический bearer-токен для запросов к remote-томам (опционально)
	RemoteBearerToken string

	// --- Кэш каталога ---

	// Максимальное количество дескрипторов файлов в LRU-кэше
	CacheSize int
	// TTL записи кэша
	CacheTTL time.Duration

	// --- Учёт ---

	// Вести ли append-only журнал попыток скачивания
	AuditEnabled bool

	// --- Dephealth ---

	// Включён ли мониторинг зависимостей
	DephealthEnabled bool
	// Имя группы в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Лейбл isentry=yes для всех зависимостей
	DephealthIsEntry bool
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// LG_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("LG_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("LG_PORT: %w", err)
	}

	// LG_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("LG_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("LG_LOG_LEVEL: %w", err)
	}

	// LG_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("LG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LG_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	// LG_HTTP_READ_TIMEOUT — таймаут чтения (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("LG_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_HTTP_READ_TIMEOUT: %w", err)
	}

	// LG_HTTP_WRITE_TIMEOUT — таймаут записи (по умолчанию 0 — отключён,
	// иначе сервер оборвёт долгие скачивания больших файлов)
	cfg.HTTPWriteTimeout, err = getEnvDuration("LG_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("LG_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// LG_HTTP_IDLE_TIMEOUT — таймаут простоя (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("LG_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	// LG_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("LG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("LG_DB_HOST", "localhost")

	cfg.DBPort, err = getEnvInt("LG_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("LG_DB_PORT: %w", err)
	}

	cfg.DBName = getEnvDefault("LG_DB_NAME", "linkgate")
	cfg.DBUser = getEnvDefault("LG_DB_USER", "linkgate")

	// LG_DB_PASSWORD — обязательная переменная
	cfg.DBPassword, err = getEnvRequired("LG_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("LG_DB_SSLMODE", "disable")

	// --- Identity Provider ---

	cfg.JWKSURL = getEnvDefault("LG_IDP_JWKS_URL", "")
	cfg.IDPCACertPath = getEnvDefault("LG_IDP_CA_CERT_PATH", "")
	cfg.JWTIssuer = getEnvDefault("LG_IDP_ISSUER", "")

	cfg.JWTLeeway, err = getEnvDuration("LG_IDP_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_IDP_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSClientTimeout, err = getEnvDuration("LG_IDP_JWKS_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_IDP_JWKS_TIMEOUT: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("LG_IDP_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("LG_IDP_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.LoginURL = getEnvDefault("LG_LOGIN_URL", "")

	// --- Передача файлов ---

	// LG_CHUNK_SIZE — размер чанка в байтах (по умолчанию 8 KiB)
	cfg.ChunkSize, err = getEnvInt("LG_CHUNK_SIZE", 8*1024)
	if err != nil {
		return nil, fmt.Errorf("LG_CHUNK_SIZE: %w", err)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("LG_CHUNK_SIZE: значение должно быть > 0")
	}

	cfg.RemoteTimeout, err = getEnvDuration("LG_REMOTE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("LG_REMOTE_TIMEOUT: %w", err)
	}

	cfg.RemoteCACertPath = getEnvDefault("LG_REMOTE_CA_CERT_PATH", "")
	cfg.RemoteBearerToken = getEnvDefault("LG_REMOTE_BEARER_TOKEN", "")

	// --- Кэш каталога ---

	cfg.CacheSize, err = getEnvInt("LG_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("LG_CACHE_SIZE: %w", err)
	}

	cfg.CacheTTL, err = getEnvDuration("LG_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("LG_CACHE_TTL: %w", err)
	}

	// --- Учёт ---

	cfg.AuditEnabled, err = getEnvBool("LG_AUDIT_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("LG_AUDIT_ENABLED: %w", err)
	}

	// --- Dephealth ---

	cfg.DephealthEnabled, err = getEnvBool("LG_DEPHEALTH_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("LG_DEPHEALTH_ENABLED: %w", err)
	}

	cfg.DephealthGroup = getEnvDefault("LG_DEPHEALTH_GROUP", "linkgate")

	cfg.DephealthCheckInterval, err = getEnvDuration("LG_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", true)
	if err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает DSN подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
