// logging.go — middleware логирования HTTP-запросов через slog.
// Запись делается после завершения обработки, поэтому для скачиваний
// в лог попадает фактический объём отданных байт, включая оборванные
// соединения.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"time"
)

// loggingResponseWriter перехватывает статус-код и объём записанного тела.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.status = code
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lw.ResponseWriter.Write(b)
	lw.bytes += int64(n)
	return n, err
}

// Unwrap открывает оригинальный ResponseWriter для http.ResponseController.
func (lw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lw.ResponseWriter
}

// levelForStatus выбирает уровень записи по статус-коду ответа.
func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// clientHost отделяет адрес клиента от эфемерного порта.
func clientHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// RequestLogger возвращает middleware, логирующий каждый HTTP-запрос:
// метод, путь, статус, отданные байты, длительность, клиент, User-Agent.
// Уровень зависит от статуса ответа: INFO до 4xx, WARN 4xx, ERROR 5xx.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(lw, r)

			log.LogAttrs(r.Context(), levelForStatus(lw.status), "HTTP запрос",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", lw.status),
				slog.Int64("bytes_sent", lw.bytes),
				slog.Duration("duration", time.Since(start)),
				slog.String("client", clientHost(r.RemoteAddr)),
				slog.String("user_agent", r.UserAgent()),
			)
		})
	}
}
