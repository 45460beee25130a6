// download.go — обработчик скачивания по токен-ссылке.
// GET /download/{token} — единственный бизнес-endpoint Linkgate.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/linkgate/internal/api/errors"
	"github.com/bigkaa/linkgate/internal/api/middleware"
	"github.com/bigkaa/linkgate/internal/service"
)

// DownloadHandler — обработчик скачивания файлов по токену.
type DownloadHandler struct {
	downloads *service.DownloadService
	// loginURL — куда отправлять анонимов, которым нужен логин.
	// Пустой — редиректа нет, возвращается 401.
	loginURL string
	logger   *slog.Logger
}

// NewDownloadHandler создаёт обработчик скачивания.
func NewDownloadHandler(downloads *service.DownloadService, loginURL string, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		loginURL:  loginURL,
		logger:    logger.With(slog.String("component", "download_handler")),
	}
}

// Download — GET /download/{token}.
// Тело ответа пишет сервисный слой (streaming); обработчик отвечает
// только за извлечение токена, идентичность вызывающего и error-ответы.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	caller := middleware.CallerFromContext(r.Context())

	derr := h.downloads.Download(r.Context(), w, token, caller, r.RemoteAddr)
	if derr == nil {
		return
	}

	if derr.AuthRequired {
		if h.loginURL != "" {
			http.Redirect(w, r, h.loginURL, http.StatusFound)
			return
		}
		apierrors.WriteError(w, http.StatusUnauthorized, derr.Code, derr.Message)
		return
	}

	apierrors.WriteError(w, derr.StatusCode, derr.Code, derr.Message)
}

// MissingToken — GET /download и /download/ без токена.
func (h *DownloadHandler) MissingToken(w http.ResponseWriter, _ *http.Request) {
	apierrors.WriteError(w, http.StatusBadRequest, service.CodeMissingToken, "download token is required")
}
