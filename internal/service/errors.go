// errors.go — итоговые ошибки download-конвейера.
// Каждая стадия возвращает либо значение-продолжение, либо терминальный
// *DownloadError; orchestrator гарантирует ровно один проход через
// Usage Tracker на любой исход.
package service

import (
	"errors"
	"net/http"
)

// Ошибки сервисного слоя.
var (
	// ErrTokenNotFound — токен отсутствует в хранилище.
	ErrTokenNotFound = errors.New("токен не найден")
)

// Контрактные причины отказа, видимые клиенту.
// Сообщение клиенту — причина первого нарушенного правила.
const (
	ReasonLinkDisabled      = "link disabled"
	ReasonLinkExpired       = "link expired"
	ReasonQuotaExceeded     = "maximum downloads reached"
	ReasonUserNotAuthorized = "user not authorized"
	ReasonAuthRequired      = "authentication required"
	ReasonCloudURLMissing   = "cloud asset missing public URL"
	ReasonAssetMissing      = "asset not found in catalog"
	ReasonUnreadable        = "resource not found"
	// ReasonUnknown подставляется, если отказ произошёл без
	// зафиксированной причины (защита от «тихих» отказов).
	ReasonUnknown = "unknown failure"
)

// Машиночитаемые коды ошибок download-конвейера.
const (
	CodeMissingToken   = "MISSING_TOKEN"
	CodeTokenNotFound  = "TOKEN_NOT_FOUND"
	CodeLinkDisabled   = "LINK_DISABLED"
	CodeLinkExpired    = "LINK_EXPIRED"
	CodeQuotaExceeded  = "QUOTA_EXCEEDED"
	CodeAuthRequired   = "AUTHENTICATION_REQUIRED"
	CodeNotAuthorized  = "USER_NOT_AUTHORIZED"
	CodeAssetMissing   = "ASSET_MISSING"
	CodeCloudURL       = "CLOUD_URL_MISSING"
	CodeUnreadable     = "RESOURCE_UNREADABLE"
	CodeUnknownFailure = "UNKNOWN_FAILURE"
)

// DownloadError — терминальная ошибка попытки скачивания.
// Несёт HTTP-статус и код для boundary-слоя; AuthRequired выделяет
// особый случай «нужен логин», который обрабатывается редиректом,
// а не плоским отказом.
type DownloadError struct {
	StatusCode   int
	Code         string
	Message      string
	AuthRequired bool
}

// Error реализует интерфейс error.
func (e *DownloadError) Error() string {
	return e.Message
}

// --- Конструкторы типовых ошибок конвейера ---

// errMissingToken — запрос без токена.
func errMissingToken() *DownloadError {
	return &DownloadError{StatusCode: http.StatusBadRequest, Code: CodeMissingToken, Message: "download token is required"}
}

// errTokenNotFound — токен не найден в хранилище.
func errTokenNotFound() *DownloadError {
	return &DownloadError{StatusCode: http.StatusNotFound, Code: CodeTokenNotFound, Message: "invalid download token"}
}

// errDenied — отказ авторизации с причиной первого нарушенного правила.
func errDenied(code, reason string) *DownloadError {
	return &DownloadError{StatusCode: http.StatusForbidden, Code: code, Message: reason}
}

// errAuthRequired — аутентификация обязательна: boundary-слой должен
// отправить на логин, а не вернуть плоский 403.
func errAuthRequired() *DownloadError {
	return &DownloadError{
		StatusCode:   http.StatusUnauthorized,
		Code:         CodeAuthRequired,
		Message:      ReasonAuthRequired,
		AuthRequired: true,
	}
}

// errServer — серверная ошибка после успешной авторизации
// (рассинхронизация каталога и хранилища).
func errServer(code, reason string) *DownloadError {
	return &DownloadError{StatusCode: http.StatusInternalServerError, Code: code, Message: reason}
}
