// Пакет model — доменные модели Linkgate.
// Link — эфемерный контекст авторизации одной попытки скачивания,
// TokenRecord — его долговременный двойник в таблице download_tokens.
package model

import "time"

// TokenRecord — строка таблицы download_tokens.
// Все поля, кроме TotalDownloads и LastDownloaded, задаются при создании
// ссылки (вне этого сервиса). Счётчики мутирует только Usage Tracker.
type TokenRecord struct {
	// Token — опаковый идентификатор ссылки (уникальный, неизменяемый)
	Token string
	// AssetID — UUID целевого файла в каталоге assets
	AssetID string
	// Enabled — выключенные ссылки никогда не авторизуются
	Enabled bool
	// Expires — абсолютный срок действия в виде строки (RFC 3339).
	// nil — бессрочная ссылка. Непарсируемое значение тоже трактуется
	// как бессрочное (fail-open, намеренно).
	Expires *string
	// MaxDownloads — лимит скачиваний; 0 — без лимита
	MaxDownloads int
	// TotalDownloads — счётчик успешных скачиваний (монотонный)
	TotalDownloads int
	// RequireUser — raw JSONB правила доступа (см. ParseRequirement)
	RequireUser []byte
	// Headers — raw JSONB дополнительных заголовков ответа
	Headers []byte
	// LastDownloaded — время последнего успешного скачивания
	LastDownloaded *time.Time
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Link — контекст авторизации, собираемый заново для каждого запроса.
// Никогда не кэшируется между запросами: счётчики и флаг enabled
// должны быть свежими на момент проверки.
type Link struct {
	// Token — опаковый идентификатор ссылки
	Token string
	// AssetID — UUID целевого файла
	AssetID string
	// Enabled — флаг включённости ссылки
	Enabled bool
	// ExpiresAt — распарсенный срок действия в UTC.
	// nil — ссылка бессрочна (срок отсутствует или не распарсился).
	ExpiresAt *time.Time
	// MaxDownloads — лимит скачиваний; 0 — без лимита
	MaxDownloads int
	// TotalDownloads — текущее значение счётчика скачиваний
	TotalDownloads int
	// Require — правило доступа (закрытый tagged-вариант)
	Require Requirement
	// Headers — дополнительные заголовки ответа; перекрывают
	// одноимённые заголовки по умолчанию
	Headers map[string]string
}

// Caller — идентичность вызывающего, извлечённая boundary-слоем из JWT.
// Zero value — анонимный вызывающий.
type Caller struct {
	// Authenticated — true, если запрос пришёл с валидным токеном
	Authenticated bool
	// UserID — числовой идентификатор пользователя (claim uid).
	// nil — аутентифицирован без числового id либо аноним.
	UserID *int64
	// Groups — группы пользователя (claim groups), может быть пустым
	Groups []string
}

// InGroup проверяет членство вызывающего в группе.
func (c Caller) InGroup(group string) bool {
	for _, g := range c.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// AuditEntry — строка append-only журнала download_audit.
// Одна запись на каждую попытку скачивания, независимо от исхода.
type AuditEntry struct {
	// ID — UUID записи
	ID string
	// Token — токен ссылки
	Token string
	// AssetID — UUID целевого файла
	AssetID string
	// UserID — числовой id вызывающего (nil для анонимов)
	UserID *int64
	// ClientAddr — сетевой адрес клиента
	ClientAddr string
	// Success — итог попытки
	Success bool
	// ErrorText — причина отказа (пустая при успехе)
	ErrorText string
	// CreatedAt — время записи
	CreatedAt time.Time
}
