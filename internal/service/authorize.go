// authorize.go — движок авторизации ссылки.
// Чистая функция над (Link, Caller, now): ни I/O, ни мутаций.
// Правила проверяются в фиксированном порядке, причина отказа —
// первое нарушенное правило.
package service

import (
	"time"

	"github.com/bigkaa/linkgate/internal/domain/model"
)

// Decision — результат авторизации попытки скачивания.
type Decision struct {
	// Allowed — true, если все правила пройдены
	Allowed bool
	// AuthRequired — отказ из-за отсутствия аутентификации:
	// после логина вызывающий может получить доступ
	AuthRequired bool
	// Reason — контрактная причина первого нарушенного правила
	// (пустая при Allowed)
	Reason string
}

// Authorize проверяет правила доступа ссылки в фиксированном порядке:
//
//	enabled → срок действия → квота → правило доступа.
//
// Порядок значим: выключенная просроченная ссылка сообщает
// «link disabled», а не «link expired».
//
// Сравнение срока действия выполняется в UTC; ссылка, истекающая
// ровно в момент now, уже просрочена.
func Authorize(link *model.Link, caller model.Caller, now time.Time) Decision {
	if !link.Enabled {
		return Decision{Reason: ReasonLinkDisabled}
	}

	if link.ExpiresAt != nil && !now.UTC().Before(*link.ExpiresAt) {
		return Decision{Reason: ReasonLinkExpired}
	}

	// MaxDownloads == 0 — лимит не установлен
	if link.MaxDownloads > 0 && link.TotalDownloads >= link.MaxDownloads {
		return Decision{Reason: ReasonQuotaExceeded}
	}

	if !link.Require.Matches(caller) {
		// Аноним мог бы пройти правило после логина — кроме случая
		// некорректного правила, которое не пропускает никого (fail-closed).
		if !caller.Authenticated && link.Require.Kind != model.RequireInvalid {
			return Decision{AuthRequired: true, Reason: ReasonAuthRequired}
		}
		return Decision{Reason: ReasonUserNotAuthorized}
	}

	return Decision{Allowed: true}
}
