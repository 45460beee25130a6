// requirement.go — закрытый tagged-вариант правила доступа require_user.
// Заменяет динамическую проверку типов JSONB-значения на типизированный
// разбор с единственной точкой интерпретации.
package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// RequirementKind — тип правила доступа.
type RequirementKind int

const (
	// RequireAnyUser — правило отсутствует: доступ всем, включая анонимов.
	RequireAnyUser RequirementKind = iota
	// RequireAuthenticated — маркер "*": любой аутентифицированный вызывающий.
	RequireAuthenticated
	// RequireExactUser — конкретный числовой id пользователя.
	RequireExactUser
	// RequireExactGroup — конкретная группа.
	RequireExactGroup
	// RequireAnyOf — список записей user/group, достаточно совпадения любой.
	RequireAnyOf
	// RequireInvalid — нераспознанная форма значения. Всегда отказ
	// (fail-closed — в отличие от fail-open разбора срока действия).
	RequireInvalid
)

// Requirement — правило доступа ссылки.
// Для RequireExactUser заполнен UserID, для RequireExactGroup — Group,
// для RequireAnyOf — Entries (только Exact-варианты).
type Requirement struct {
	Kind    RequirementKind
	UserID  int64
	Group   string
	Entries []Requirement
}

// ParseRequirement разбирает raw JSONB-значение столбца require_user.
//
//	null / отсутствие  → RequireAnyUser
//	"*"                → RequireAuthenticated
//	число / "42"       → RequireExactUser (числовые строки — тоже id)
//	строка             → RequireExactGroup
//	массив             → RequireAnyOf с поэлементными правилами числового разбора
//
// Любая иная форма (объект, дробное число, непарсируемый JSON, элемент
// массива недопустимой формы) даёт RequireInvalid.
func ParseRequirement(raw []byte) Requirement {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Requirement{Kind: RequireAnyUser}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return Requirement{Kind: RequireInvalid}
	}

	switch v := value.(type) {
	case string:
		return parseScalar(v)
	case json.Number:
		return parseNumber(v)
	case []any:
		entries := make([]Requirement, 0, len(v))
		for _, item := range v {
			entry, ok := parseEntry(item)
			if !ok {
				return Requirement{Kind: RequireInvalid}
			}
			entries = append(entries, entry)
		}
		return Requirement{Kind: RequireAnyOf, Entries: entries}
	default:
		return Requirement{Kind: RequireInvalid}
	}
}

// parseScalar разбирает строковое правило: "*", числовая строка или группа.
func parseScalar(s string) Requirement {
	if s == "*" {
		return Requirement{Kind: RequireAuthenticated}
	}
	if id, ok := parseUserID(s); ok {
		return Requirement{Kind: RequireExactUser, UserID: id}
	}
	return Requirement{Kind: RequireExactGroup, Group: s}
}

// parseNumber разбирает числовое правило. Дробные числа — невалидная форма.
func parseNumber(n json.Number) Requirement {
	id, err := n.Int64()
	if err != nil {
		return Requirement{Kind: RequireInvalid}
	}
	return Requirement{Kind: RequireExactUser, UserID: id}
}

// parseEntry разбирает элемент списка: число → user, строка → группа.
// Маркер "*" внутри списка и вложенные списки — недопустимая форма.
func parseEntry(item any) (Requirement, bool) {
	switch v := item.(type) {
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return Requirement{}, false
		}
		return Requirement{Kind: RequireExactUser, UserID: id}, true
	case string:
		if v == "*" {
			return Requirement{}, false
		}
		if id, ok := parseUserID(v); ok {
			return Requirement{Kind: RequireExactUser, UserID: id}, true
		}
		return Requirement{Kind: RequireExactGroup, Group: v}, true
	default:
		return Requirement{}, false
	}
}

// parseUserID распознаёт строку из одних цифр как числовой id пользователя.
// Цифровая строка, не помещающаяся в int64, числовым id не считается.
func parseUserID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Matches проверяет, удовлетворяет ли вызывающий правилу.
// Чистая функция: зависит только от правила и идентичности.
func (r Requirement) Matches(c Caller) bool {
	switch r.Kind {
	case RequireAnyUser:
		return true
	case RequireAuthenticated:
		return c.Authenticated
	case RequireExactUser:
		return c.UserID != nil && *c.UserID == r.UserID
	case RequireExactGroup:
		return c.InGroup(r.Group)
	case RequireAnyOf:
		for _, entry := range r.Entries {
			if entry.Matches(c) {
				return true
			}
		}
		return false
	default:
		// RequireInvalid и любые будущие формы — отказ
		return false
	}
}
