package timeline

import (
	"fmt"
	"time"
)

// FetchErrorKind классифицирует ошибки получения ленты.
type FetchErrorKind string

const (
	FetchErrorTransport FetchErrorKind = "transport"
	FetchErrorAuth      FetchErrorKind = "auth"
	FetchErrorRateLimit FetchErrorKind = "rate_limit"
	FetchErrorTimeout   FetchErrorKind = "timeout"
	FetchErrorProtocol  FetchErrorKind = "protocol"
)

// FetchError - ошибка клиента ленты. Все виды считаются восстановимыми на уровне цикла опроса:
// тик пропускается, курсор не меняется.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	RetryAt    time.Time // для rate_limit: момент сброса лимита, если известен
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsRetryable сообщает, имеет ли смысл повторять запрос на следующем тике без вмешательства оператора.
// Ошибки авторизации повторяются всё равно, но логируются как требующие внимания.
func (e *FetchError) IsRetryable() bool {
	return e.Kind != FetchErrorAuth
}
