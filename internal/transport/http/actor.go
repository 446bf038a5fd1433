package http

import (
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// Заголовки, которые выставляет шлюз идентификации перед сервисом.
const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// actorFrom читает актора из заголовков. Неизвестная роль даёт анонимного актора,
// и операция вернёт 401.
func actorFrom(r *http.Request) domain.Actor {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	role, err := domain.ParseRole(r.Header.Get(HeaderUserRole))
	if err != nil {
		return domain.Actor{ID: id}
	}
	return domain.Actor{ID: id, Role: role}
}
