package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/careslot/booking/internal/scheduling"
)

const (
	actorIDHeader   = "X-Actor-Id"
	actorRoleHeader = "X-Actor-Role"
)

const actorKey contextKey = "actor"

// ActorMiddleware extracts the verified (actorId, role) pair the upstream
// identity layer attaches to every request. Requests without a usable pair
// never reach a handler.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(actorIDHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-Id must be a valid UUID")
			return
		}

		role, ok := scheduling.ParseRole(r.Header.Get(actorRoleHeader))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-Role must be practitioner or requester")
			return
		}

		actor := scheduling.Actor{ID: id, Role: role}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext retrieves the verified actor placed by ActorMiddleware.
func ActorFromContext(ctx context.Context) (scheduling.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(scheduling.Actor)
	return actor, ok
}
