package controllers

import (
	"net/http"

	"github.com/koipond/koipond-backend/api/middleware"
	internalorders "github.com/koipond/koipond-backend/internal/orders"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
)

func requireIdentity(r *http.Request) (middleware.Identity, error) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return middleware.Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return id, nil
}

func actorFrom(id middleware.Identity) internalorders.Actor {
	return internalorders.Actor{UserID: id.UserID, Role: id.Role}
}
