package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/koipond/koipond-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
	ctxShopID contextKey = "shop_id"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID uuid.UUID
	Role   enums.UserRole
	ShopID *uuid.UUID
}

// WithIdentity stores the caller in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, id.UserID)
	ctx = context.WithValue(ctx, ctxRole, id.Role)
	if id.ShopID != nil {
		ctx = context.WithValue(ctx, ctxShopID, *id.ShopID)
	}
	return ctx
}

// IdentityFromContext returns the caller, or false for anonymous requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	userID, ok := ctx.Value(ctxUserID).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return Identity{}, false
	}
	id := Identity{UserID: userID}
	id.Role, _ = ctx.Value(ctxRole).(enums.UserRole)
	if shopID, ok := ctx.Value(ctxShopID).(uuid.UUID); ok {
		id.ShopID = &shopID
	}
	return id, true
}

func UserIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.UserRole {
	if ctx == nil {
		return ""
	}
	role, _ := ctx.Value(ctxRole).(enums.UserRole)
	return role
}
