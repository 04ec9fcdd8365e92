package utils

import (
	"context"

	"github.com/mmdatafocus/stock_ledger/appctx"
)

var (
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

const SystemUserName = "System"

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

// ActorFromContext returns the user recorded on audit rows.
// Requests without a session act as the System user.
func ActorFromContext(ctx context.Context) (int, string) {
	if ctx == nil {
		return 0, SystemUserName
	}
	userId, _ := GetUserIdFromContext(ctx)
	userName, ok := GetUserNameFromContext(ctx)
	if !ok || userName == "" {
		userName = SystemUserName
	}
	return userId, userName
}
