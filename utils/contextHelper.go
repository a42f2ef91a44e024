package utils

import (
	"context"

	"github.com/mmdatafocus/stock_backend/appctx"
)

var (
	ContextKeyCorrelationId  = appctx.ContextKeyCorrelationId
	ContextKeyRequestPath    = appctx.ContextKeyRequestPath
	ContextKeyIdempotencyKey = appctx.ContextKeyIdempotencyKey
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetRequestPathFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRequestPath)
}

func SetRequestPathInContext(ctx context.Context, path string) context.Context {
	return appctx.Set(ctx, ContextKeyRequestPath, path)
}

func GetIdempotencyKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := appctx.GetString(ctx, ContextKeyIdempotencyKey)
	return key, ok && key != ""
}

func SetIdempotencyKeyInContext(ctx context.Context, key string) context.Context {
	return appctx.Set(ctx, ContextKeyIdempotencyKey, key)
}
