package xrequestid

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

const HeaderKey = "x-request-id"

func Server(
	ctx context.Context,
	request interface{},
	_ *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	requestID := ""

	if meta, found := metadata.FromIncomingContext(ctx); found {
		if values := meta.Get(HeaderKey); len(values) > 0 {
			requestID = values[0]
		}
	}

	return handler(With(ctx, requestID), request)
}

// With attaches requestID to ctx, generating one when it is empty.
func With(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = uuid.New().String()
	}

	return zapLogger.ContextWithTraceID(ctx, requestID)
}

// Ensure keeps an existing request id and generates one otherwise.
func Ensure(ctx context.Context) context.Context {
	if zapLogger.TraceIDFromContext(ctx) != "" {
		return ctx
	}

	return With(ctx, "")
}
