package recovery

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

func Unary(
	ctx context.Context,
	request interface{},
	_ *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (response interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			zapLogger.Error(ctx, "panic recovered in gRPC handler",
				zap.String("panic", fmt.Sprintf("%v", r)),
			)

			err = status.Errorf(codes.Internal, "internal error")
		}
	}()

	return handler(ctx, request)
}

// Run calls task and turns a panic into an error so a background worker survives it.
func Run(ctx context.Context, name string, task func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			zapLogger.Error(ctx, "panic recovered in background task",
				zap.String("task", name),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.ByteString("stack", debug.Stack()),
			)

			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()

	return task(ctx)
}
