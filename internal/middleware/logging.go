package middleware

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor returns a Connect interceptor that writes one access log
// line per call. Install it before RequireAuth so rejected calls are logged
// too; the client name is filled in once authentication succeeds.
func LoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			slot := &clientSlot{name: GetClient(ctx)}

			resp, err := next(context.WithValue(ctx, slotKey, slot), req)

			attrs := []slog.Attr{
				slog.String("procedure", req.Spec().Procedure),
				slog.String("client", slot.name),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			}
			if err == nil {
				logger.LogAttrs(ctx, slog.LevelInfo, "RPC ok", attrs...)
				return resp, nil
			}

			code := connect.CodeOf(err)
			attrs = append(attrs,
				slog.String("code", code.String()),
				slog.String("peer", req.Peer().Addr),
				slog.Any("error", err),
			)
			logger.LogAttrs(ctx, levelFor(code), "RPC failed", attrs...)
			return resp, err
		}
	}
}

// levelFor logs caller mistakes at warn and server-side failures at error.
func levelFor(code connect.Code) slog.Level {
	switch code {
	case connect.CodeUnauthenticated, connect.CodePermissionDenied,
		connect.CodeInvalidArgument, connect.CodeFailedPrecondition,
		connect.CodeCanceled, connect.CodeNotFound:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
