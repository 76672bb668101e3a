package trace

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// ModelKey names the model a gRPC inference call is meant for.
const ModelKey = "x-model"

// UnaryClientInterceptor propagates the trace in ctx plus the target model to
// the inference service and logs each call's latency.
func UnaryClientInterceptor(model string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = injectMetadata(ctx, model)
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		Logger(ctx).Debug("inference rpc", "method", method, "model", model,
			"duration_ms", time.Since(start).Milliseconds(), "error", err)
		return err
	}
}

func injectMetadata(ctx context.Context, model string) context.Context {
	tc, ok := FromContext(ctx)
	if !ok {
		tc = New()
		ctx = WithContext(ctx, tc)
	}

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	} else {
		md = md.Copy()
	}
	for k, v := range tc.ToMap() {
		md.Set(k, v)
	}
	if model != "" {
		md.Set(ModelKey, model)
	}
	return metadata.NewOutgoingContext(ctx, md)
}
