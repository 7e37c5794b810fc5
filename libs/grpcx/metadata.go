package grpcx

import (
	"context"

	"github.com/itaybe6/barber-English-sub002/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Metadata keys mirroring the HTTP X-Request-Id and X-Business-Id headers.
const (
	RequestIDMetadataKey  = "x-request-id"
	BusinessIDMetadataKey = "x-business-id"
)

// UnaryClientContextInterceptor copies the request id and tenant from ctx
// into outgoing metadata.
func UnaryClientContextInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		var kv []string
		if id := httpx.RequestIDFromContext(ctx); id != "" {
			kv = append(kv, RequestIDMetadataKey, id)
		}
		if biz := httpx.BusinessIDFromContext(ctx); biz != "" {
			kv = append(kv, BusinessIDMetadataKey, biz)
		}
		if len(kv) > 0 {
			ctx = metadata.AppendToOutgoingContext(ctx, kv...)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// UnaryServerContextInterceptor restores the request id (minting one when
// absent) and tenant on the server side. The request id is echoed back as a
// response header.
func UnaryServerContextInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		id := first(md, RequestIDMetadataKey)
		if id == "" {
			id = httpx.NewRequestID()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, id))
		ctx = httpx.ContextWithRequestID(ctx, id)
		ctx = httpx.ContextWithBusinessID(ctx, first(md, BusinessIDMetadataKey))
		return handler(ctx, req)
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
