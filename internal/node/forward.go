package node

import (
	"context"
	"strconv"

	"github.com/rs/xid"
	"google.golang.org/grpc/metadata"
)

const (
	forwardDepthMetadataKey = "x-forward-depth"
	lookupHopsMetadataKey   = "x-lookup-hops"
	requestIDMetadataKey    = "x-request-id"
)

type ctxKey int

const (
	forwardDepthKey ctxKey = iota
	lookupHopsKey
	requestIDKey
)

// ForwardDepth is the number of stale-responsibility forwards the request
// carried by ctx has already taken.
func ForwardDepth(ctx context.Context) int {
	d, _ := ctx.Value(forwardDepthKey).(int)
	return d
}

func withForwardDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, forwardDepthKey, depth)
}

// LookupHops is the number of routing hops a successor lookup carried by
// ctx has already taken. It is counted apart from ForwardDepth.
func LookupHops(ctx context.Context) int {
	h, _ := ctx.Value(lookupHopsKey).(int)
	return h
}

func withLookupHops(ctx context.Context, hops int) context.Context {
	return context.WithValue(ctx, lookupHopsKey, hops)
}

// RequestID returns the id attached to ctx, or "" when there is none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRequestID attaches id to ctx. An empty id gets a fresh xid.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = xid.New().String()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// outgoingMetadata copies the hop counters and request id onto the
// outgoing gRPC metadata.
func outgoingMetadata(ctx context.Context) context.Context {
	id := RequestID(ctx)
	if id == "" {
		id = xid.New().String()
	}
	return metadata.AppendToOutgoingContext(ctx,
		requestIDMetadataKey, id,
		forwardDepthMetadataKey, strconv.Itoa(ForwardDepth(ctx)),
		lookupHopsMetadataKey, strconv.Itoa(LookupHops(ctx)),
	)
}

// incomingContext restores what outgoingMetadata sent.
func incomingContext(ctx context.Context) context.Context {
	md, _ := metadata.FromIncomingContext(ctx)

	var id string
	if v := md.Get(requestIDMetadataKey); len(v) > 0 {
		id = v[0]
	}
	ctx = WithRequestID(ctx, id)

	if v := md.Get(forwardDepthMetadataKey); len(v) > 0 {
		if d, err := strconv.Atoi(v[0]); err == nil && d > 0 {
			ctx = withForwardDepth(ctx, d)
		}
	}
	if v := md.Get(lookupHopsMetadataKey); len(v) > 0 {
		if h, err := strconv.Atoi(v[0]); err == nil && h > 0 {
			ctx = withLookupHops(ctx, h)
		}
	}
	return ctx
}
