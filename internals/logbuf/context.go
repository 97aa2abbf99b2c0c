package logbuf

import "context"

type contextKey struct{}

func WithContext(ctx context.Context, pipeline *Pipeline) context.Context {
	return context.WithValue(ctx, contextKey{}, pipeline)
}

func FromContext(ctx context.Context) *Pipeline {
	pipeline, ok := ctx.Value(contextKey{}).(*Pipeline)
	if !ok {
		return nil
	}
	return pipeline
}
