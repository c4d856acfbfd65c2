package reranker

import "context"

type queryContextKey struct{}

// ContextWithQuery stashes the raw query string so text-based rerankers can
// read it without widening the Rank signature.
func ContextWithQuery(ctx context.Context, query string) context.Context {
	return context.WithValue(ctx, queryContextKey{}, query)
}

// QueryFromContext extracts the query stored by ContextWithQuery.
func QueryFromContext(ctx context.Context) (string, bool) {
	query, ok := ctx.Value(queryContextKey{}).(string)
	return query, ok
}
