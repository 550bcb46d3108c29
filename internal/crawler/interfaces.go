package crawler

import "context"

// Resolver performs one logical fetch, following redirects itself
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*FetchOutcome, error)
}

// Getter performs a plain redirect-following GET
type Getter interface {
	Get(ctx context.Context, rawURL string) (*HTTPResponse, error)
}
