package ai

import "context"

type Client interface {
	Review(ctx context.Context, activity string) (string, error)
}
