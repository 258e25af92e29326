//go:generate go run go.uber.org/mock/mockgen -source=querier.go -destination=mocks/mock_querier.go -package=mocks
package bot

import "context"

// Querier issues a single text-generation request for prompt.
// Implementations must not retry; any error is wrapped in ErrBotQuery.
type Querier interface {
	Query(ctx context.Context, prompt string) (string, error)
}
