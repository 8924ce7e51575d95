package tezos

import (
	"context"
)

// ChainAccessor reads the chain state a submission depends on.
type ChainAccessor interface {
	GetBlockHead(ctx context.Context) (BlockHead, error)
	GetCounter(ctx context.Context, address string) (uint64, error)
	IsManagerKeyRevealed(ctx context.Context, address string) (bool, error)
}

// NextCounter returns the counter the next operation of address must carry.
// The node only advances the counter after an injection is included, so
// this is read fresh for every submission.
func NextCounter(ctx context.Context, chain ChainAccessor, address string) (uint64, error) {
	counter, err := chain.GetCounter(ctx, address)
	if err != nil {
		return 0, &ChainQueryError{Query: "counter", Address: address, Err: err}
	}
	return counter + 1, nil
}
