package tezos

import (
	"context"
)

// BundledRevealGasLimit is the gas limit of a reveal prepended by
// BundleReveal.
const BundledRevealGasLimit = 10600

// BundleReveal prepends a reveal to ops when the manager key of keyStore is
// not yet on chain. currentCounter is the counter the chain reports for the
// account, not the next one. The reveal takes currentCounter+1 and ops are
// renumbered from currentCounter+2 in their original order. The reveal is
// free: its fee is paid by the operations that follow.
func BundleReveal(ctx context.Context, chain ChainAccessor, keyStore KeyStore, currentCounter uint64, ops []Stackable) ([]Stackable, error) {
	revealed, err := chain.IsManagerKeyRevealed(ctx, keyStore.PublicKeyHash)
	if err != nil {
		return nil, &ChainQueryError{Query: "manager_key", Address: keyStore.PublicKeyHash, Err: err}
	}
	if revealed {
		return ops, nil
	}

	bundle := make([]Stackable, 0, len(ops)+1)
	bundle = append(bundle, Reveal{
		Source:       keyStore.PublicKeyHash,
		PublicKey:    keyStore.PublicKey,
		Fee:          0,
		Counter:      currentCounter + 1,
		GasLimit:     BundledRevealGasLimit,
		StorageLimit: 0,
	})
	for i, op := range ops {
		bundle = append(bundle, op.WithCounter(currentCounter+2+uint64(i)))
	}
	return bundle, nil
}
