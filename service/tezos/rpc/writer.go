package rpc

import (
	"log/slog"

	"github.com/brojonat/tzwriter/service/metrics"
	"github.com/brojonat/tzwriter/service/tezos"
)

// NewWriter wires a tezos.Writer to the node behind c. With remoteForge the
// node forges and the result is checked against the local decoder;
// otherwise operations are forged locally.
func NewWriter(c *Client, remoteForge bool, m *metrics.Metrics, logger *slog.Logger) *tezos.Writer {
	var forger tezos.Forger = tezos.LocalForger{}
	if remoteForge {
		forger = tezos.NewRemoteValidatingForger(c, logger)
	}
	return tezos.NewWriter(c, c, forger, tezos.NewBuilder(nil, logger), m, logger)
}

// NewAccount builds the software signing account of an encoded secret key.
func NewAccount(secretKey string) (tezos.Account, error) {
	keyStore, err := tezos.KeyStoreFromSecretKey(secretKey)
	if err != nil {
		return tezos.Account{}, err
	}
	signer, err := tezos.NewSoftwareSigner(keyStore)
	if err != nil {
		return tezos.Account{}, err
	}
	return tezos.Account{KeyStore: keyStore, Signer: signer}, nil
}
