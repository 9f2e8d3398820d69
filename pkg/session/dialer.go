package session

import (
	"context"
	"time"

	"tokentrackr/pkg/chain"
	"tokentrackr/pkg/config"
	"tokentrackr/pkg/indexer"
	"tokentrackr/pkg/models"
	"tokentrackr/pkg/signer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// Dialer establishes a chain client for each connection mode. Extracted so
// tests can connect without a network.
type Dialer interface {
	DialReadOnly(ctx context.Context, st config.State, address string) (chain.Client, string, error)
	DialEmbedded(ctx context.Context, st config.State, passphrase string) (chain.Client, string, error)
	DialExtension(ctx context.Context, st config.State) (chain.Client, string, error)
}

type realDialer struct{}

func clientOpts(st config.State) []chain.Option {
	opts := []chain.Option{
		chain.WithCallTimeout(time.Duration(st.CallTimeoutSeconds) * time.Second),
	}
	if st.Chain.IndexerAPIKey != "" {
		ix, err := indexer.New(st.Chain.IndexerNetwork, st.Chain.IndexerAPIKey)
		if err != nil {
			log.Warnw("indexer not configured", "err", err)
		} else {
			opts = append(opts, chain.WithBlockSource(ix))
		}
	}
	return opts
}

func (realDialer) DialReadOnly(ctx context.Context, st config.State, address string) (chain.Client, string, error) {
	client, err := chain.Dial(ctx, st.Chain.RPCURL, clientOpts(st)...)
	if err != nil {
		return nil, "", err
	}
	return client, common.HexToAddress(address).Hex(), nil
}

func (realDialer) DialEmbedded(ctx context.Context, st config.State, passphrase string) (chain.Client, string, error) {
	eth, err := ethclient.DialContext(ctx, st.Chain.RPCURL)
	if err != nil {
		return nil, "", errors.Wrap(models.ErrProviderUnavailable, err.Error())
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, "", errors.Wrap(models.ErrProviderUnavailable, err.Error())
	}
	ks, err := signer.OpenKeystore(st.KeystoreDir, passphrase, eth)
	if err != nil {
		eth.Close()
		return nil, "", err
	}
	opts := append(clientOpts(st), chain.WithSigner(ks))
	client := chain.NewFromBackend(eth, chainID, opts...)
	return client, ks.Address().Hex(), nil
}

func (realDialer) DialExtension(ctx context.Context, st config.State) (chain.Client, string, error) {
	endpoint := st.ExtensionRPCURL
	if endpoint == "" {
		endpoint = st.Chain.RPCURL
	}
	wallet, err := signer.ConnectNodeWallet(ctx, endpoint)
	if err != nil {
		return nil, "", err
	}
	opts := append(clientOpts(st), chain.WithSigner(wallet))
	client, err := chain.Dial(ctx, st.Chain.RPCURL, opts...)
	if err != nil {
		wallet.Close()
		return nil, "", err
	}
	return client, wallet.Address().Hex(), nil
}
