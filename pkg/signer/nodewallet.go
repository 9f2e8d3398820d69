package signer

import (
	"context"
	"strings"

	"tokentrackr/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// NodeWallet is the external-wallet provider: signing is delegated to a
// wallet-backed RPC endpoint (an injected/unlocked account on the node) via
// eth_sendTransaction. The dashboard never sees key material.
type NodeWallet struct {
	client  *rpc.Client
	account common.Address
}

// ConnectNodeWallet requests account access from the wallet endpoint. Fails
// with NoWalletDetected when the endpoint is unreachable or exposes no
// accounts, and UserRejected when the wallet declines the request.
func ConnectNodeWallet(ctx context.Context, endpoint string) (*NodeWallet, error) {
	if endpoint == "" {
		return nil, errors.Wrap(models.ErrNoWalletDetected, "no wallet endpoint configured")
	}
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrap(models.ErrNoWalletDetected, err.Error())
	}

	var accts []common.Address
	if err := client.CallContext(ctx, &accts, "eth_accounts"); err != nil {
		client.Close()
		if isRejection(err) {
			return nil, errors.Wrap(models.ErrUserRejected, err.Error())
		}
		return nil, errors.Wrap(models.ErrNoWalletDetected, err.Error())
	}
	if len(accts) == 0 {
		client.Close()
		return nil, errors.Wrap(models.ErrNoWalletDetected, "wallet exposes no accounts")
	}
	log.Infow("wallet connected", "address", accts[0].Hex())
	return &NodeWallet{client: client, account: accts[0]}, nil
}

func (w *NodeWallet) Address() common.Address {
	return w.account
}

func (w *NodeWallet) SubmitTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	arg := map[string]interface{}{
		"from": req.From,
	}
	if req.To != nil {
		arg["to"] = *req.To
	}
	if req.Value != nil {
		arg["value"] = (*hexutil.Big)(req.Value)
	}
	if len(req.Data) > 0 {
		arg["data"] = hexutil.Bytes(req.Data)
	}
	if req.GasLimit > 0 {
		arg["gas"] = hexutil.Uint64(req.GasLimit)
	}

	var hash common.Hash
	if err := w.client.CallContext(ctx, &hash, "eth_sendTransaction", arg); err != nil {
		if isRejection(err) {
			return common.Hash{}, errors.Wrap(models.ErrUserRejected, err.Error())
		}
		return common.Hash{}, err
	}
	return hash, nil
}

func (w *NodeWallet) Close() {
	w.client.Close()
}

func isRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "denied") || strings.Contains(msg, "rejected")
}
