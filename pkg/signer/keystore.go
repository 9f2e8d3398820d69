package signer

import (
	"context"

	"tokentrackr/pkg/models"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var log = logging.Logger("signer")

// KeystoreSigner is the embedded signer: keys live in a local go-ethereum
// keystore and transactions are signed in-process, then broadcast through the
// shared RPC client.
type KeystoreSigner struct {
	ks      *keystore.KeyStore
	account accounts.Account
	eth     *ethclient.Client
}

// OpenKeystore unlocks the first account of the keystore at dir with the
// given passphrase. An empty passphrase means the user dismissed the unlock
// prompt. The ethclient is shared with the chain client and not closed here.
func OpenKeystore(dir, passphrase string, eth *ethclient.Client) (*KeystoreSigner, error) {
	if dir == "" {
		return nil, errors.Wrap(models.ErrProviderUnavailable, "no keystore directory configured")
	}
	if passphrase == "" {
		return nil, models.ErrAuthCancelled
	}
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	accts := ks.Accounts()
	if len(accts) == 0 {
		return nil, errors.Wrapf(models.ErrProviderUnavailable, "keystore %s holds no accounts", dir)
	}
	account := accts[0]
	if err := ks.Unlock(account, passphrase); err != nil {
		return nil, errors.Wrap(models.ErrAuthCancelled, err.Error())
	}
	log.Infow("keystore unlocked", "address", account.Address.Hex())
	return &KeystoreSigner{ks: ks, account: account, eth: eth}, nil
}

func (s *KeystoreSigner) Address() common.Address {
	return s.account.Address
}

func (s *KeystoreSigner) SubmitTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    req.Nonce,
		To:       req.To,
		Value:    req.Value,
		Gas:      req.GasLimit,
		GasPrice: req.GasPrice,
		Data:     req.Data,
	})
	signed, err := s.ks.SignTx(s.account, tx, req.ChainID)
	if err != nil {
		return common.Hash{}, errors.Wrap(models.ErrUserRejected, err.Error())
	}
	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

func (s *KeystoreSigner) Close() {
	_ = s.ks.Lock(s.account.Address)
}
