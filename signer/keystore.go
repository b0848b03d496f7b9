package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// LocalKeyStore signs with private keys held in memory
type LocalKeyStore struct {
	keys map[common.Address]*ecdsa.PrivateKey
}

// NewLocalKeyStore loads the configured hex keys and encrypted key files
func NewLocalKeyStore(cfg Config) (*LocalKeyStore, error) {
	ks := &LocalKeyStore{keys: make(map[common.Address]*ecdsa.PrivateKey)}

	for i, hexKey := range cfg.PrivateKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key #%d: %w", i, err)
		}
		ks.AddKey(key)
	}

	for _, keyFile := range cfg.KeyFiles {
		keyJSON, err := os.ReadFile(keyFile.Path)
		if err != nil {
			return nil, fmt.Errorf("error reading key file %s: %w", keyFile.Path, err)
		}
		key, err := keystore.DecryptKey(keyJSON, keyFile.Password)
		if err != nil {
			return nil, fmt.Errorf("error decrypting key file %s: %w", keyFile.Path, err)
		}
		ks.AddKey(key.PrivateKey)
	}

	log.Infof("loaded %d accounts", len(ks.keys))
	return ks, nil
}

// AddKey adds a private key and returns its address
func (ks *LocalKeyStore) AddKey(key *ecdsa.PrivateKey) common.Address {
	address := crypto.PubkeyToAddress(key.PublicKey)
	ks.keys[address] = key
	return address
}

// Accounts returns the loaded accounts sorted by address
func (ks *LocalKeyStore) Accounts() []common.Address {
	accounts := maps.Keys(ks.keys)
	slices.SortFunc(accounts, func(a, b common.Address) int {
		return a.Cmp(b)
	})
	return accounts
}

func (ks *LocalKeyStore) key(account common.Address) (*ecdsa.PrivateKey, error) {
	key, found := ks.keys[account]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	return key, nil
}

// SignTransaction signs tx for chainID
func (ks *LocalKeyStore) SignTransaction(ctx context.Context, account common.Address, tx *ethTypes.Transaction, chainID *big.Int) (*ethTypes.Transaction, error) {
	key, err := ks.key(account)
	if err != nil {
		return nil, err
	}
	return ethTypes.SignTx(tx, ethTypes.LatestSignerForChainID(chainID), key)
}

// SignTypedData signs the EIP-712 hash of typedData
func (ks *LocalKeyStore) SignTypedData(ctx context.Context, account common.Address, typedData apitypes.TypedData) ([]byte, error) {
	key, err := ks.key(account)
	if err != nil {
		return nil, err
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, err
	}
	return signHash(hash, key)
}

// SignMessage signs the EIP-191 personal message hash of message
func (ks *LocalKeyStore) SignMessage(ctx context.Context, account common.Address, message []byte) ([]byte, error) {
	key, err := ks.key(account)
	if err != nil {
		return nil, err
	}
	return signHash(accounts.TextHash(message), key)
}

// signHash returns a [R || S || V] signature with V in {27, 28}
func signHash(hash []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
