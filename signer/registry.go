package signer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Registry resolves the Signer of an account
type Registry struct {
	signers map[common.Address]Signer
}

// NewRegistry creates an AccountSigner for every key store account. All of them share one
// nonce tracker.
func NewRegistry(keys KeyStore, clients map[uint64]ChainClient) *Registry {
	r := &Registry{signers: make(map[common.Address]Signer)}
	nonces := NewNonceTracker()
	for _, account := range keys.Accounts() {
		r.signers[account] = NewAccountSigner(account, keys, clients, nonces)
	}
	return r
}

// Add registers s, replacing any signer of the same account
func (r *Registry) Add(s Signer) {
	r.signers[s.Address()] = s
}

// Get returns the signer of address
func (r *Registry) Get(address common.Address) (Signer, error) {
	s, found := r.signers[address]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, address)
	}
	return s, nil
}

// ResyncNonce rewinds the nonce reservations of account on a chain. Unknown accounts are ignored.
func (r *Registry) ResyncNonce(account common.Address, chainID uint64, nonce uint64) {
	if s, found := r.signers[account]; found {
		s.ResyncNonce(chainID, nonce)
	}
}
