package signer

import (
	"fmt"
	"sync"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/ethereum/go-ethereum/common"
)

// NonceTracker reserves nonces per account and chain, combining the local reservations
// with the mined and pending nonces reported by the node
type NonceTracker struct {
	mutex sync.Mutex
	// last reserved nonce per account and chain
	reserved map[nonceKey]uint64
}

type nonceKey struct {
	account common.Address
	chainID uint64
}

// NewNonceTracker creates an empty tracker
func NewNonceTracker() *NonceTracker {
	return &NonceTracker{reserved: make(map[nonceKey]uint64)}
}

// Acquire reserves the next nonce. minedNonce and pendingNonce are the next nonces reported
// by the node at the latest block and including its pending pool.
func (t *NonceTracker) Acquire(account common.Address, chainID uint64, minedNonce uint64, pendingNonce uint64) (uint64, error) {
	if minedNonce > pendingNonce {
		return 0, fmt.Errorf("%w: mined %d, pending %d", ErrAbnormalNonceState, minedNonce, pendingNonce)
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	key := nonceKey{account: account, chainID: chainID}
	next := pendingNonce
	decision := "remote pending"
	if last, found := t.reserved[key]; found && last+1 > next {
		next = last + 1
		decision = "local reservation"
	}
	t.reserved[key] = next

	log.Debugw("nonce acquired",
		"account", account.Hex(),
		"chainId", chainID,
		"nonce", next,
		"minedNonce", minedNonce,
		"pendingNonce", pendingNonce,
		"decision", decision,
	)
	return next, nil
}

// Release gives back a reserved nonce that was never broadcast. Only the last reservation
// can be released.
func (t *NonceTracker) Release(account common.Address, chainID uint64, nonce uint64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	key := nonceKey{account: account, chainID: chainID}
	last, found := t.reserved[key]
	if !found || last != nonce {
		log.Debugf("nonce %d of %s on chain %d not released, not the last reservation", nonce, account, chainID)
		return
	}
	if nonce == 0 {
		delete(t.reserved, key)
	} else {
		t.reserved[key] = nonce - 1
	}
	log.Debugf("nonce %d of %s on chain %d released", nonce, account, chainID)
}

// Rewind gives back nonce and every later reservation of the account, for a nonce the node
// never received. The next Acquire returns max(nonce, pending nonce of the node). Rewinding
// to a nonce above the last reservation is a no-op.
func (t *NonceTracker) Rewind(account common.Address, chainID uint64, nonce uint64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	key := nonceKey{account: account, chainID: chainID}
	last, found := t.reserved[key]
	if !found || last < nonce {
		return
	}
	if nonce == 0 {
		delete(t.reserved, key)
	} else {
		t.reserved[key] = nonce - 1
	}
	log.Infof("nonce reservations of %s on chain %d rewound from %d to %d", account, chainID, last, nonce)
}
