package executor

import (
	"context"
	"fmt"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/signer"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
)

// BroadcastError is returned when the broadcast fails after the record was stored. The
// record stays pending under ID until the reconciliation tracker settles it.
type BroadcastError struct {
	ID  string
	Err error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("tx %s recorded as pending, broadcast failed: %v", e.ID, e.Err)
}

func (e *BroadcastError) Unwrap() error {
	return e.Err
}

type submission struct {
	signer signer.Signer
	record *types.TransactionRecord
	signed *signer.SignedTransaction
	// ownsNonce is set when the nonce was reserved by this submission and can be given
	// back if the record is never stored
	ownsNonce bool
}

// executionStrategy records a signed transaction as pending and broadcasts it. Both
// strategies share the result and error contract.
type executionStrategy interface {
	name() string
	submit(ctx context.Context, sub *submission) (*ExecuteResult, error)
}

// addPending stores the record, giving back the nonce if it was rejected
func (e *Executor) addPending(ctx context.Context, sub *submission) error {
	if err := e.repo.AddTransaction(ctx, sub.record); err != nil {
		if nonce, ok := sub.record.Nonce(); ok && sub.ownsNonce {
			sub.signer.ReleaseNonce(sub.record.ChainID, nonce)
		}
		return err
	}
	return nil
}

func (e *Executor) broadcast(ctx context.Context, sub *submission) (*signer.SendResult, error) {
	res, err := e.send(ctx, sub.signer, sub.signed, sub.record.IsPrivate())
	if err != nil {
		log.Warnf("tx %s stays pending, broadcast failed, error: %v", sub.record.Tag(), err)
		return nil, &BroadcastError{ID: sub.record.ID, Err: err}
	}
	return res, nil
}

// legacyStrategy stores the record without hash and attaches it once the broadcast succeeded
type legacyStrategy struct {
	e *Executor
}

func (s *legacyStrategy) name() string {
	return "legacy"
}

func (s *legacyStrategy) submit(ctx context.Context, sub *submission) (*ExecuteResult, error) {
	if err := s.e.addPending(ctx, sub); err != nil {
		return nil, err
	}

	res, err := s.e.broadcast(ctx, sub)
	if err != nil {
		return nil, err
	}

	sub.record.Hash = res.Hash
	sub.record.SubmittedAt = res.SubmittedAt
	if err := s.e.repo.UpdateTransaction(ctx, sub.record, repository.UpdateOptions{}); err != nil {
		log.Errorf("error attaching hash to tx %s, error: %v", sub.record.Tag(), err)
	}
	log.Infof("tx %s submitted", sub.record.Tag())
	return &ExecuteResult{ID: sub.record.ID, TransactionHash: res.Hash}, nil
}

// v2Strategy stores the hash and the signed payload before broadcasting, so an interrupted
// submission can be rebroadcast by the resender
type v2Strategy struct {
	e *Executor
}

func (s *v2Strategy) name() string {
	return "v2"
}

func (s *v2Strategy) submit(ctx context.Context, sub *submission) (*ExecuteResult, error) {
	sub.record.Hash = sub.signed.Hash
	sub.record.Options.RawTransaction = append([]byte(nil), sub.signed.Raw...)
	if err := s.e.addPending(ctx, sub); err != nil {
		return nil, err
	}

	res, err := s.e.broadcast(ctx, sub)
	if err != nil {
		return nil, err
	}

	sub.record.SubmittedAt = res.SubmittedAt
	if err := s.e.repo.UpdateTransaction(ctx, sub.record, repository.UpdateOptions{}); err != nil {
		log.Errorf("error stamping submission of tx %s, error: %v", sub.record.Tag(), err)
	}
	log.Infof("tx %s submitted", sub.record.Tag())
	return &ExecuteResult{ID: sub.record.ID, TransactionHash: sub.signed.Hash}, nil
}
