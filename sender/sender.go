package sender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/metrics"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNoPayload is returned for records without a stored signed payload
var ErrNoPayload = errors.New("tx has no stored signed payload")

// Sender rebroadcasts the stored signed payload of pending records that have not been mined.
// Sending the same signed payload again never replaces the tx.
type Sender struct {
	cfg         Config
	repo        repositoryInterface
	clients     map[uint64]RawSender
	requestChan chan *sendRequest

	// lastSent holds the last broadcast time of the records sent by this process
	lastSentMutex sync.Mutex
	lastSent      map[string]time.Time
}

type sendRequest struct {
	tx *types.TransactionRecord
	// done is closed by the worker once err is set
	done chan struct{}
	err  error
}

// NewSender creates a sender for the records of repo
func NewSender(cfg Config, repo repositoryInterface, clients map[uint64]RawSender) *Sender {
	return &Sender{
		cfg:         cfg,
		repo:        repo,
		clients:     clients,
		requestChan: make(chan *sendRequest, cfg.QueueSize),
		lastSent:    make(map[string]time.Time),
	}
}

// Start starts the workers and the resend loop. It does not block; the sender stops when ctx is done.
func (s *Sender) Start(ctx context.Context) {
	log.Infof("starting %d sender workers", s.cfg.Workers)

	for i := 0; i < int(s.cfg.Workers); i++ {
		go s.startSenderWorker(ctx, i)
	}

	go s.checkTransactionsToResend(ctx)
}

// SendTransaction broadcasts the stored payload of tx and waits for the result
func (s *Sender) SendTransaction(ctx context.Context, tx *types.TransactionRecord) error {
	if len(tx.Options.RawTransaction) == 0 {
		return fmt.Errorf("%w: %s", ErrNoPayload, tx.Tag())
	}

	request := &sendRequest{
		tx:   tx,
		done: make(chan struct{}),
	}

	if !s.enqueueSenderRequest(ctx, request) {
		return ctx.Err()
	}
	// the workers may be gone already when ctx is done
	select {
	case <-request.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if request.err != nil {
		return request.err
	}

	s.markSent(tx.ID, time.Now())
	metrics.TransactionResent(tx.ChainID)

	// records broadcast before the submitting flow could stamp them get their hash and time now
	if tx.SubmittedAt.IsZero() || !tx.HasHash() {
		updated := tx.Copy()
		if updated.SubmittedAt.IsZero() {
			updated.SubmittedAt = time.Now()
		}
		if !updated.HasHash() {
			updated.Hash = updated.Options.SignedTxHash
		}
		err := s.repo.UpdateTransaction(ctx, updated, repository.UpdateOptions{})
		if err != nil && !errors.Is(err, repository.ErrNotPending) {
			log.Errorf("error updating tx %s after resending it, error: %v", tx.Tag(), err)
		}
	}
	return nil
}

func (s *Sender) enqueueSenderRequest(ctx context.Context, request *sendRequest) bool {
	log.Debugf("send request for tx %s added to the queue channel", request.tx.Tag())
	select {
	case s.requestChan <- request:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Sender) startSenderWorker(ctx context.Context, workerNum int) {
	log.Debugf("sender-worker[%03d]: started", workerNum)
	for {
		select {
		case <-ctx.Done():
			log.Debugf("sender-worker[%03d]: stopped", workerNum)
			return
		case request := <-s.requestChan:
			request.err = s.workerProcessRequest(ctx, request, workerNum)
			close(request.done)
		}
	}
}

func (s *Sender) workerProcessRequest(ctx context.Context, request *sendRequest, workerNum int) error {
	client, found := s.clients[request.tx.ChainID]
	if !found {
		return fmt.Errorf("no client for chain %d", request.tx.ChainID)
	}

	log.Debugf("sender-worker[%03d]: sending tx %s", workerNum, request.tx.Tag())
	raw := request.tx.Options.RawTransaction
	_, err := retry.Do(ctx, s.cfg.SendPolicy.Policy(), func(ctx context.Context) (common.Hash, error) {
		if request.tx.IsPrivate() {
			return client.SendPrivateRawTransaction(ctx, raw)
		}
		return client.SendRawTransaction(ctx, raw)
	})
	return err
}

func (s *Sender) checkTransactionsToResend(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ResendTxsCheckInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("sender stopped")
			return
		case <-ticker.C:
			s.resendTransactions(ctx, time.Now())
		}
	}
}

// resendTransactions broadcasts the records due at now
func (s *Sender) resendTransactions(ctx context.Context, now time.Time) {
	txs, err := s.repo.GetPendingTransactions(ctx, 0)
	if err != nil {
		log.Errorf("error loading txs to resend from the repository, error: %v", err)
		return
	}

	due := s.transactionsToResend(txs, now)
	if len(due) > 0 {
		log.Infof("resending %d txs", len(due))
	}

	for _, tx := range due {
		err := s.SendTransaction(ctx, tx)
		if err != nil {
			log.Infof("resending tx %s returns error: %v", tx.Tag(), err)
		} else {
			log.Infof("tx %s resent", tx.Tag())
		}
	}
}

// transactionsToResend filters the pending records whose payload was last broadcast more than
// ResendInterval before now, and forgets the records that are no longer pending
func (s *Sender) transactionsToResend(txs []*types.TransactionRecord, now time.Time) []*types.TransactionRecord {
	s.lastSentMutex.Lock()
	defer s.lastSentMutex.Unlock()

	pending := make(map[string]struct{}, len(txs))
	var due []*types.TransactionRecord
	for _, tx := range txs {
		pending[tx.ID] = struct{}{}
		if len(tx.Options.RawTransaction) == 0 || tx.Receipt != nil {
			continue
		}

		last := tx.AddedAt
		if !tx.SubmittedAt.IsZero() {
			last = tx.SubmittedAt
		}
		if sent, found := s.lastSent[tx.ID]; found && sent.After(last) {
			last = sent
		}
		if now.Sub(last) > s.cfg.ResendInterval.Duration {
			due = append(due, tx)
		}
	}

	for id := range s.lastSent {
		if _, found := pending[id]; !found {
			delete(s.lastSent, id)
		}
	}
	return due
}

func (s *Sender) markSent(id string, at time.Time) {
	s.lastSentMutex.Lock()
	defer s.lastSentMutex.Unlock()
	s.lastSent[id] = at
}
