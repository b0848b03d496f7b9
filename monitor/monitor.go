package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/metrics"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
)

// Monitor reconciles pending records against the chain. Every new block of a chain dispatches
// the due records of that chain to the workers, which fetch the receipts and finalize the records.
type Monitor struct {
	cfg         Config
	repo        repositoryInterface
	blocks      blockStreamInterface
	clients     map[uint64]ReceiptClient
	nonces      NonceResyncer
	requestChan chan *monitorRequest
	requestList *monitorRequestList
}

type monitorRequest struct {
	tx        *types.TransactionRecord
	nextCheck time.Time
	// supersededHash is the hash of the record a replacement supersedes, loaded on the first check
	supersededHash *common.Hash
}

func (r *monitorRequest) id() string {
	return r.tx.ID
}

// NewMonitor creates a monitor finalizing the records of repo, checking the receipts through the
// client of each record chain. The nonce of a record expired without receipt is handed back to
// nonces, which may be nil.
func NewMonitor(cfg Config, repo repositoryInterface, blocks blockStreamInterface, clients map[uint64]ReceiptClient, nonces NonceResyncer) *Monitor {
	return &Monitor{
		cfg:         cfg,
		repo:        repo,
		blocks:      blocks,
		clients:     clients,
		nonces:      nonces,
		requestChan: make(chan *monitorRequest, cfg.QueueSize),
		requestList: newMonitorRequestList(),
	}
}

// Start loads the pending records and starts the workers. It returns once the monitor is running;
// the monitor stops when ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	events, unsubscribeEvents := m.repo.Subscribe(int(m.cfg.QueueSize))
	blocks, unsubscribeBlocks := m.blocks.Subscribe(int(m.cfg.QueueSize))

	log.Infof("monitoring pending txs from the repository")
	pending, err := m.repo.GetPendingTransactions(ctx, 0)
	if err != nil {
		unsubscribe(events, unsubscribeEvents)
		unsubscribeBlocks()
		return err
	}
	for _, tx := range pending {
		m.AddTransaction(tx)
	}

	log.Infof("starting %d monitor workers", m.cfg.Workers)
	for i := 0; i < int(m.cfg.Workers); i++ {
		go m.startMonitorWorker(ctx, i)
	}

	go func() {
		defer unsubscribeBlocks()
		defer unsubscribe(events, unsubscribeEvents)
		m.run(ctx, events, blocks)
	}()
	return nil
}

// unsubscribe drains events while unregistering, so a writer blocked on a full channel is released
func unsubscribe(events <-chan repository.Event, unsubscribeEvents func()) {
	go func() {
		for range events {
		}
	}()
	unsubscribeEvents()
}

func (m *Monitor) run(ctx context.Context, events <-chan repository.Event, blocks <-chan types.BlockUpdate) {
	for {
		select {
		case <-ctx.Done():
			log.Infof("monitor stopped")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			m.processEvent(event)
		case update, ok := <-blocks:
			if !ok {
				return
			}
			m.processBlock(ctx, update)
		}
	}
}

func (m *Monitor) processEvent(event repository.Event) {
	switch event.Kind {
	case repository.EventAdded, repository.EventUpdated:
		m.AddTransaction(event.Transaction)
	case repository.EventFinalized:
		if m.requestList.deleteByID(event.Transaction.ID) {
			log.Debugf("tx %s finalized, no longer monitored", event.Transaction.Tag())
		}
	}
	metrics.TrackedTransactions(m.requestList.len())
}

// processBlock dispatches the due requests of the block chain. Repeated or out of order
// blocks only trigger an extra check.
func (m *Monitor) processBlock(ctx context.Context, update types.BlockUpdate) {
	due := m.requestList.popDue(update.ChainID, time.Now())
	if len(due) > 0 {
		log.Debugf("%s: %d txs to check", update, len(due))
	}
	for _, request := range due {
		m.enqueueMonitorRequest(ctx, request)
	}
	metrics.TrackedTransactions(m.requestList.len())
}

// AddTransaction starts monitoring a pending record. A record already monitored gets its
// data refreshed.
func (m *Monitor) AddTransaction(tx *types.TransactionRecord) {
	if tx.Status != types.StatusPending {
		return
	}
	if _, ok := tx.TrackingHash(); !ok {
		log.Debugf("tx %s has no hash yet, not monitored", tx.Tag())
		return
	}
	if request, found := m.requestList.get(tx.ID); found {
		request.tx = tx.Copy()
		return
	}

	request := &monitorRequest{
		tx:        tx.Copy(),
		nextCheck: time.Now().Add(m.cfg.InitialWaitInterval.Duration),
	}
	m.requestList.add(request)
}

func (m *Monitor) enqueueMonitorRequest(ctx context.Context, request *monitorRequest) {
	log.Debugf("monitor request for tx %s added to the queue channel", request.tx.Tag())
	// enqueued in a go func to avoid blocking the block stream when the channel buffer is full
	go func() {
		select {
		case m.requestChan <- request:
		case <-ctx.Done():
		}
	}()
}

func (m *Monitor) startMonitorWorker(ctx context.Context, workerNum int) {
	log.Debugf("monitor-worker[%03d]: started", workerNum)
	for {
		select {
		case <-ctx.Done():
			log.Debugf("monitor-worker[%03d]: stopped", workerNum)
			return
		case request := <-m.requestChan:
			m.processMonitorRequest(ctx, request, workerNum)
		}
	}
}

func (m *Monitor) scheduleRequestRetry(request *monitorRequest, workerNum int) {
	request.nextCheck = time.Now().Add(m.cfg.RetryWaitInterval.Duration)
	log.Debugf("monitor-worker[%03d]: scheduled retry monitor tx %s at %v", workerNum, request.tx.Tag(), request.nextCheck)

	m.requestList.add(request)
}

func (m *Monitor) processMonitorRequest(ctx context.Context, request *monitorRequest, workerNum int) {
	hash, _ := request.tx.TrackingHash()
	client, found := m.clients[request.tx.ChainID]
	if !found {
		log.Errorf("monitor-worker[%03d]: no client for chain %d of tx %s, tx not monitored", workerNum, request.tx.ChainID, request.tx.Tag())
		return
	}

	log.Infof("monitor-worker[%03d]: monitoring tx %s", workerNum, request.tx.Tag())
	receipt, err := client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) && request.tx.ReplacesID != "" {
		receipt, err = m.supersededReceipt(ctx, client, request, workerNum)
	}
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			log.Errorf("monitor-worker[%03d]: error getting receipt for tx %s, error: %v", workerNum, request.tx.Tag(), err)
		} else {
			log.Debugf("monitor-worker[%03d]: receipt for tx %s still not available", workerNum, request.tx.Tag())
		}
		if m.isExpired(request.tx, time.Now()) {
			log.Warnf("monitor-worker[%03d]: tx %s has expired without receipt", workerNum, request.tx.Tag())
			if m.finalize(ctx, request, types.StatusFailed, nil, workerNum) {
				m.resyncNonce(request.tx, workerNum)
			}
			return
		}
		m.scheduleRequestRetry(request, workerNum)
		return
	}

	status := types.StatusConfirmed
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = types.StatusFailed
	}
	m.finalize(ctx, request, status, receipt, workerNum)
}

// supersededReceipt returns the receipt of the record a replacement superseded. Both share the
// nonce, so a mined superseded payload settles the replacement.
func (m *Monitor) supersededReceipt(ctx context.Context, client ReceiptClient, request *monitorRequest, workerNum int) (*ethTypes.Receipt, error) {
	if request.supersededHash == nil {
		old, err := m.repo.GetTransaction(ctx, request.tx.ReplacesID)
		if err != nil {
			return nil, err
		}
		hash, ok := old.TrackingHash()
		if !ok {
			return nil, ethereum.NotFound
		}
		request.supersededHash = &hash
	}

	receipt, err := client.TransactionReceipt(ctx, *request.supersededHash)
	if err != nil {
		return nil, err
	}
	log.Infof("monitor-worker[%03d]: tx %s superseded by tx %s was mined, hash %s", workerNum, request.tx.ReplacesID, request.tx.Tag(), request.supersededHash.Hex())
	return receipt, nil
}

// finalize moves the record to status and returns true when this call did it
func (m *Monitor) finalize(ctx context.Context, request *monitorRequest, status types.Status, receipt *ethTypes.Receipt, workerNum int) bool {
	tx := request.tx.Copy()
	if hash, ok := tx.TrackingHash(); ok && !tx.HasHash() {
		tx.Hash = hash
	}
	if receipt != nil {
		now := time.Now()
		tx.Receipt = types.NewReceipt(receipt, now)
		tx.ConfirmedAt = &now
	}

	err := m.repo.FinalizeTransaction(ctx, tx, status)
	switch {
	case err == nil:
		metrics.TransactionFinalized(tx.ChainID, string(status))
		if receipt != nil {
			log.Infof("monitor-worker[%03d]: receipt for tx %s received, status: %d", workerNum, tx.Tag(), receipt.Status)
		}
		return true
	case errors.Is(err, repository.ErrNotPending), errors.Is(err, repository.ErrNotFound):
		log.Debugf("monitor-worker[%03d]: tx %s already finalized", workerNum, tx.Tag())
	default:
		log.Errorf("monitor-worker[%03d]: error updating status for tx %s, error: %v", workerNum, tx.Tag(), err)
		m.scheduleRequestRetry(request, workerNum)
	}
	return false
}

// resyncNonce hands back the nonce of an expired record, the node never mined it
func (m *Monitor) resyncNonce(tx *types.TransactionRecord, workerNum int) {
	nonce, ok := tx.Nonce()
	if m.nonces == nil || !ok {
		return
	}
	log.Infof("monitor-worker[%03d]: nonce %d of tx %s given back", workerNum, nonce, tx.Tag())
	m.nonces.ResyncNonce(tx.From, tx.ChainID, nonce)
}

// isExpired returns true when the record has been pending for longer than TxLifeTimeMax
func (m *Monitor) isExpired(tx *types.TransactionRecord, now time.Time) bool {
	if m.cfg.TxLifeTimeMax.Duration <= 0 {
		return false
	}
	since := tx.AddedAt
	if !tx.SubmittedAt.IsZero() {
		since = tx.SubmittedAt
	}
	return since.Add(m.cfg.TxLifeTimeMax.Duration).Before(now)
}
