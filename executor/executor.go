package executor

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/0xPolygonHermez/zkevm-tx-engine/features"
	"github.com/0xPolygonHermez/zkevm-tx-engine/gas"
	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/metrics"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/signer"
	"github.com/0xPolygonHermez/zkevm-tx-engine/telemetry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	flowExecute = "execute"
	flowApprove = "approve"
	flowWrap    = "wrap"
	flowSpeedUp = "speed_up"
)

// ExecuteParams describes a transaction to submit
type ExecuteParams struct {
	// ID of the record. Generated when empty
	ID       string
	ChainID  uint64
	From     common.Address
	To       *common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
	// Fees overrides the suggested fees when set
	Fees     types.GasFeeParameters
	Private  bool
	TypeInfo types.TypeInfo
}

func (p ExecuteParams) validate() error {
	switch {
	case p.ChainID == 0:
		return fmt.Errorf("%w: missing chain id", ErrInvalidParams)
	case p.From == (common.Address{}):
		return fmt.Errorf("%w: missing from address", ErrInvalidParams)
	case p.Value != nil && p.Value.Sign() < 0:
		return fmt.Errorf("%w: negative value", ErrInvalidParams)
	}
	return nil
}

func (p ExecuteParams) request() types.TransactionRequest {
	req := types.TransactionRequest{
		ChainID:          p.ChainID,
		From:             p.From,
		Data:             common.CopyBytes(p.Data),
		GasLimit:         p.GasLimit,
		GasFeeParameters: p.Fees.Copy(),
	}
	if p.To != nil {
		to := *p.To
		req.To = &to
	}
	if p.Value != nil {
		req.Value = new(big.Int).Set(p.Value)
	}
	return req
}

// ExecuteResult is the outcome of a submitted transaction
type ExecuteResult struct {
	ID              string      `json:"id"`
	TransactionHash common.Hash `json:"transactionHash"`
}

// ApproveParams describes an ERC-20 allowance change
type ApproveParams struct {
	ID      string
	ChainID uint64
	From    common.Address
	Token   common.Address
	Spender common.Address
	Amount  *big.Int
	// GasLimit is a decimal or 0x prefixed hex string. Empty means estimate, zero means
	// the approval is not needed
	GasLimit string
	Fees     types.GasFeeParameters
	Private  bool
}

// WrapParams describes a wrap or an unwrap of the chain native currency
type WrapParams struct {
	ID       string
	From     common.Address
	Input    Currency
	Output   Currency
	Amount   *big.Int
	GasLimit uint64
	Fees     types.GasFeeParameters
	Private  bool
}

// Executor composes the signer and the repository into the transaction flows
type Executor struct {
	cfg      Config
	repo     repositoryInterface
	signers  signerRegistryInterface
	features features.Provider
	wrapped  WrappedNativeTokens

	legacy executionStrategy
	v2     executionStrategy

	privateMutex sync.Mutex
	privateLocks map[string]*sync.Mutex
}

// NewExecutor creates the executor. A nil wrapped table uses the built-in one.
func NewExecutor(cfg Config, repo repositoryInterface, signers signerRegistryInterface, flags features.Provider, wrapped WrappedNativeTokens) *Executor {
	if wrapped == nil {
		wrapped = DefaultWrappedNativeTokens()
	}
	if flags == nil {
		flags = features.NewStaticProvider()
	}
	e := &Executor{
		cfg:          cfg,
		repo:         repo,
		signers:      signers,
		features:     flags,
		wrapped:      wrapped,
		privateLocks: make(map[string]*sync.Mutex),
	}
	e.legacy = &legacyStrategy{e: e}
	e.v2 = &v2Strategy{e: e}
	return e
}

// selectStrategy asks the feature provider on every call
func (e *Executor) selectStrategy(ctx context.Context) executionStrategy {
	enabled, err := e.features.Enabled(ctx, features.ExecutionV2)
	if err != nil {
		log.Warnf("error reading feature %s, using %s strategy, error: %v", features.ExecutionV2, e.legacy.name(), err)
		return e.legacy
	}
	if enabled {
		return e.v2
	}
	return e.legacy
}

func (e *Executor) startSpan(ctx context.Context, flow string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := telemetry.Tracer("executor").Start(ctx, "executor."+flow)
	span.SetAttributes(append(attrs, attribute.String("flow", flow))...)
	return ctx, span
}

func (e *Executor) endSpan(span trace.Span, flow string, err error) {
	if err != nil {
		kind := Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.kind", string(kind)))
		metrics.FlowError(flow, string(kind))
	}
	span.End()
}

// ExecuteTransaction prepares, signs, records and broadcasts a transaction. The record is
// pending in the repository before the broadcast starts. A failure after that point leaves
// it pending for the reconciliation tracker.
func (e *Executor) ExecuteTransaction(ctx context.Context, params ExecuteParams) (*ExecuteResult, error) {
	return e.execute(ctx, flowExecute, params)
}

func (e *Executor) execute(ctx context.Context, flow string, params ExecuteParams) (result *ExecuteResult, err error) {
	ctx, span := e.startSpan(ctx, flow,
		attribute.Int64("chain.id", int64(params.ChainID)),
		attribute.String("from", params.From.Hex()),
		attribute.Bool("private", params.Private),
	)
	defer func() { e.endSpan(span, flow, err) }()

	if err := params.validate(); err != nil {
		return nil, err
	}
	s, err := e.signers.Get(params.From)
	if err != nil {
		return nil, err
	}

	if params.Private {
		unlock := e.lockPrivate(params.From, params.ChainID)
		defer unlock()
		if err := e.waitPrivateRelay(ctx, params.From, params.ChainID); err != nil {
			return nil, err
		}
	}

	prepared, err := e.prepare(ctx, s, params.request())
	if err != nil {
		return nil, err
	}
	signed, err := s.SignTransaction(ctx, prepared)
	if err != nil {
		return nil, err
	}

	record := newRecord(params.ID, signed, params.TypeInfo, params.Private)
	strategy := e.selectStrategy(ctx)
	span.SetAttributes(attribute.String("tx.id", record.ID), attribute.String("strategy", strategy.name()))

	result, err = strategy.submit(ctx, &submission{
		signer:    s,
		record:    record,
		signed:    signed,
		ownsNonce: true,
	})
	if err != nil {
		return nil, err
	}
	metrics.TransactionSubmitted(flow, strategy.name())
	return result, nil
}

// prepare retries the transient failures of the preparation. Estimation failures surface at once.
func (e *Executor) prepare(ctx context.Context, s signer.Signer, req types.TransactionRequest) (types.TransactionRequest, error) {
	return retry.Do(ctx, e.cfg.SendPolicy.Policy(), func(ctx context.Context) (types.TransactionRequest, error) {
		return s.PrepareTransaction(ctx, req)
	})
}

// send retries the transient failures of the broadcast. Resending an identical payload is idempotent.
func (e *Executor) send(ctx context.Context, s signer.Signer, signed *signer.SignedTransaction, private bool) (*signer.SendResult, error) {
	return retry.Do(ctx, e.cfg.SendPolicy.Policy(), func(ctx context.Context) (*signer.SendResult, error) {
		return s.SendTransaction(ctx, signed, private)
	})
}

func (e *Executor) lockPrivate(from common.Address, chainID uint64) func() {
	key := fmt.Sprintf("%d:%s", chainID, from.Hex())
	e.privateMutex.Lock()
	m, found := e.privateLocks[key]
	if !found {
		m = &sync.Mutex{}
		e.privateLocks[key] = m
	}
	e.privateMutex.Unlock()

	m.Lock()
	return m.Unlock
}

// waitPrivateRelay waits for the pending private transactions of the account to settle
func (e *Executor) waitPrivateRelay(ctx context.Context, from common.Address, chainID uint64) error {
	_, err := retry.Do(ctx, e.cfg.PrivateRelayPolicy.Policy(), func(ctx context.Context) (uint64, error) {
		count, err := e.repo.GetPendingPrivateTransactionCount(ctx, from, chainID)
		if err != nil {
			return 0, err
		}
		if count > 0 {
			log.Debugf("%d private txs of %s pending on chain %d, waiting", count, from, chainID)
			return count, retry.Retryable(fmt.Errorf("%w: %d pending", ErrPrivateRelayBusy, count))
		}
		return 0, nil
	})
	return err
}

func newRecord(id string, signed *signer.SignedTransaction, typeInfo types.TypeInfo, private bool) *types.TransactionRecord {
	if id == "" {
		id = uuid.NewString()
	}
	if typeInfo.Type == "" {
		typeInfo = types.UnknownTypeInfo()
	}
	return &types.TransactionRecord{
		ID:       id,
		ChainID:  signed.Request.ChainID,
		From:     signed.Request.From,
		TypeInfo: typeInfo.Copy(),
		Status:   types.StatusPending,
		Options: types.TransactionOptions{
			Request:      signed.Request.Copy(),
			Private:      private,
			SignedTxHash: signed.Hash,
		},
	}
}

// Approve submits an ERC-20 approve(spender, amount). It returns false without any call
// when the gas limit is zero, meaning the allowance is already sufficient.
func (e *Executor) Approve(ctx context.Context, params ApproveParams) (bool, error) {
	var gasLimit uint64
	if raw := strings.TrimSpace(params.GasLimit); raw != "" {
		limit, err := strconv.ParseUint(raw, 0, 64)
		if err != nil {
			return false, fmt.Errorf("%w: gas limit %q", ErrInvalidParams, params.GasLimit)
		}
		if limit == 0 {
			log.Debugf("approve of %s to %s not needed", params.Token, params.Spender)
			return false, nil
		}
		gasLimit = limit
	}
	if params.Amount == nil || params.Amount.Sign() < 0 {
		return false, fmt.Errorf("%w: invalid amount", ErrInvalidParams)
	}
	if params.Token == (common.Address{}) {
		return false, fmt.Errorf("%w: missing token", ErrInvalidParams)
	}

	data, err := approveCalldata(params.Spender, params.Amount)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	token := params.Token
	_, err = e.execute(ctx, flowApprove, ExecuteParams{
		ID:       params.ID,
		ChainID:  params.ChainID,
		From:     params.From,
		To:       &token,
		Data:     data,
		GasLimit: gasLimit,
		Fees:     params.Fees,
		Private:  params.Private,
		TypeInfo: types.NewApproveTypeInfo(params.Token, params.Spender, params.Amount),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClassifyWrap classifies a pair against the wrapped native tokens of the executor
func (e *Executor) ClassifyWrap(input, output Currency) WrapType {
	return e.wrapped.Classify(input, output)
}

// Wrap deposits native currency into its wrapped token, or withdraws it. Pairs that are
// neither are skipped without error.
func (e *Executor) Wrap(ctx context.Context, params WrapParams) error {
	kind := e.ClassifyWrap(params.Input, params.Output)
	if kind == WrapNotApplicable {
		log.Debugf("%s to %s is not a wrap, skipped", params.Input, params.Output)
		return nil
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: invalid amount", ErrInvalidParams)
	}

	chainID := params.Input.ChainID
	token := e.wrapped[chainID]
	exec := ExecuteParams{
		ID:       params.ID,
		ChainID:  chainID,
		From:     params.From,
		To:       &token,
		GasLimit: params.GasLimit,
		Fees:     params.Fees,
		Private:  params.Private,
		TypeInfo: types.NewWrapTypeInfo(kind == WrapUnwrap, params.Amount),
	}

	var err error
	if kind == WrapWrap {
		exec.Value = params.Amount
		exec.Data, err = depositCalldata()
	} else {
		exec.Data, err = withdrawCalldata(params.Amount)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	_, err = e.execute(ctx, flowWrap, exec)
	return err
}

// SpeedUp replaces a pending transaction with the same nonce and bumped fees. The replacement
// supersedes the original record. A replacement cannot be bumped again.
func (e *Executor) SpeedUp(ctx context.Context, id string, factor float64) (result *ExecuteResult, err error) {
	ctx, span := e.startSpan(ctx, flowSpeedUp, attribute.String("replaces", id))
	defer func() { e.endSpan(span, flowSpeedUp, err) }()

	if factor == 0 {
		factor = e.cfg.GasBumpFactor
	}
	if factor == 0 {
		factor = gas.DefaultAdjustmentFactor
	}

	old, err := e.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.Status != types.StatusPending {
		return nil, fmt.Errorf("%w: tx %s is %s", repository.ErrNotPending, id, old.Status)
	}
	if old.ReplacesID != "" {
		return nil, fmt.Errorf("%w: tx %s replaces %s", ErrAlreadyReplaced, id, old.ReplacesID)
	}
	if _, ok := old.Nonce(); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotReplaceable, id)
	}
	s, err := e.signers.Get(old.From)
	if err != nil {
		return nil, err
	}

	if old.IsPrivate() {
		unlock := e.lockPrivate(old.From, old.ChainID)
		defer unlock()
	}

	// nonce and gas limit are kept, only the current fees are fetched
	req := old.Options.Request.Copy()
	req.GasFeeParameters = types.GasFeeParameters{}
	prepared, err := e.prepare(ctx, s, req)
	if err != nil {
		return nil, err
	}
	bumped, err := gas.AdjustGasFee(prepared.GasFeeParameters, old.Options.Request.GasFeeParameters, factor)
	if err != nil {
		return nil, err
	}
	prepared.GasFeeParameters = bumped

	signed, err := s.SignTransaction(ctx, prepared)
	if err != nil {
		return nil, err
	}

	record := newRecord("", signed, old.TypeInfo, old.IsPrivate())
	record.ReplacesID = old.ID
	strategy := e.selectStrategy(ctx)
	span.SetAttributes(attribute.String("tx.id", record.ID), attribute.String("strategy", strategy.name()))

	result, err = strategy.submit(ctx, &submission{signer: s, record: record, signed: signed})
	if err != nil {
		return nil, err
	}
	metrics.TransactionSubmitted(flowSpeedUp, strategy.name())
	log.Infof("tx %s sped up by %s with factor %v", old.Tag(), record.Tag(), factor)
	return result, nil
}
