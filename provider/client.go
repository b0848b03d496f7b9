package provider

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/hex"
	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/metrics"
	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultRPCTimeout   = 30 * time.Second
)

// Client is the node client of one chain
type Client struct {
	cfg     ChainConfig
	rpc     *rpc.Client
	eth     *ethclient.Client
	relay   *rpc.Client
	breaker *CircuitBreaker
}

// Dial connects to the chain node and, when configured, to its private relay
func Dial(ctx context.Context, cfg ChainConfig) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("error connecting to chain %d node %s: %w", cfg.ChainID, cfg.URL, err)
	}

	var relay *rpc.Client
	if cfg.PrivateRelayURL != "" {
		relay, err = rpc.DialContext(ctx, cfg.PrivateRelayURL)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("error connecting to chain %d private relay %s: %w", cfg.ChainID, cfg.PrivateRelayURL, err)
		}
	}

	return NewClient(cfg, rpcClient, relay), nil
}

// NewClient creates a client over already established rpc connections. relay may be nil.
func NewClient(cfg ChainConfig, rpcClient *rpc.Client, relay *rpc.Client) *Client {
	if cfg.PollInterval.Duration <= 0 {
		cfg.PollInterval.Duration = defaultPollInterval
	}
	if cfg.RPCTimeout.Duration <= 0 {
		cfg.RPCTimeout.Duration = defaultRPCTimeout
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("chain-%d", cfg.ChainID)
	}
	return &Client{
		cfg:     cfg,
		rpc:     rpcClient,
		eth:     ethclient.NewClient(rpcClient),
		relay:   relay,
		breaker: NewCircuitBreaker(cfg.Name, cfg.CircuitBreaker),
	}
}

// ChainID returns the configured chain id
func (c *Client) ChainID() uint64 {
	return c.cfg.ChainID
}

// Name returns the configured chain name
func (c *Client) Name() string {
	return c.cfg.Name
}

// Close closes the node connections
func (c *Client) Close() {
	c.rpc.Close()
	if c.relay != nil {
		c.relay.Close()
	}
}

// call runs fn through the circuit breaker and classifies its error
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.breaker.Allow() {
		return retry.Retryable(fmt.Errorf("%s: %w", c.cfg.Name, ErrCircuitOpen))
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout.Duration)
	defer cancel()

	err := fn(ctx)
	if isTransient(err) {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}
	return classifyError(err)
}

// SendRawTransaction broadcasts a signed payload. A payload the node already knows
// counts as sent.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	return c.sendRaw(ctx, c.rpc, raw)
}

// SendPrivateRawTransaction submits a signed payload to the private relay
func (c *Client) SendPrivateRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	if c.relay == nil {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrPrivateRelayNotConfigured, c.cfg.ChainID)
	}
	return c.sendRaw(ctx, c.relay, raw)
}

func (c *Client) sendRaw(ctx context.Context, client *rpc.Client, raw []byte) (common.Hash, error) {
	metrics.SendAttempt(c.cfg.ChainID)

	var hash common.Hash
	err := c.call(ctx, func(ctx context.Context) error {
		return client.CallContext(ctx, &hash, "eth_sendRawTransaction", hex.EncodeToHex(raw))
	})
	if err != nil {
		if isAlreadyKnown(err) {
			hash = crypto.Keccak256Hash(raw)
			log.Debugf("%s: tx %s already known by the node", c.cfg.Name, hash)
			return hash, nil
		}
		return common.Hash{}, err
	}
	return hash, nil
}

// PendingNonceAt returns the next nonce of account including the node pending pool
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.call(ctx, func(ctx context.Context) (err error) {
		nonce, err = c.eth.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

// NonceAt returns the next nonce of account at the latest block
func (c *Client) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.call(ctx, func(ctx context.Context) (err error) {
		nonce, err = c.eth.NonceAt(ctx, account, nil)
		return err
	})
	return nonce, err
}

// EstimateGas estimates the gas needed to execute msg
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.call(ctx, func(ctx context.Context) (err error) {
		gas, err = c.eth.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// SuggestGasPrice returns the legacy gas price suggested by the node
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.call(ctx, func(ctx context.Context) (err error) {
		price, err = c.eth.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

// SuggestGasTipCap returns the priority fee suggested by the node
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var tip *big.Int
	err := c.call(ctx, func(ctx context.Context) (err error) {
		tip, err = c.eth.SuggestGasTipCap(ctx)
		return err
	})
	return tip, err
}

// HeaderByNumber returns the header of the block, or the latest one when number is nil
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*ethTypes.Header, error) {
	var header *ethTypes.Header
	err := c.call(ctx, func(ctx context.Context) (err error) {
		header, err = c.eth.HeaderByNumber(ctx, number)
		return err
	})
	return header, err
}

// TransactionReceipt returns the receipt of a mined transaction, or ethereum.NotFound
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethTypes.Receipt, error) {
	var receipt *ethTypes.Receipt
	err := c.call(ctx, func(ctx context.Context) (err error) {
		receipt, err = c.eth.TransactionReceipt(ctx, hash)
		return err
	})
	return receipt, err
}

// BlockNumber returns the latest block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.call(ctx, func(ctx context.Context) (err error) {
		number, err = c.eth.BlockNumber(ctx)
		return err
	})
	return number, err
}

func (c *Client) supportsSubscriptions() bool {
	return strings.HasPrefix(c.cfg.URL, "ws://") || strings.HasPrefix(c.cfg.URL, "wss://")
}

// SubscribeNewBlocks sends the number of every new block to sink until the subscription
// is unsubscribed. A failure of the underlying feed is reported on the Err channel.
func (c *Client) SubscribeNewBlocks(ctx context.Context, sink chan<- uint64) (ethereum.Subscription, error) {
	if !c.supportsSubscriptions() {
		return c.pollNewBlocks(sink), nil
	}

	headers := make(chan *ethTypes.Header)
	sub, err := c.eth.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, classifyError(err)
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case header := <-headers:
				select {
				case sink <- header.Number.Uint64():
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return classifyError(err)
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (c *Client) pollNewBlocks(sink chan<- uint64) ethereum.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-quit:
				cancel()
			case <-ctx.Done():
			}
		}()

		ticker := time.NewTicker(c.cfg.PollInterval.Duration)
		defer ticker.Stop()

		var last uint64
		for {
			number, err := c.BlockNumber(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if number > last {
				last = number
				select {
				case sink <- number:
				case <-quit:
					return nil
				}
			}
			select {
			case <-ticker.C:
			case <-quit:
				return nil
			}
		}
	})
}
