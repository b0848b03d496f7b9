package watcher

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum"
)

var errSubscriptionClosed = errors.New("block subscription closed")

// BlockSource notifies the numbers of new blocks of one chain
type BlockSource interface {
	SubscribeNewBlocks(ctx context.Context, sink chan<- uint64) (ethereum.Subscription, error)
}

// Watcher publishes the new blocks of every watched chain on a Stream
type Watcher struct {
	cfg    Config
	stream *Stream
}

// NewWatcher creates a watcher publishing on stream
func NewWatcher(cfg Config, stream *Stream) *Watcher {
	return &Watcher{cfg: cfg, stream: stream}
}

// Stream returns the stream block updates are published on
func (w *Watcher) Stream() *Stream {
	return w.stream
}

// ChainWatch is the watch of one chain
type ChainWatch struct {
	chainID uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

// ChainID returns the watched chain id
func (c *ChainWatch) ChainID() uint64 {
	return c.chainID
}

// Stop unsubscribes from the chain and returns once no more updates of the chain are published
func (c *ChainWatch) Stop() {
	c.cancel()
	<-c.done
}

// Done is closed when the watch has stopped
func (c *ChainWatch) Done() <-chan struct{} {
	return c.done
}

// Watch starts following the new blocks of chainID. Subscription failures are retried
// forever with a jittered wait and never affect other chains.
func (w *Watcher) Watch(ctx context.Context, chainID uint64, source BlockSource) *ChainWatch {
	ctx, cancel := context.WithCancel(ctx)
	watch := &ChainWatch{
		chainID: chainID,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	policy := retry.Policy{
		Retries: math.MaxInt,
		MinWait: w.cfg.ResubscribeMinWait.Duration,
		MaxWait: w.cfg.ResubscribeMaxWait.Duration,
	}

	go func() {
		defer close(watch.done)
		log.Infof("watching new blocks of chain %d", chainID)
		_, err := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.follow(ctx, chainID, source)
		})
		if err != nil && !errors.Is(err, retry.ErrCancelled) {
			log.Errorf("stopped watching chain %d, error: %v", chainID, err)
			return
		}
		log.Infof("stopped watching chain %d", chainID)
	}()

	return watch
}

// follow publishes the blocks of one subscription until ctx is done or the subscription fails
func (w *Watcher) follow(ctx context.Context, chainID uint64, source BlockSource) error {
	sink := make(chan uint64, 1)
	sub, err := source.SubscribeNewBlocks(ctx, sink)
	if err != nil {
		log.Warnf("error subscribing to new blocks of chain %d, error: %v", chainID, err)
		return retry.Retryable(err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				err = errSubscriptionClosed
			}
			w.drain(ctx, chainID, sink)
			log.Warnf("block subscription of chain %d failed, resubscribing, error: %v", chainID, err)
			return retry.Retryable(fmt.Errorf("chain %d: %w", chainID, err))
		case number := <-sink:
			if ctx.Err() != nil {
				return nil
			}
			w.publish(chainID, number)
		}
	}
}

// drain publishes the numbers delivered before the subscription failed
func (w *Watcher) drain(ctx context.Context, chainID uint64, sink <-chan uint64) {
	for {
		select {
		case number := <-sink:
			if ctx.Err() != nil {
				return
			}
			w.publish(chainID, number)
		default:
			return
		}
	}
}

func (w *Watcher) publish(chainID, number uint64) {
	update := types.BlockUpdate{ChainID: chainID, BlockNumber: number}
	log.Debugf("new block: %s", update)
	w.stream.Publish(update)
}
