package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/telemetry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTopicPrefix = "txengine-blocks"
	blockMessageType   = "block"
)

// BlockMessage is the kafka payload of a block update
type BlockMessage struct {
	Type        string    `json:"type"`
	ChainID     uint64    `json:"chainId"`
	BlockNumber uint64    `json:"blockNumber"`
	ObservedAt  time.Time `json:"observedAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes the block stream to per chain kafka topics
type KafkaSink struct {
	writer messageWriter
	prefix string
}

// NewKafkaSink creates a sink writing to cfg.Brokers
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           100 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(writer, cfg.TopicPrefix), nil
}

func newKafkaSink(writer messageWriter, prefix string) *KafkaSink {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultTopicPrefix
	}
	return &KafkaSink{writer: writer, prefix: prefix}
}

// Close flushes and closes the writer
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

// Run publishes every update received from updates until ctx is done or updates is closed
func (k *KafkaSink) Run(ctx context.Context, updates <-chan types.BlockUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := k.Publish(ctx, update); err != nil {
				log.Errorf("error publishing %s to kafka, error: %v", update, err)
			}
		}
	}
}

// Publish writes update to the topic of its chain
func (k *KafkaSink) Publish(ctx context.Context, update types.BlockUpdate) error {
	ctx, span := telemetry.Tracer("watcher").Start(ctx, "watcher.publish_block", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("chain.id", int64(update.ChainID)),
		attribute.Int64("block.number", int64(update.BlockNumber)),
	)

	payload, err := json.Marshal(BlockMessage{
		Type:        blockMessageType,
		ChainID:     update.ChainID,
		BlockNumber: update.BlockNumber,
		ObservedAt:  time.Now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topicForChain(update.ChainID),
		Key:   []byte(fmt.Sprintf("block:%d", update.BlockNumber)),
		Value: payload,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (k *KafkaSink) topicForChain(chainID uint64) string {
	return fmt.Sprintf("%s-%d", k.prefix, chainID)
}
