// Package listener provides blockchain.EthereumListener implementations:
// a console logger for development and a Kafka producer for production
// event fan-out, grounded on datasync/chaindatafetcher/event/kafka's
// producer shape. Delivery itself is still serialized by
// blockchain's own single-consumer dispatcher (blockchain/dispatch.go);
// these implementations only decide what to do with each event once it
// reaches them.
package listener

import (
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"

	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/log"
)

var logger = log.NewModuleLogger(log.Listener)

// ConsoleListener logs every imported block summary at Info level; the
// default wiring for the bootstrap CLI's dev mode.
type ConsoleListener struct{}

func (ConsoleListener) OnBlock(summary *types.BlockSummary, isBest bool) {
	logger.Info("block imported",
		"number", summary.Block.NumberU64(),
		"hash", summary.Block.Hash().String(),
		"isBest", isBest,
		"txs", len(summary.Receipts),
		"diagnostic", summary.Diagnostic,
	)
}

func (ConsoleListener) Trace(msg string) {
	logger.Debug(msg)
}

// blockEvent is the JSON payload published to Kafka, a flattened
// projection of BlockSummary: full receipts/log payloads are left to a
// downstream consumer that already has the block (this event is a
// notification, not a block archive — that is internal/archive's job).
type blockEvent struct {
	Number    uint64 `json:"number"`
	Hash      string `json:"hash"`
	IsBest    bool   `json:"isBest"`
	TxCount   int    `json:"txCount"`
	Diagnostic bool  `json:"diagnostic"`
}

// KafkaListener publishes one message per imported block to topic,
// adapted from KafkaBroker.Publish's json.Marshal + AsyncProducer.Input
// pattern.
type KafkaListener struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewKafkaListener dials brokers and returns a listener publishing to
// topic. Producer errors are drained and logged in the background so a
// slow/unreachable broker never blocks import (spec.md §5's single-
// consumer queue already isolates the importer; this isolates the
// listener itself from its transport).
func NewKafkaListener(brokers []string, topic string) (*KafkaListener, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("listener: dial kafka: %w", err)
	}

	kl := &KafkaListener{producer: producer, topic: topic}
	go kl.drainErrors()
	return kl, nil
}

func (kl *KafkaListener) drainErrors() {
	for err := range kl.producer.Errors() {
		logger.Error("kafka publish failed", "err", err.Err)
	}
}

func (kl *KafkaListener) OnBlock(summary *types.BlockSummary, isBest bool) {
	payload, err := json.Marshal(blockEvent{
		Number:     summary.Block.NumberU64(),
		Hash:       summary.Block.Hash().String(),
		IsBest:     isBest,
		TxCount:    len(summary.Receipts),
		Diagnostic: summary.Diagnostic,
	})
	if err != nil {
		logger.Error("failed to marshal block event", "err", err)
		return
	}
	kl.producer.Input() <- &sarama.ProducerMessage{
		Topic: kl.topic,
		Key:   sarama.StringEncoder(summary.Block.Hash().String()),
		Value: sarama.ByteEncoder(payload),
	}
}

func (kl *KafkaListener) Trace(msg string) {
	logger.Debug(msg)
}

func (kl *KafkaListener) Close() error {
	return kl.producer.Close()
}
