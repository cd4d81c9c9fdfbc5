package kafkapub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jinford/mevzuat-rag/internal/core/ask"
)

// Config は Kafka 接続設定
type Config struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RunPublisher は実行記録を Kafka トピックへ JSON で送信する
type RunPublisher struct {
	writer messageWriter
}

// NewRunPublisher は新しい RunPublisher を作成する
func NewRunPublisher(cfg Config) (*RunPublisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required")
	}
	return &RunPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}, nil
}

// Record は実行記録を1メッセージとして送信する。キーは実行ID
func (p *RunPublisher) Record(ctx context.Context, rec ask.RunRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.RunID.String()),
		Value: value,
		Time:  rec.StartedAt,
	}); err != nil {
		return fmt.Errorf("failed to publish run record: %w", err)
	}
	return nil
}

// Close は Writer を閉じる
func (p *RunPublisher) Close() error {
	return p.writer.Close()
}

var _ ask.RunRecorder = (*RunPublisher)(nil)
