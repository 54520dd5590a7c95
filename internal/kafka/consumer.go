package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"pagerduty-analytics/internal/config"
	"pagerduty-analytics/internal/logging"
	syncsvc "pagerduty-analytics/internal/sync"
)

// Consumer listens for sync trigger messages and starts a run per message.
// A trigger arriving while a run is active is acknowledged and dropped.
type Consumer struct {
	reader *kafkago.Reader
	svc    *syncsvc.Service
	logger *logging.Logger
	cancel context.CancelFunc
}

type triggerMessage struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

func NewConsumer(cfg config.KafkaConfig, svc *syncsvc.Service, logger *logging.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  []string{cfg.Broker},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return &Consumer{reader: reader, svc: svc, logger: logger}
}

func (c *Consumer) Start(wg *sync.WaitGroup) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started (topic: %s)", c.reader.Config().Topic)
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				c.logger.Errorf("Failed to read kafka message: %v", err)
				continue
			}

			var trigger triggerMessage
			if err := json.Unmarshal(msg.Value, &trigger); err != nil {
				c.logger.Errorf("Failed to unmarshal trigger message: %v", err)
				continue
			}

			run, err := c.svc.StartRun()
			if err != nil {
				if errors.Is(err, syncsvc.ErrSyncInProgress) {
					c.logger.Warnf("Dropping sync trigger from %s: run already active", trigger.Source)
					continue
				}
				c.logger.Errorf("Failed to start sync from trigger: %v", err)
				continue
			}
			c.logger.Infof("Started sync run %s (trigger from %s: %s)", run.ID, trigger.Source, trigger.Reason)
		}
	}()
}

func (c *Consumer) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Failed to close kafka reader: %v", err)
	}
}
