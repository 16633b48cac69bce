// Package kafka consumes the backend's event firehose as an alternative
// ingest path to the websocket. Events are sharded across workers by
// channel so that delivery order within a channel is preserved.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/carousell/ct-go/pkg/logger"
	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/carousell/ct-go/pkg/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nguyentranbao-ct/chat-sync/internal/config"
	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/router"
	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

type Consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

const numShards = 4

type kafkaConsumer struct {
	reader         *kafka.Reader
	metrics        *prometheus.HistogramVec
	consumeTimeout time.Duration
	router         *router.Router
	done           chan struct{}
	// one single-worker pool per shard keeps per-channel ordering
	shards [numShards]workerpool.Pool
}

func NewConsumer(conf *config.Config, rt *router.Router) (Consumer, error) {
	if len(conf.Kafka.Brokers) == 0 {
		return &noopConsumer{}, nil
	}

	metrics, err := util.GetHistogramVec("chat_events_consumed", "status", "topic", "group")
	if err != nil {
		return nil, fmt.Errorf("get histogram vec: %w", err)
	}

	c := &kafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     conf.Kafka.Brokers,
			Topic:       conf.Kafka.Topic,
			GroupID:     conf.Kafka.GroupID,
			StartOffset: kafka.LastOffset,
		}),
		metrics:        metrics,
		consumeTimeout: 30 * time.Second,
		router:         rt,
		done:           make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = workerpool.New(1)
	}
	return c, nil
}

func (c *kafkaConsumer) Start(ctx context.Context) error {
	log.Infof(ctx, "Starting Kafka consumer for topic: %s", c.reader.Config().Topic)
	defer c.reader.Close()

	groupID := c.reader.Config().GroupID
	for ctx.Err() == nil {
		select {
		case <-c.done:
			return nil
		default:
		}

		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Errorw(ctx, "Error reading message", "error", err)
			continue
		}

		c.shards[shardFor(msg.Key)].Run(func() {
			c.processMessage(ctx, msg, groupID)
		})
	}
	return nil
}

func (c *kafkaConsumer) Stop(ctx context.Context) error {
	log.Infof(ctx, "Stopping Kafka consumer")
	close(c.done)
	for i := range c.shards {
		c.shards[i].Close()
		c.shards[i].Wait()
	}
	return c.reader.Close()
}

// shardFor maps a message key (the backend keys events by channel CID)
// to a worker shard. Keyless messages all land on shard zero, which is
// safe but serial.
func shardFor(key []byte) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % numShards)
}

func (c *kafkaConsumer) processMessage(ctx context.Context, msg kafka.Message, groupID string) {
	start := time.Now()
	lagMs := start.Sub(msg.Time).Milliseconds()

	duration, err := c.handle(ctx, msg)

	code := getCode(err)
	content := "success"
	if err != nil {
		content = err.Error()
	}

	level := getLogLevel(code)
	log.Logw(ctx, level, content,
		"code", code,
		"duration_ms", duration.Milliseconds(),
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"lag_ms", lagMs,
		"key", string(msg.Key),
	)

	c.metrics.
		WithLabelValues(code.String(), msg.Topic, groupID).
		Observe(duration.Seconds())
}

func (c *kafkaConsumer) handle(msgCtx context.Context, msg kafka.Message) (duration time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PANIC RECOVER: %+v", r)
		}
	}()

	start := time.Now()
	defer func() {
		duration = time.Since(start)
	}()

	var ev models.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return 0, fmt.Errorf("unmarshal event: %w", err)
	}
	if !ev.Type.Valid() {
		log.Infow(msgCtx, "Ignoring unknown event type", "type", ev.Type)
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(msgCtx, c.consumeTimeout)
	defer cancel()

	return 0, c.router.Apply(ctx, ev)
}

func getCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return codes.Canceled
	}
	st, ok := status.FromError(err)
	if !ok {
		return status.Code(errors.Unwrap(err))
	}
	return st.Code()
}

// noopConsumer is used when no brokers are configured
type noopConsumer struct{}

func (n *noopConsumer) Start(ctx context.Context) error {
	log.Infof(ctx, "Kafka consumer is disabled")
	return nil
}

func (n *noopConsumer) Stop(ctx context.Context) error {
	return nil
}

func getLogLevel(code codes.Code) logger.Level {
	switch code {
	case codes.OK:
		return logger.InfoLevel
	case codes.Canceled,
		codes.InvalidArgument,
		codes.NotFound,
		codes.AlreadyExists,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.ResourceExhausted,
		codes.FailedPrecondition,
		codes.Aborted,
		codes.Unimplemented,
		codes.OutOfRange:
		return logger.WarnLevel
	default:
		return logger.ErrorLevel
	}
}
