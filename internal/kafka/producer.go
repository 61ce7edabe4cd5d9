package kafka

import (
	"context"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/segmentio/kafka-go"
	"sync"
	"time"
)

// Writer is the part of *kafka.Writer the producer drives.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer queues messages and writes them from a single goroutine so callers
// never block on the broker. The topic is taken from each message.
type Producer struct {
	w       Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	once    sync.Once
}

func NewProducer(brokers []string, buf int) *Producer {
	return NewProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, buf)
}

func NewProducerWithWriter(w Writer, buf int) *Producer {
	if buf <= 0 {
		buf = 1
	}
	return &Producer{
		w:       w,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the write loop until Close is called. Queued messages are
// flushed before the writer closes.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			p.write(ctx, m)
		}
		if err := p.w.Close(); err != nil {
			logger.Logger.Error().Err(err).Msg("kafka writer close failed")
		}
	}()
}

func (p *Producer) write(ctx context.Context, m kafka.Message) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(wctx, m); err != nil {
		logger.Error(ctx).Err(err).
			Str("topic", m.Topic).
			Str("key", string(m.Key)).
			Msg("kafka publish failed")
	}
}

// Publish queues a message. It blocks only while the buffer is full and
// drops the message if ctx ends first.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case p.inbox <- m:
	case <-ctx.Done():
		logger.Warn(ctx).Str("topic", topic).Str("key", string(key)).Msg("kafka publish dropped")
	}
}

// Close stops accepting messages. It is safe to call more than once.
func (p *Producer) Close() { p.once.Do(func() { close(p.inbox) }) }

// WaitClosed blocks until every queued message was written and the writer closed.
func (p *Producer) WaitClosed() { <-p.closeCh }
