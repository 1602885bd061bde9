package bus

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"go.uber.org/zap"
)

var ErrGroupActive = errors.New("consumer group already has an active subscription")

// Memory is an in-process bus with Kafka-like semantics: each topic is split
// into partitions by hashing the partition key, every partition is an
// append-only log, and each consumer group keeps its own committed offset per
// partition. Offsets survive the end of a subscription, so subscribing again
// with the same group resumes after the last acknowledged fact.
type Memory struct {
	partitions int
	opts       DeliveryOptions
	logger     *zap.Logger

	mu        sync.Mutex
	topics    map[string][]*partitionLog
	published map[string][]domain.Fact
	offsets   map[string]map[string][]int
	active    map[string]bool
}

type partitionLog struct {
	mu     sync.Mutex
	facts  []domain.Fact
	notify chan struct{}
}

func NewMemory(partitions int, opts DeliveryOptions, logger *zap.Logger) *Memory {
	if partitions <= 0 {
		partitions = 1
	}

	return &Memory{
		partitions: partitions,
		opts:       opts,
		logger:     logger,
		topics:     make(map[string][]*partitionLog),
		published:  make(map[string][]domain.Fact),
		offsets:    make(map[string]map[string][]int),
		active:     make(map[string]bool),
	}
}

func (m *Memory) Publish(ctx context.Context, facts ...domain.Fact) error {
	for _, fact := range facts {
		if fact.Topic == "" {
			return fmt.Errorf("publish event %s: empty topic", fact.EventID)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		log := m.partition(fact.Topic, fact.PartitionKey)

		log.mu.Lock()
		log.facts = append(log.facts, fact)
		close(log.notify)
		log.notify = make(chan struct{})
		log.mu.Unlock()

		m.mu.Lock()
		m.published[fact.Topic] = append(m.published[fact.Topic], fact)
		m.mu.Unlock()
	}

	return nil
}

// Published returns every fact ever published to topic, in publish order.
func (m *Memory) Published(topic string) []domain.Fact {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]domain.Fact(nil), m.published[topic]...)
}

func (m *Memory) Subscribe(ctx context.Context, group string, topics []string, handler Handler) error {
	m.mu.Lock()
	if m.active[group] {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrGroupActive, group)
	}
	m.active[group] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.active, group)
		m.mu.Unlock()
	}()

	var wg sync.WaitGroup
	for _, topic := range topics {
		logs := m.topicLogs(topic)
		for i := range logs {
			wg.Add(1)
			go func(topic string, partition int) {
				defer wg.Done()
				m.consumePartition(ctx, group, topic, partition, handler)
			}(topic, i)
		}
	}

	wg.Wait()
	return nil
}

func (m *Memory) consumePartition(ctx context.Context, group, topic string, partition int, handler Handler) {
	log := m.topicLogs(topic)[partition]

	for {
		offset := m.offset(group, topic, partition)

		log.mu.Lock()
		if offset < len(log.facts) {
			fact := log.facts[offset]
			log.mu.Unlock()

			if err := Deliver(ctx, fact, handler, m.opts); err != nil {
				mylogger.Debug(
					ctx,
					m.logger,
					"Subscription stopped with unacknowledged fact",
					zap.String("group", group),
					zap.String("topic", topic),
					zap.Int("partition", partition),
					zap.String("event_id", fact.EventID),
				)

				return
			}

			m.commit(group, topic, partition, offset+1)
			continue
		}
		wait := log.notify
		log.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-wait:
		}
	}
}

func (m *Memory) partition(topic, key string) *partitionLog {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))

	return m.topicLogs(topic)[int(h.Sum32()%uint32(m.partitions))]
}

func (m *Memory) topicLogs(topic string) []*partitionLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	logs, ok := m.topics[topic]
	if !ok {
		logs = make([]*partitionLog, m.partitions)
		for i := range logs {
			logs[i] = &partitionLog{notify: make(chan struct{})}
		}
		m.topics[topic] = logs
	}

	return logs
}

func (m *Memory) offset(group, topic string, partition int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.groupOffsets(group, topic)[partition]
}

func (m *Memory) commit(group, topic string, partition, offset int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.groupOffsets(group, topic)[partition] = offset
}

// groupOffsets must be called with m.mu held.
func (m *Memory) groupOffsets(group, topic string) []int {
	byTopic, ok := m.offsets[group]
	if !ok {
		byTopic = make(map[string][]int)
		m.offsets[group] = byTopic
	}

	offsets, ok := byTopic[topic]
	if !ok {
		offsets = make([]int, m.partitions)
		byTopic[topic] = offsets
	}

	return offsets
}
