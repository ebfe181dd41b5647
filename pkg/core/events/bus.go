package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus 进程内事件总线（对外导出）
// 基于Watermill gochannel，发布不等待消费端确认，
// 慢消费者不会反压状态变更路径
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
}

// NewBus 创建事件总线（对外导出）
func NewBus(debug bool) *Bus {
	logger := watermill.NewStdLogger(debug, false)
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
			OutputChannelBuffer:            64,
		},
		logger,
	)
	return &Bus{pubsub: pubsub, logger: logger}
}

// Publish 发布事件到类型对应的主题（对外导出）
func (b *Bus) Publish(event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", string(event.Type))

	if err := b.pubsub.Publish(string(event.Type), msg); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}

// Emit 构造并发布事件，失败只记日志（对外导出）
// 事件是变更的副产物，发布失败不应让已提交的变更报错
func (b *Bus) Emit(eventType EventType, payload interface{}) {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		log.Printf("events: build %s event: %v", eventType, err)
		return
	}
	if err := b.Publish(event); err != nil {
		log.Printf("events: publish %s event: %v", eventType, err)
	}
}

// Subscribe 订阅若干事件类型，返回合并后的事件通道（对外导出）
// ctx取消时订阅终止，通道随之关闭；types为空时订阅全部类型
func (b *Bus) Subscribe(ctx context.Context, types ...EventType) (<-chan *Event, error) {
	if len(types) == 0 {
		types = AllEventTypes
	}

	out := make(chan *Event, 64)
	var wg sync.WaitGroup

	for _, eventType := range types {
		msgs, err := b.pubsub.Subscribe(ctx, string(eventType))
		if err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", eventType, err)
		}

		wg.Add(1)
		go func(msgs <-chan *message.Message) {
			defer wg.Done()
			for msg := range msgs {
				var event Event
				if err := json.Unmarshal(msg.Payload, &event); err != nil {
					log.Printf("events: decode message %s: %v", msg.UUID, err)
					msg.Ack()
					continue
				}
				msg.Ack()

				select {
				case out <- &event:
				case <-ctx.Done():
					return
				}
			}
		}(msgs)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// Close 关闭总线，所有订阅通道随之关闭（对外导出）
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
