package mq

import "context"

// Producer 生产者接口
type Producer interface {
	// Publish 发送消息
	// key: 分区键 (例如 UserID)，保证同一用户的消息有序
	Publish(ctx context.Context, topic string, key string, payload []byte) error
	Close() error
}
