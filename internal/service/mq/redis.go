package mq

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPubSubProducer 使用 PUBLISH 推送实时消息
// 没有订阅者时消息直接丢弃，适合 "尽力而为" 的前端推送
type RedisPubSubProducer struct {
	client *redis.Client
}

func NewRedisPubSubProducer(client *redis.Client) *RedisPubSubProducer {
	return &RedisPubSubProducer{client: client}
}

func (p *RedisPubSubProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish error: %w", err)
	}
	return nil
}

// Close 不关闭共享的 redis client，由 main 统一释放
func (p *RedisPubSubProducer) Close() error {
	return nil
}

// RedisStreamProducer 使用 XADD 写入 Redis Stream
// 与 Pub/Sub 不同，消息会保留，离线的消费者上线后仍能读到
type RedisStreamProducer struct {
	client *redis.Client
	maxLen int64
}

func NewRedisStreamProducer(client *redis.Client, maxLen int64) *RedisStreamProducer {
	return &RedisStreamProducer{client: client, maxLen: maxLen}
}

func (p *RedisStreamProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd error: %w", err)
	}
	return nil
}

func (p *RedisStreamProducer) Close() error {
	return nil
}
