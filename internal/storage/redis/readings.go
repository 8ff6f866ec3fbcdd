package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/gas-sensor/internal/storage/models"
)

// ErrNoReading 缓存中没有读数（尚未采集或已过期）
var ErrNoReading = errors.New("no cached reading")

// ReadingCache 最新读数缓存：SET {prefix}latest:{sensor}（带 TTL）并 PUBLISH 到频道
type ReadingCache struct {
	client  *Client
	prefix  string
	channel string
	ttl     time.Duration
}

// NewReadingCache 创建读数缓存
func NewReadingCache(client *Client, prefix, channel string, ttl time.Duration) *ReadingCache {
	if prefix == "" {
		prefix = "gas:"
	}
	return &ReadingCache{client: client, prefix: prefix, channel: channel, ttl: ttl}
}

func (c *ReadingCache) latestKey(sensor string) string {
	if sensor == "" {
		sensor = "default"
	}
	return c.prefix + "latest:" + sensor
}

// Name 实现 poller.Sink
func (c *ReadingCache) Name() string { return "redis" }

// Write 缓存并发布读数；频道为空时只缓存
func (c *ReadingCache) Write(ctx context.Context, r models.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.latestKey(r.Sensor), data, c.ttl)
	if c.channel != "" {
		pipe.Publish(ctx, c.channel, data)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Latest 读取某传感器的最新读数
func (c *ReadingCache) Latest(ctx context.Context, sensor string) (models.Reading, error) {
	data, err := c.client.Get(ctx, c.latestKey(sensor)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Reading{}, ErrNoReading
	}
	if err != nil {
		return models.Reading{}, err
	}
	var r models.Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return models.Reading{}, fmt.Errorf("unmarshal reading: %w", err)
	}
	return r, nil
}

// Subscribe 订阅读数频道，ctx 取消时关闭订阅
func (c *ReadingCache) Subscribe(ctx context.Context) (<-chan models.Reading, error) {
	if c.channel == "" {
		return nil, errors.New("redis channel not configured")
	}
	sub := c.client.Subscribe(ctx, c.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	out := make(chan models.Reading)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var r models.Reading
				if json.Unmarshal([]byte(msg.Payload), &r) != nil {
					continue
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close 客户端由调用方管理
func (c *ReadingCache) Close() error { return nil }
