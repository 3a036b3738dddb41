package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/z-wentao/autocut/pkg/models"
)

// RedisTaskStore Redis 任务存储
// 支持多实例共享任务状态（热数据，带过期时间）
type RedisTaskStore struct {
	client *redis.Client
	ttl    time.Duration // 数据过期时间
	ctx    context.Context
}

// NewRedisTaskStore 创建 Redis 任务存储
func NewRedisTaskStore(addr, password string, db int, ttl time.Duration) (*RedisTaskStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,     // Redis 地址，如 "localhost:6379"
		Password: password, // 密码，无密码留空
		DB:       db,       // 数据库编号，默认 0
	})

	// 测试连接
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return &RedisTaskStore{
		client: client,
		ttl:    ttl,
		ctx:    ctx,
	}, nil
}

// getKey 生成 Redis key
// 格式: "autocut:task:{taskID}"
func (rs *RedisTaskStore) getKey(taskID string) string {
	return fmt.Sprintf("autocut:task:%s", taskID)
}

const redisIndexKey = "autocut:tasks:index"

// Save 保存任务到 Redis
func (rs *RedisTaskStore) Save(task *models.Task) error {
	// 1. 序列化为 JSON
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}

	// 2. 保存到 Redis，设置过期时间
	key := rs.getKey(task.TaskID)
	if err := rs.client.Set(rs.ctx, key, data, rs.ttl).Err(); err != nil {
		return fmt.Errorf("保存到 Redis 失败: %w", err)
	}

	// 3. 将 TaskID 加入索引集合（用于 List 操作）
	// 使用 Sorted Set，score 为创建时间戳
	score := float64(task.CreatedAt.Unix())
	if err := rs.client.ZAdd(rs.ctx, redisIndexKey, redis.Z{
		Score:  score,
		Member: task.TaskID,
	}).Err(); err != nil {
		return fmt.Errorf("添加到索引失败: %w", err)
	}

	return nil
}

// Get 从 Redis 获取任务
func (rs *RedisTaskStore) Get(taskID string) (*models.Task, error) {
	key := rs.getKey(taskID)

	// 1. 从 Redis 获取数据
	data, err := rs.client.Get(rs.ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("任务不存在: %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("从 Redis 获取失败: %w", err)
	}

	// 2. 反序列化
	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("反序列化任务失败: %w", err)
	}

	return &task, nil
}

// Update 更新任务
func (rs *RedisTaskStore) Update(taskID string, updateFn func(*models.Task)) error {
	// 1. 获取现有任务
	task, err := rs.Get(taskID)
	if err != nil {
		return err
	}

	// 状态单调性：终态任务直接忽略更新
	if task.Status.IsTerminal() {
		return nil
	}

	// 2. 执行更新函数
	updateFn(task)

	// 3. 保存回 Redis
	return rs.Save(task)
}

// List 列出所有任务（按创建时间倒序）
func (rs *RedisTaskStore) List() ([]*models.Task, error) {
	// 1. 从索引获取所有 TaskID（按时间倒序）
	taskIDs, err := rs.client.ZRevRange(rs.ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("获取任务索引失败: %w", err)
	}

	// 2. 批量获取任务详情
	tasks := make([]*models.Task, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		task, err := rs.Get(taskID)
		if err != nil {
			// 任务可能已过期，跳过并从索引中删除
			rs.client.ZRem(rs.ctx, redisIndexKey, taskID)
			continue
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// Delete 删除任务
func (rs *RedisTaskStore) Delete(taskID string) error {
	key := rs.getKey(taskID)

	// 1. 删除任务数据
	deleted, err := rs.client.Del(rs.ctx, key).Result()
	if err != nil {
		return fmt.Errorf("删除任务失败: %w", err)
	}

	if deleted == 0 {
		return fmt.Errorf("任务不存在: %s", taskID)
	}

	// 2. 从索引中删除
	rs.client.ZRem(rs.ctx, redisIndexKey, taskID)

	return nil
}

// Close 关闭 Redis 连接
func (rs *RedisTaskStore) Close() error {
	return rs.client.Close()
}
