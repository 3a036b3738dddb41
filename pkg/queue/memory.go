package queue

import (
	"fmt"
	"sync"

	"github.com/z-wentao/autocut/pkg/models"
)

// MemoryQueue 基于 Channel 的内存队列实现
// 单进程模式下的默认调度方式
type MemoryQueue struct {
	queue  chan *models.TaskMessage
	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	return &MemoryQueue{
		queue: make(chan *models.TaskMessage, bufferSize),
	}
}

// Enqueue 将任务加入队列
// 关闭之后的入队返回错误而不是写已关闭的 Channel
func (mq *MemoryQueue) Enqueue(msg *models.TaskMessage) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return fmt.Errorf("队列已关闭")
	}

	select {
	case mq.queue <- msg:
		return nil
	default:
		return fmt.Errorf("队列已满")
	}
}

// Dequeue 从队列取出任务（阻塞等待）
func (mq *MemoryQueue) Dequeue() (*models.TaskMessage, error) {
	msg, ok := <-mq.queue
	if !ok {
		return nil, fmt.Errorf("队列已关闭")
	}
	return msg, nil
}

// Ack 内存队列无需确认
func (mq *MemoryQueue) Ack(msg *models.TaskMessage) error {
	return nil
}

// Nack 内存队列不支持重新入队（任务失败不自动重试）
func (mq *MemoryQueue) Nack(msg *models.TaskMessage, requeue bool) error {
	return nil
}

// Close 关闭队列（幂等）
func (mq *MemoryQueue) Close() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil
	}
	mq.closed = true
	close(mq.queue)
	return nil
}
