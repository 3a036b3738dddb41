package queue

import "github.com/z-wentao/autocut/pkg/models"

// Queue 任务调度队列接口
// 队列里只传 task_id，任务详情统一从 Store 读取
type Queue interface {
	// Enqueue 将任务加入队列
	Enqueue(msg *models.TaskMessage) error

	// Dequeue 从队列取出任务（阻塞）
	Dequeue() (*models.TaskMessage, error)

	// Ack 确认消息（任务处理成功）
	Ack(msg *models.TaskMessage) error

	// Nack 拒绝消息（任务处理失败）
	// requeue: 是否重新入队
	Nack(msg *models.TaskMessage, requeue bool) error

	// Close 关闭队列
	Close() error
}
