package storage

import "github.com/z-wentao/autocut/pkg/models"

// Store 任务元数据存储接口
type Store interface {
	// Save 保存任务
	Save(task *models.Task) error

	// Get 获取任务
	Get(taskID string) (*models.Task, error)

	// Update 更新任务（使用回调函数模式）
	Update(taskID string, updateFn func(*models.Task)) error

	// List 列出所有任务
	List() ([]*models.Task, error)

	// Delete 删除任务
	Delete(taskID string) error

	// Close 关闭存储连接
	Close() error
}
