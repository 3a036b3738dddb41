package storage

import (
	"fmt"
	"sync"

	"github.com/z-wentao/autocut/pkg/models"
)

// TaskStore 任务存储（内存实现）
// 使用 RWMutex 保证并发安全
type TaskStore struct {
	tasks map[string]*models.Task
	mu    sync.RWMutex // 读写锁
}

// NewTaskStore 创建任务存储
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*models.Task),
	}
}

// Save 保存任务
func (ts *TaskStore) Save(task *models.Task) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.tasks[task.TaskID] = task
	return nil
}

// Get 获取任务
func (ts *TaskStore) Get(taskID string) (*models.Task, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	task, exists := ts.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("任务不存在: %s", taskID)
	}

	// 返回副本，避免调用方绕过锁直接改内部状态
	copied := *task
	return &copied, nil
}

// Update 更新任务状态
// 终态（completed/failed）之后不允许再变更
func (ts *TaskStore) Update(taskID string, updateFn func(*models.Task)) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	task, exists := ts.tasks[taskID]
	if !exists {
		return fmt.Errorf("任务不存在: %s", taskID)
	}

	if task.Status.IsTerminal() {
		// 状态单调性：终态任务直接忽略更新
		return nil
	}

	updateFn(task)
	return nil
}

// List 列出所有任务
func (ts *TaskStore) List() ([]*models.Task, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(ts.tasks))
	for _, task := range ts.tasks {
		copied := *task
		tasks = append(tasks, &copied)
	}

	return tasks, nil
}

// Delete 删除任务
func (ts *TaskStore) Delete(taskID string) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, exists := ts.tasks[taskID]; !exists {
		return fmt.Errorf("任务不存在: %s", taskID)
	}

	delete(ts.tasks, taskID)
	return nil
}

// Close 关闭存储（内存存储无需关闭）
func (ts *TaskStore) Close() error {
	return nil
}
