package registry

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/z-wentao/autocut/pkg/models"
	"github.com/z-wentao/autocut/pkg/storage"
)

// Registry 任务注册表
// 负责任务的分配、状态流转和结果落盘
// 磁盘上的 summary.json / error.json 是任务结果的唯一数据源，
// Store 只用于快速查询任务的运行时状态
type Registry struct {
	store     storage.Store
	inputDir  string // 每个任务独占 inputDir/<task_id>/
	outputDir string // 每个任务独占 outputDir/<task_id>/
}

// NewRegistry 创建任务注册表
func NewRegistry(store storage.Store, inputDir, outputDir string) (*Registry, error) {
	// 确保根目录存在
	if err := os.MkdirAll(inputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输入目录失败: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	return &Registry{
		store:     store,
		inputDir:  inputDir,
		outputDir: outputDir,
	}, nil
}

// Allocate 分配一个新任务
// 生成全局唯一的 task_id，并创建该任务独占的输入/输出子目录
func (r *Registry) Allocate(filename, mediaKind string) (*models.Task, error) {
	taskID := uuid.New().String()

	taskInputDir := filepath.Join(r.inputDir, taskID)
	taskOutputDir := filepath.Join(r.outputDir, taskID)

	if err := os.MkdirAll(taskInputDir, 0755); err != nil {
		return nil, models.NewTaskError(models.ErrKindStorage, "创建任务输入目录失败: %v", err)
	}
	if err := os.MkdirAll(taskOutputDir, 0755); err != nil {
		// 回滚已创建的输入目录，避免留下半个任务
		os.RemoveAll(taskInputDir)
		return nil, models.NewTaskError(models.ErrKindStorage, "创建任务输出目录失败: %v", err)
	}

	task := &models.Task{
		TaskID:    taskID,
		Filename:  filename,
		MediaKind: mediaKind,
		InputPath: filepath.Join(taskInputDir, filename),
		OutputDir: taskOutputDir,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}

	if err := r.store.Save(task); err != nil {
		return nil, models.NewTaskError(models.ErrKindStorage, "保存任务失败: %v", err)
	}

	return task, nil
}

// Get 获取任务
func (r *Registry) Get(taskID string) (*models.Task, error) {
	return r.store.Get(taskID)
}

// List 列出所有任务
func (r *Registry) List() ([]*models.Task, error) {
	return r.store.List()
}

// MarkStatus 更新任务状态（幂等，终态之后不再变更）
func (r *Registry) MarkStatus(taskID string, status models.TaskStatus) error {
	return r.store.Update(taskID, func(t *models.Task) {
		t.Status = status
		if status.IsTerminal() {
			t.CompletedAt = time.Now()
		}
	})
}

// MarkFailed 标记任务失败并记录错误
func (r *Registry) MarkFailed(taskID string, kind, message string) error {
	return r.store.Update(taskID, func(t *models.Task) {
		t.Status = models.StatusFailed
		t.ErrorKind = kind
		t.Error = message
		t.CompletedAt = time.Now()
	})
}

// OutputDir 返回任务的独占输出目录
func (r *Registry) OutputDir(taskID string) string {
	return filepath.Join(r.outputDir, taskID)
}

// Reconcile 启动时的恢复检查
// 进程崩溃会把任务永远留在 processing 状态：
// 输出目录存在但既没有 summary.json 也没有 error.json 的任务，
// 统一补写一个失败记录，让查询方拿到终态而不是永远的"未就绪"
func (r *Registry) Reconcile() error {
	entries, err := os.ReadDir(r.outputDir)
	if err != nil {
		return fmt.Errorf("读取输出目录失败: %w", err)
	}

	orphans := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		taskID := entry.Name()
		taskDir := filepath.Join(r.outputDir, taskID)

		if fileExists(filepath.Join(taskDir, summaryFile)) ||
			fileExists(filepath.Join(taskDir, errorFile)) {
			continue // 已有终态记录
		}

		if err := r.WriteError(taskID, models.ErrKindTranscription, "任务被进程重启中断"); err != nil {
			log.Printf("⚠️ 修复遗留任务 %s 失败: %v", taskID, err)
			continue
		}
		orphans++
	}

	if orphans > 0 {
		log.Printf("✓ 启动检查：%d 个中断的任务已标记为失败", orphans)
	}

	return nil
}

// fileExists 判断文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
