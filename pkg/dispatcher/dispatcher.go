package dispatcher

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/z-wentao/autocut/pkg/models"
	"github.com/z-wentao/autocut/pkg/queue"
	"github.com/z-wentao/autocut/pkg/registry"
)

// 上传拷贝的缓冲区大小（1 MiB）
// 分块拷贝，整个文件不会一次性读进内存
const copyBufferSize = 1 << 20

// Dispatcher 任务分发器
// 接收上传 → 分配任务 → 落盘 → 入队，全程不等待转录完成
// 独立于 HTTP 层，方便单独测试
type Dispatcher struct {
	registry *registry.Registry
	queue    queue.Queue
}

// NewDispatcher 创建分发器
func NewDispatcher(reg *registry.Registry, q queue.Queue) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		queue:    q,
	}
}

// Ingest 接收一个媒体上传，返回 task_id
// mediaKind 必须是 audio 或 video，落盘之前就校验（快速失败，不分配任务）
func (d *Dispatcher) Ingest(r io.Reader, filename, mediaKind string) (string, error) {
	// 1. 校验媒体类型（在写任何字节之前）
	if mediaKind != "audio" && mediaKind != "video" {
		return "", models.NewTaskError(models.ErrKindUnsupportedMedia,
			"只支持 audio/video 上传，收到: %s", mediaKind)
	}

	// 2. 分配任务（独占的输入/输出子目录）
	task, err := d.registry.Allocate(filename, mediaKind)
	if err != nil {
		return "", err
	}

	// 3. 分块拷贝上传内容到任务的输入目录
	if err := saveUpload(r, task.InputPath); err != nil {
		d.abort(task.TaskID, err)
		return "", models.NewTaskError(models.ErrKindStorage, "保存上传文件失败: %v", err)
	}

	// 4. 加入队列（异步处理，立即返回）
	// 队列消息只带 task_id；task_id 每次上传都是新分配的，
	// 不可能有两条消息指向同一个任务
	if err := d.queue.Enqueue(&models.TaskMessage{TaskID: task.TaskID}); err != nil {
		d.abort(task.TaskID, err)
		return "", fmt.Errorf("任务加入队列失败: %w", err)
	}

	log.Printf("✓ 任务已加入队列: %s (%s)", task.TaskID, filename)

	return task.TaskID, nil
}

// abort 分配之后的失败收尾
// Store 状态和磁盘上的 error.json 一起落终态，
// 这个任务目录不会停留在"未就绪"等下次重启的恢复检查
func (d *Dispatcher) abort(taskID string, err error) {
	if werr := d.registry.WriteError(taskID, models.ErrKindStorage, err.Error()); werr != nil {
		log.Printf("⚠️ 写入错误记录失败: %v", werr)
	}
	d.registry.MarkFailed(taskID, models.ErrKindStorage, err.Error())
}

// saveUpload 将上传流写入目标文件（分块拷贝）
func saveUpload(r io.Reader, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}
	defer out.Close()

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(out, r, buf); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}

	return nil
}
