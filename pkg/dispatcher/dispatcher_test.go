package dispatcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/z-wentao/autocut/pkg/models"
	"github.com/z-wentao/autocut/pkg/queue"
	"github.com/z-wentao/autocut/pkg/registry"
	"github.com/z-wentao/autocut/pkg/storage"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *registry.Registry, *queue.MemoryQueue) {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.NewRegistry(storage.NewTaskStore(),
		filepath.Join(dir, "inputs"), filepath.Join(dir, "outputs"))
	if err != nil {
		t.Fatalf("创建注册表: %v", err)
	}
	q := queue.NewMemoryQueue(10)
	return NewDispatcher(reg, q), reg, q
}

func TestIngestRejectsUnsupportedMedia(t *testing.T) {
	d, reg, _ := newTestDispatcher(t)

	_, err := d.Ingest(strings.NewReader("png bytes"), "cat.png", "image")

	var te *models.TaskError
	if !errors.As(err, &te) || te.Kind != models.ErrKindUnsupportedMedia {
		t.Fatalf("err = %v, want unsupported_media", err)
	}

	// 拒绝发生在任何落盘之前，注册表里不应出现任务
	tasks, _ := reg.List()
	if len(tasks) != 0 {
		t.Fatalf("被拒绝的上传不应分配任务, got %d", len(tasks))
	}
}

func TestIngestAcceptsAudio(t *testing.T) {
	d, reg, q := newTestDispatcher(t)

	payload := strings.Repeat("abc", 1000)
	taskID, err := d.Ingest(strings.NewReader(payload), "voice.mp3", "audio")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if taskID == "" {
		t.Fatal("task_id 为空")
	}

	// 上传内容完整落盘到任务独占的输入目录
	task, err := reg.Get(taskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, err := os.ReadFile(task.InputPath)
	if err != nil {
		t.Fatalf("读取输入文件: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("落盘内容不完整: %d 字节, want %d", len(data), len(payload))
	}

	if task.Status != models.StatusPending {
		t.Fatalf("status = %s, want pending", task.Status)
	}

	// 任务已入队，消息只带 task_id
	msg, err := q.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if msg.TaskID != taskID {
		t.Fatalf("队列消息 task_id = %s, want %s", msg.TaskID, taskID)
	}
}

func TestIngestEnqueueFailureLeavesTerminalRecord(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.NewRegistry(storage.NewTaskStore(),
		filepath.Join(dir, "inputs"), filepath.Join(dir, "outputs"))
	if err != nil {
		t.Fatalf("创建注册表: %v", err)
	}

	// 容量为 1 且已被占满的队列：入队必然失败
	q := queue.NewMemoryQueue(1)
	q.Enqueue(&models.TaskMessage{TaskID: "occupied"})
	d := NewDispatcher(reg, q)

	if _, err := d.Ingest(strings.NewReader("mp3"), "voice.mp3", "audio"); err == nil {
		t.Fatal("队列满时 Ingest 应返回错误")
	}

	// 分配过的任务必须落终态：Store 标记失败，磁盘上有 error.json
	tasks, _ := reg.List()
	if len(tasks) != 1 {
		t.Fatalf("任务数 = %d, want 1", len(tasks))
	}
	if tasks[0].Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", tasks[0].Status)
	}

	_, err = reg.ReadSummary(tasks[0].TaskID)
	var te *models.TaskError
	if !errors.As(err, &te) || te.Kind != models.ErrKindStorage {
		t.Fatalf("ReadSummary err = %v, 检索不应停在未就绪", err)
	}
}

func TestIngestVideoAccepted(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	if _, err := d.Ingest(strings.NewReader("mp4"), "clip.mp4", "video"); err != nil {
		t.Fatalf("video 上传应被接受: %v", err)
	}
}
