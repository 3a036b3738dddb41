package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/z-wentao/autocut/pkg/models"
	"github.com/z-wentao/autocut/pkg/queue"
	"github.com/z-wentao/autocut/pkg/registry"
	"github.com/z-wentao/autocut/pkg/storage"
	"github.com/z-wentao/autocut/pkg/transcriber"
)

// fakeRecognizer 测试用识别模型
type fakeRecognizer struct {
	err error
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, audioPath string) (*transcriber.ASRResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &transcriber.ASRResult{
		Language: "en",
		Segments: []models.Segment{{Start: 0, End: 1, Text: "hi"}},
	}, nil
}

type testEnv struct {
	reg  *registry.Registry
	q    *queue.MemoryQueue
	pool *Pool
}

func newTestEnv(t *testing.T, recErr error) *testEnv {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.NewRegistry(storage.NewTaskStore(),
		filepath.Join(dir, "inputs"), filepath.Join(dir, "outputs"))
	if err != nil {
		t.Fatalf("创建注册表: %v", err)
	}

	engine := transcriber.NewEngine(&fakeRecognizer{err: recErr}, nil, nil, reg,
		transcriber.Options{Model: "whisper-1"})

	q := queue.NewMemoryQueue(10)
	pool := NewPool(q, reg, engine, 2, time.Minute)
	pool.Start()

	t.Cleanup(func() {
		q.Close()
		pool.Stop()
	})

	return &testEnv{reg: reg, q: q, pool: pool}
}

// waitStatus 轮询等待任务进入目标状态
func waitStatus(t *testing.T, reg *registry.Registry, taskID string, want models.TaskStatus) *models.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := reg.Get(taskID)
		if err == nil && task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	task, _ := reg.Get(taskID)
	t.Fatalf("等待状态 %s 超时, 当前: %+v", want, task)
	return nil
}

func TestPoolCompletesTask(t *testing.T) {
	env := newTestEnv(t, nil)

	task, err := env.reg.Allocate("a.mp3", "audio")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := env.q.Enqueue(&models.TaskMessage{TaskID: task.TaskID}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitStatus(t, env.reg, task.TaskID, models.StatusCompleted)

	// 完成后结果可以稳定读取
	result, err := env.reg.ReadSummary(task.TaskID)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if len(result.Segments) != 1 || result.Segments[0].Text != "hi" {
		t.Fatalf("结果不符: %+v", result)
	}
}

func TestPoolContainsFailure(t *testing.T) {
	env := newTestEnv(t, errors.New("model down"))

	// 先后两个任务：第一个失败不应影响第二个
	t1, _ := env.reg.Allocate("a.mp3", "audio")
	env.q.Enqueue(&models.TaskMessage{TaskID: t1.TaskID})

	failed := waitStatus(t, env.reg, t1.TaskID, models.StatusFailed)
	if failed.ErrorKind != models.ErrKindTranscription {
		t.Fatalf("error_kind = %s, want transcription_error", failed.ErrorKind)
	}

	// 失败被持久化为 error.json，检索返回终态失败而不是部分结果
	_, err := env.reg.ReadSummary(t1.TaskID)
	var te *models.TaskError
	if !errors.As(err, &te) || te.Kind != models.ErrKindTranscription {
		t.Fatalf("ReadSummary err = %v, want *TaskError", err)
	}

	// Worker 循环还活着，仍能接收新任务
	t2, _ := env.reg.Allocate("b.mp3", "audio")
	env.q.Enqueue(&models.TaskMessage{TaskID: t2.TaskID})
	waitStatus(t, env.reg, t2.TaskID, models.StatusFailed)
}

func TestPoolSkipsTerminalTask(t *testing.T) {
	env := newTestEnv(t, nil)

	task, _ := env.reg.Allocate("a.mp3", "audio")
	env.q.Enqueue(&models.TaskMessage{TaskID: task.TaskID})
	waitStatus(t, env.reg, task.TaskID, models.StatusCompleted)

	// 同一个任务的重复消息：终态任务直接跳过，不会再次执行
	env.q.Enqueue(&models.TaskMessage{TaskID: task.TaskID})
	time.Sleep(100 * time.Millisecond)

	got, _ := env.reg.Get(task.TaskID)
	if got.Status != models.StatusCompleted {
		t.Fatalf("status = %s, 终态任务被重复执行", got.Status)
	}
}
