package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/z-wentao/autocut/pkg/models"
	"github.com/z-wentao/autocut/pkg/storage"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	reg, err := NewRegistry(storage.NewTaskStore(),
		filepath.Join(dir, "inputs"), filepath.Join(dir, "outputs"))
	if err != nil {
		t.Fatalf("创建注册表: %v", err)
	}
	return reg
}

func TestAllocateUnique(t *testing.T) {
	reg := newTestRegistry(t)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		task, err := reg.Allocate("a.mp3", "audio")
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if seen[task.TaskID] {
			t.Fatalf("task_id 重复: %s", task.TaskID)
		}
		seen[task.TaskID] = true
	}
}

func TestAllocateCreatesExclusiveDirs(t *testing.T) {
	reg := newTestRegistry(t)

	t1, _ := reg.Allocate("a.mp3", "audio")
	t2, _ := reg.Allocate("b.mp3", "video")

	// 每个任务独占自己的输入/输出子目录
	if filepath.Dir(t1.InputPath) == filepath.Dir(t2.InputPath) {
		t.Fatal("两个任务共享了输入目录")
	}
	if t1.OutputDir == t2.OutputDir {
		t.Fatal("两个任务共享了输出目录")
	}

	for _, dir := range []string{filepath.Dir(t1.InputPath), t1.OutputDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("任务目录未创建: %s (%v)", dir, err)
		}
	}

	if t1.Status != models.StatusPending {
		t.Fatalf("初始状态 = %s, want pending", t1.Status)
	}
}

func TestReadSummaryProtocol(t *testing.T) {
	reg := newTestRegistry(t)

	// 从未分配过的任务 → NotFound
	if _, err := reg.ReadSummary("no-such-task"); !errors.Is(err, models.ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}

	// 已分配但结果未落盘 → NotReady
	task, _ := reg.Allocate("a.mp3", "audio")
	if _, err := reg.ReadSummary(task.TaskID); !errors.Is(err, models.ErrTaskNotReady) {
		t.Fatalf("err = %v, want ErrTaskNotReady", err)
	}

	// 写入结果后 → 完整返回（往返一致）
	result := &models.TranscriptionResult{
		TaskID:   task.TaskID,
		Model:    "whisper-1",
		Language: "zh",
		Segments: []models.Segment{
			{Start: 0, End: 1.5, Text: "你好", Speaker: "SPEAKER_00"},
			{Start: 1.5, End: 3, Text: "世界"},
		},
		SRTPath:  "x.srt",
		JSONPath: "x.json",
	}
	if err := reg.WriteSummary(result); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	got, err := reg.ReadSummary(task.TaskID)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if got.Model != result.Model || got.Language != result.Language {
		t.Fatalf("往返后元数据不符: %+v", got)
	}
	if len(got.Segments) != 2 || got.Segments[0] != result.Segments[0] || got.Segments[1] != result.Segments[1] {
		t.Fatalf("往返后分段不符: %+v", got.Segments)
	}

	// 重复读取结果一致（幂等）
	again, err := reg.ReadSummary(task.TaskID)
	if err != nil || again.TaskID != got.TaskID {
		t.Fatalf("重复读取不一致: %v %v", again, err)
	}
}

func TestReadSummaryFailedTask(t *testing.T) {
	reg := newTestRegistry(t)
	task, _ := reg.Allocate("a.mp3", "audio")

	if err := reg.WriteError(task.TaskID, models.ErrKindTranscription, "模型调用失败"); err != nil {
		t.Fatalf("WriteError: %v", err)
	}

	// 失败是可查询的终态，与"未就绪"区分开
	_, err := reg.ReadSummary(task.TaskID)
	var te *models.TaskError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TaskError", err)
	}
	if te.Kind != models.ErrKindTranscription || te.Message != "模型调用失败" {
		t.Fatalf("错误记录不符: %+v", te)
	}
}

func TestMarkStatusMonotonic(t *testing.T) {
	reg := newTestRegistry(t)
	task, _ := reg.Allocate("a.mp3", "audio")

	reg.MarkStatus(task.TaskID, models.StatusProcessing)
	reg.MarkStatus(task.TaskID, models.StatusCompleted)

	// 终态之后的状态变更被忽略
	reg.MarkStatus(task.TaskID, models.StatusProcessing)

	got, _ := reg.Get(task.TaskID)
	if got.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed (终态不可回退)", got.Status)
	}
	if got.CompletedAt.IsZero() {
		t.Fatal("终态任务应记录完成时间")
	}
}

func TestReconcile(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewTaskStore()
	inputDir := filepath.Join(dir, "inputs")
	outputDir := filepath.Join(dir, "outputs")

	reg, err := NewRegistry(store, inputDir, outputDir)
	if err != nil {
		t.Fatalf("创建注册表: %v", err)
	}

	// 三种遗留状态：已完成 / 已失败 / 被中断
	done, _ := reg.Allocate("done.mp3", "audio")
	reg.WriteSummary(&models.TranscriptionResult{TaskID: done.TaskID, Model: "m", Language: "en"})

	failed, _ := reg.Allocate("failed.mp3", "audio")
	reg.WriteError(failed.TaskID, models.ErrKindTranscription, "boom")

	orphan, _ := reg.Allocate("orphan.mp3", "audio")

	// 模拟进程重启后的启动检查
	reg2, err := NewRegistry(storage.NewTaskStore(), inputDir, outputDir)
	if err != nil {
		t.Fatalf("重建注册表: %v", err)
	}
	if err := reg2.Reconcile(); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// 被中断的任务补上了失败记录
	_, err = reg2.ReadSummary(orphan.TaskID)
	var te *models.TaskError
	if !errors.As(err, &te) || te.Kind != models.ErrKindTranscription {
		t.Fatalf("中断任务应标记为失败, got %v", err)
	}

	// 已有终态记录的任务不受影响
	if _, err := reg2.ReadSummary(done.TaskID); err != nil {
		t.Fatalf("已完成任务被破坏: %v", err)
	}
	_, err = reg2.ReadSummary(failed.TaskID)
	if !errors.As(err, &te) || te.Message != "boom" {
		t.Fatalf("已失败任务的记录被覆盖: %v", err)
	}
}
