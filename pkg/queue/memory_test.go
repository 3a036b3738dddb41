package queue

import (
	"testing"

	"github.com/z-wentao/autocut/pkg/models"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue(10)

	for _, id := range []string{"t1", "t2", "t3"} {
		if err := q.Enqueue(&models.TaskMessage{TaskID: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}

	for _, want := range []string{"t1", "t2", "t3"} {
		msg, err := q.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if msg.TaskID != want {
			t.Fatalf("task_id = %s, want %s", msg.TaskID, want)
		}
	}
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)

	if err := q.Enqueue(&models.TaskMessage{TaskID: "t1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// 队列满时立即报错，不阻塞上传请求
	if err := q.Enqueue(&models.TaskMessage{TaskID: "t2"}); err == nil {
		t.Fatal("队列满时应返回错误")
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(1)
	q.Close()

	if _, err := q.Dequeue(); err == nil {
		t.Fatal("关闭后 Dequeue 应返回错误")
	}
}

func TestMemoryQueueEnqueueAfterClose(t *testing.T) {
	q := NewMemoryQueue(1)
	q.Close()

	// 关闭后入队：返回错误而不是 panic（关停期间可能还有在途上传）
	if err := q.Enqueue(&models.TaskMessage{TaskID: "t1"}); err == nil {
		t.Fatal("关闭后 Enqueue 应返回错误")
	}

	// 重复关闭是幂等的
	if err := q.Close(); err != nil {
		t.Fatalf("重复 Close: %v", err)
	}
}
