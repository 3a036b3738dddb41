package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/z-wentao/autocut/pkg/models"
	"github.com/z-wentao/autocut/pkg/queue"
	"github.com/z-wentao/autocut/pkg/registry"
	"github.com/z-wentao/autocut/pkg/transcriber"
)

// Pool Worker 池
// 多个 Worker goroutine 共享一个队列，每个任务只会被一个 Worker 处理，
// 单个任务的失败被局部消化，不影响其它任务和进程本身
type Pool struct {
	queue       queue.Queue
	registry    *registry.Registry
	engine      *transcriber.Engine
	workerCount int
	taskTimeout time.Duration

	// 正在处理中的 task_id 集合
	// 防止同一个任务（如消息被重复投递时）被并发执行
	inflight   map[string]struct{}
	inflightMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool 创建 Worker 池
func NewPool(q queue.Queue, reg *registry.Registry, engine *transcriber.Engine, workerCount int, taskTimeout time.Duration) *Pool {
	if workerCount <= 0 {
		workerCount = 2
	}
	if taskTimeout <= 0 {
		taskTimeout = 30 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		queue:       q,
		registry:    reg,
		engine:      engine,
		workerCount: workerCount,
		taskTimeout: taskTimeout,
		inflight:    make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 启动所有 Worker
func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	log.Printf("✓ 已启动 %d 个 Worker", p.workerCount)
}

// Stop 停止所有 Worker（等待当前任务处理完）
func (p *Pool) Stop() {
	log.Println("正在停止 Worker...")
	p.cancel()
	p.wg.Wait()
	log.Println("✓ 所有 Worker 已停止")
}

// run Worker 主循环
func (p *Pool) run(id int) {
	defer p.wg.Done()

	log.Printf("Worker #%d 已启动，等待任务...", id)

	for {
		// 检查是否需要停止
		select {
		case <-p.ctx.Done():
			log.Printf("Worker #%d 已停止", id)
			return
		default:
		}

		// 从队列获取任务（阻塞）
		msg, err := p.queue.Dequeue()
		if err != nil {
			select {
			case <-p.ctx.Done():
				log.Printf("Worker #%d 已停止", id)
				return
			default:
			}
			log.Printf("从队列获取任务失败: %v", err)
			time.Sleep(1 * time.Second)
			continue
		}

		p.processMessage(id, msg)
	}
}

// processMessage 处理一条队列消息
func (p *Pool) processMessage(workerID int, msg *models.TaskMessage) {
	// 同一个任务至多只有一次执行（消息重复投递时直接确认丢弃）
	if !p.tryAcquire(msg.TaskID) {
		log.Printf("⚠️ 任务 %s 已在处理中，丢弃重复消息", msg.TaskID)
		p.queue.Ack(msg)
		return
	}
	defer p.release(msg.TaskID)

	// 任务单独处理，内部任何失败都不会波及 Worker 循环
	if err := p.processTask(workerID, msg.TaskID); err != nil {
		log.Printf("❌ 任务 %s 失败: %v", msg.TaskID, err)
		// 不重新入队：失败的任务不自动重试
		p.queue.Nack(msg, false)
		return
	}

	p.queue.Ack(msg)
}

// processTask 执行单个任务的流水线
func (p *Pool) processTask(workerID int, taskID string) (err error) {
	// 流水线出问题绝不能带崩 Worker 进程
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("流水线 panic: %v", r)
			p.markFailed(taskID, models.NewTaskError(models.ErrKindTranscription, "%v", r))
		}
	}()

	task, err := p.registry.Get(taskID)
	if err != nil {
		return fmt.Errorf("读取任务失败: %w", err)
	}

	// 终态任务不再执行（状态单调性）
	if task.Status.IsTerminal() {
		log.Printf("⚠️ 任务 %s 已是终态 (%s)，跳过", taskID, task.Status)
		return nil
	}

	log.Printf("📝 [Worker-%d] 开始处理任务: %s (%s)", workerID, taskID, task.Filename)

	// 更新状态为处理中
	p.registry.MarkStatus(taskID, models.StatusProcessing)

	// 创建任务特定的 Context（限制单个任务的最长执行时间）
	ctx, cancel := context.WithTimeout(p.ctx, p.taskTimeout)
	defer cancel()

	// 调用流水线
	startTime := time.Now()
	result, err := p.engine.Process(ctx, task)
	if err != nil {
		p.markFailed(taskID, err)
		return err
	}

	// 处理成功
	p.registry.MarkStatus(taskID, models.StatusCompleted)

	duration := time.Since(startTime)
	log.Printf("🎉 任务 %s 完成！共 %d 段，耗时 %.2f 秒", taskID, len(result.Segments), duration.Seconds())

	return nil
}

// markFailed 任务失败的统一收尾：落盘错误记录 + 状态流转
func (p *Pool) markFailed(taskID string, err error) {
	kind := models.ErrorKind(err)

	// error.json 是失败的持久化记录（代替 summary.json）
	if werr := p.registry.WriteError(taskID, kind, err.Error()); werr != nil {
		log.Printf("⚠️ 写入错误记录失败: %v", werr)
	}

	p.registry.MarkFailed(taskID, kind, err.Error())
}

// tryAcquire 尝试占用一个 task_id
func (p *Pool) tryAcquire(taskID string) bool {
	p.inflightMu.Lock()
	defer p.inflightMu.Unlock()

	if _, exists := p.inflight[taskID]; exists {
		return false
	}
	p.inflight[taskID] = struct{}{}
	return true
}

// release 释放 task_id
func (p *Pool) release(taskID string) {
	p.inflightMu.Lock()
	defer p.inflightMu.Unlock()

	delete(p.inflight, taskID)
}
