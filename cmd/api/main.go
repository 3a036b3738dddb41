package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/z-wentao/autocut/pkg/config"
	"github.com/z-wentao/autocut/pkg/dispatcher"
	"github.com/z-wentao/autocut/pkg/models"
	"github.com/z-wentao/autocut/pkg/queue"
	"github.com/z-wentao/autocut/pkg/registry"
	"github.com/z-wentao/autocut/pkg/storage"
	"github.com/z-wentao/autocut/pkg/transcriber"
	"github.com/z-wentao/autocut/pkg/worker"
)

// App 应用上下文（依赖注入）
type App struct {
	config     *config.Config
	store      storage.Store
	registry   *registry.Registry
	queue      queue.Queue
	dispatcher *dispatcher.Dispatcher
	engine     *transcriber.Engine
	pool       *worker.Pool
}

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}
	log.Println("✓ 配置加载成功")

	app := &App{config: cfg}

	// 2. 初始化任务存储（根据配置选择类型）
	app.store, err = buildStore(cfg)
	if err != nil {
		log.Fatalf("❌ 初始化任务存储失败: %v", err)
	}
	log.Printf("✓ 任务存储初始化成功 (%s)", cfg.Store.Type)

	// 3. 初始化任务注册表（每个任务独占的输入/输出目录）
	app.registry, err = registry.NewRegistry(app.store, cfg.Registry.InputDir, cfg.Registry.OutputDir)
	if err != nil {
		log.Fatalf("❌ 初始化任务注册表失败: %v", err)
	}

	// 3.1 启动检查：把被重启中断的任务标记为失败
	if cfg.ReconcileOnStart() {
		if err := app.registry.Reconcile(); err != nil {
			log.Printf("⚠️ 启动检查失败: %v", err)
		}
	}

	// 4. 初始化队列（根据配置选择类型）
	switch cfg.Queue.Type {
	case "memory":
		app.queue = queue.NewMemoryQueue(cfg.Queue.BufferSize)
		log.Println("✓ 使用内存队列")
	case "rabbitmq":
		app.queue, err = queue.NewRabbitMQQueue(
			cfg.Queue.RabbitMQ.URL,
			cfg.Queue.RabbitMQ.QueueName,
			cfg.Pipeline.WorkerCount,
		)
		if err != nil {
			log.Fatalf("❌ 初始化 RabbitMQ 失败: %v", err)
		}
	default:
		log.Fatalf("❌ 不支持的队列类型: %s", cfg.Queue.Type)
	}

	// 5. 初始化流水线
	// 模型客户端在进程启动时创建一次，之后以引用传入流水线（没有全局状态）
	whisperClient := transcriber.NewWhisperClient(
		cfg.Whisper.APIKey,
		cfg.Whisper.Model,
		cfg.Whisper.Language,
		cfg.Pipeline.MaxRetries,
	)
	diarizerClient := transcriber.NewPyannoteDiarizer(cfg.Pipeline.DiarizeURL, cfg.Pipeline.HFToken)

	app.engine = transcriber.NewEngine(
		whisperClient, // Recognizer
		whisperClient, // Aligner（同一个模型客户端，词级时间戳）
		diarizerClient,
		app.registry,
		transcriber.Options{
			Model:          cfg.Whisper.Model,
			Align:          cfg.Pipeline.Align,
			Diarize:        cfg.Pipeline.Diarize,
			HFToken:        cfg.Pipeline.HFToken,
			SerializeModel: cfg.Pipeline.SerializeModel,
		},
	)
	log.Println("✓ 转录流水线初始化成功")

	// 6. 初始化分发器
	app.dispatcher = dispatcher.NewDispatcher(app.registry, app.queue)

	// 7. 启动 Worker 池
	app.pool = worker.NewPool(
		app.queue,
		app.registry,
		app.engine,
		cfg.Pipeline.WorkerCount,
		time.Duration(cfg.Pipeline.TaskTimeout)*time.Minute,
	)
	app.pool.Start()

	// 8. 启动 HTTP 服务器
	router := app.setupRouter()
	port := fmt.Sprintf(":%d", cfg.Server.Port)

	log.Printf("🚀 AutoCut 服务器启动在 http://localhost:%d", cfg.Server.Port)
	log.Printf("📝 配置信息:")
	log.Printf("   - 模型: %s", cfg.Whisper.Model)
	log.Printf("   - 词级对齐: %v", cfg.Pipeline.Align)
	log.Printf("   - 说话人分离: %v", cfg.Pipeline.Diarize)
	log.Printf("   - 并发 Worker: %d", cfg.Pipeline.WorkerCount)
	log.Printf("   - 队列类型: %s", cfg.Queue.Type)

	srv := &http.Server{
		Addr:    port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ 服务器启动失败: %v", err)
		}
	}()

	// 9. 优雅关闭
	// 顺序：先停 HTTP（不再接收新上传）→ 关队列（唤醒阻塞的 Worker）→ 停 Worker → 关存储
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP 服务器关闭超时: %v", err)
	}

	app.queue.Close()
	app.pool.Stop()
	app.store.Close()
	log.Println("✓ 服务器已关闭")
}

// buildStore 根据配置构建任务存储
func buildStore(cfg *config.Config) (storage.Store, error) {
	ttl := time.Duration(cfg.Store.Redis.TTLHours) * time.Hour

	switch cfg.Store.Type {
	case "memory":
		return storage.NewTaskStore(), nil
	case "redis":
		return storage.NewRedisTaskStore(
			cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, ttl)
	case "postgres":
		return storage.NewPostgresTaskStore(cfg.Store.Postgres.ConnStr)
	case "hybrid":
		redisStore, err := storage.NewRedisTaskStore(
			cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, ttl)
		if err != nil {
			return nil, err
		}
		pgStore, err := storage.NewPostgresTaskStore(cfg.Store.Postgres.ConnStr)
		if err != nil {
			redisStore.Close()
			return nil, err
		}
		return storage.NewHybridTaskStore(redisStore, pgStore), nil
	default:
		return nil, fmt.Errorf("不支持的存储类型: %s", cfg.Store.Type)
	}
}

// setupRouter 设置路由
func (app *App) setupRouter() *gin.Engine {
	r := gin.Default()

	// API 路由
	api := r.Group("/api")
	{
		api.GET("/ping", app.handlePing)
		api.POST("/transcribe", app.handleTranscribe)            // 上传并发起转录
		api.GET("/transcript/:task_id", app.handleGetTranscript) // 查询转录结果
		api.GET("/tasks", app.handleListTasks)                   // 列出所有任务
	}

	return r
}

// handlePing 健康检查
func (app *App) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"version": "0.1.0",
	})
}

// handleTranscribe 处理文件上传并发起异步转录
func (app *App) handleTranscribe(c *gin.Context) {
	// 1. 获取文件
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(400, gin.H{"error": "请上传文件"})
		return
	}

	// 2. 验证文件大小
	if fileHeader.Size > app.config.Server.MaxUploadSize {
		c.JSON(400, gin.H{
			"error": fmt.Sprintf("文件太大，最大 %.0f MB", float64(app.config.Server.MaxUploadSize)/1024/1024),
		})
		return
	}

	// 3. 媒体类型取 Content-Type 的主类型（audio/mpeg -> audio）
	mediaKind := strings.SplitN(fileHeader.Header.Get("Content-Type"), "/", 2)[0]

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(500, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer file.Close()

	// 4. 交给分发器：校验 → 分配任务 → 落盘 → 入队，不等待转录
	taskID, err := app.dispatcher.Ingest(file, fileHeader.Filename, mediaKind)
	if err != nil {
		var te *models.TaskError
		if errors.As(err, &te) && te.Kind == models.ErrKindUnsupportedMedia {
			c.JSON(400, gin.H{"error": "只支持 audio/video 上传"})
			return
		}
		log.Printf("❌ 接收上传失败: %v", err)
		c.JSON(500, gin.H{"error": "保存任务失败"})
		return
	}

	// 5. 立即返回 task_id（结果字段此时为空占位）
	c.JSON(http.StatusAccepted, gin.H{
		"task_id":   taskID,
		"status":    models.StatusPending,
		"model":     app.config.Whisper.Model,
		"language":  nil,
		"segments":  []models.Segment{},
		"srt_path":  "",
		"json_path": "",
	})
}

// handleGetTranscript 查询转录结果
// 只读操作：绝不触发或等待任何流水线执行
func (app *App) handleGetTranscript(c *gin.Context) {
	taskID := c.Param("task_id")

	result, err := app.registry.ReadSummary(taskID)
	if err == nil {
		c.JSON(http.StatusOK, result)
		return
	}

	// 区分三种情况：不存在 / 未完成 / 已失败
	var te *models.TaskError
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		c.JSON(404, gin.H{"status": "not_found", "error": "任务不存在"})
	case errors.Is(err, models.ErrTaskNotReady):
		c.JSON(404, gin.H{"status": "not_ready", "error": "转录尚未完成"})
	case errors.As(err, &te):
		c.JSON(http.StatusOK, gin.H{
			"task_id": taskID,
			"status":  models.StatusFailed,
			"error":   te,
		})
	default:
		c.JSON(500, gin.H{"error": fmt.Sprintf("读取结果失败: %v", err)})
	}
}

// handleListTasks 列出所有任务
func (app *App) handleListTasks(c *gin.Context) {
	tasks, err := app.registry.List()
	if err != nil {
		c.JSON(500, gin.H{"error": fmt.Sprintf("查询任务列表失败: %v", err)})
		return
	}

	c.JSON(200, gin.H{
		"tasks": tasks,
		"total": len(tasks),
	})
}
