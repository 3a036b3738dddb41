package transcriber

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/z-wentao/autocut/pkg/models"
	"github.com/z-wentao/autocut/pkg/registry"
)

// Recognizer 语音识别模型（外部协作方）
// 返回的分段已规整为本层的 Segment，协作方自己的数据形状不会外泄
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string) (*ASRResult, error)
}

// Aligner 词级时间戳对齐模型（外部协作方）
type Aligner interface {
	Align(ctx context.Context, segments []models.Segment, audioPath string) ([]models.Segment, error)
}

// Diarizer 说话人分离模型（外部协作方）
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) ([]models.SpeakerTurn, error)
}

// ASRResult 识别阶段的规整输出
type ASRResult struct {
	Language string // 检测到的语言，模型没给则为空
	Segments []models.Segment
}

// Options 流水线开关
type Options struct {
	Model          string // 记录到结果里的模型名
	Align          bool   // 词级对齐开关
	Diarize        bool   // 说话人分离开关
	HFToken        string // 说话人分离后端凭证
	SerializeModel bool   // 模型不支持并发调用时，串行化识别阶段
}

// Engine 转录流水线
// 阶段严格顺序执行：识别 → 对齐（可选）→ 说话人分离（可选）→ 落盘
type Engine struct {
	recognizer Recognizer
	aligner    Aligner
	diarizer   Diarizer
	registry   *registry.Registry
	opts       Options

	// 保护共享模型句柄（仅 SerializeModel 开启时使用）
	modelMutex sync.Mutex
}

// NewEngine 创建流水线
func NewEngine(rec Recognizer, al Aligner, di Diarizer, reg *registry.Registry, opts Options) *Engine {
	return &Engine{
		recognizer: rec,
		aligner:    al,
		diarizer:   di,
		registry:   reg,
		opts:       opts,
	}
}

// Process 执行一个任务的完整流水线，返回最终结果
// 任何阶段失败都会返回带类别的错误，由调用方负责落盘和状态流转；
// 本函数自身绝不 panic 到调用方之外
func (e *Engine) Process(ctx context.Context, task *models.Task) (*models.TranscriptionResult, error) {
	// 阶段 1：语音识别（必选）
	log.Printf("🎙️ [%s] 识别中: %s", task.TaskID, task.Filename)
	asr, err := e.recognize(ctx, task.InputPath)
	if err != nil {
		return nil, models.NewTaskError(models.ErrKindTranscription, "语音识别失败: %v", err)
	}

	segments := normalizeSegments(asr.Segments)
	language := asr.Language
	if language == "" {
		language = "unknown" // 模型没返回语言也要有值，不能悄悄丢掉
	}
	log.Printf("✓ [%s] 识别完成: %d 段, 语言=%s", task.TaskID, len(segments), language)

	// 阶段 2：词级对齐（可选，关闭时识别结果原样通过）
	if e.opts.Align {
		aligned, err := e.aligner.Align(ctx, segments, task.InputPath)
		if err != nil {
			return nil, models.NewTaskError(models.ErrKindTranscription, "时间戳对齐失败: %v", err)
		}
		segments = normalizeSegments(aligned)
		log.Printf("✓ [%s] 对齐完成: %d 段", task.TaskID, len(segments))
	}

	// 阶段 3：说话人分离（可选）
	if e.opts.Diarize {
		// 凭证检查放在任何音频处理之前，避免白跑
		if e.opts.HFToken == "" {
			return nil, models.NewTaskError(models.ErrKindConfiguration,
				"开启说话人分离必须提供访问凭证")
		}

		turns, err := e.diarizer.Diarize(ctx, task.InputPath)
		if err != nil {
			return nil, models.NewTaskError(models.ErrKindTranscription, "说话人分离失败: %v", err)
		}

		segments = AssignSpeakers(segments, turns)
		log.Printf("✓ [%s] 说话人分离完成: %d 个发言区间", task.TaskID, len(turns))
	}

	// 阶段 4：落盘（SRT 字幕 + 结构化结果）
	outputDir := e.registry.OutputDir(task.TaskID)
	srtPath := filepath.Join(outputDir, "transcript.srt")
	if err := GenerateSRT(segments, srtPath); err != nil {
		return nil, models.NewTaskError(models.ErrKindStorage, "生成字幕文件失败: %v", err)
	}

	result := &models.TranscriptionResult{
		TaskID:   task.TaskID,
		Model:    e.opts.Model,
		Language: language,
		Segments: segments,
		SRTPath:  srtPath,
		JSONPath: filepath.Join(outputDir, "summary.json"),
	}

	// summary.json 最后写：它一旦出现，查询方就认为任务完成
	if err := e.registry.WriteSummary(result); err != nil {
		return nil, err
	}

	return result, nil
}

// recognize 调用识别模型
// SerializeModel 开启时串行化访问（底层模型不支持并发调用的场合）
func (e *Engine) recognize(ctx context.Context, audioPath string) (*ASRResult, error) {
	if e.opts.SerializeModel {
		e.modelMutex.Lock()
		defer e.modelMutex.Unlock()
	}
	return e.recognizer.Transcribe(ctx, audioPath)
}

// normalizeSegments 规整协作方输出
// 去除文本首尾空格，丢弃空白段，保持原始顺序
func normalizeSegments(in []models.Segment) []models.Segment {
	out := make([]models.Segment, 0, len(in))
	for _, seg := range in {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		out = append(out, seg)
	}
	return out
}
