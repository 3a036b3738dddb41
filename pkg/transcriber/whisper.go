package transcriber

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/z-wentao/autocut/pkg/models"
)

// WhisperClient OpenAI Whisper API 客户端
// 同时实现 Recognizer（段级识别）和 Aligner（词级时间戳）
type WhisperClient struct {
	client     *openai.Client
	model      string
	language   string // 留空则自动检测
	maxRetries int
}

// NewWhisperClient 创建 Whisper 客户端
func NewWhisperClient(apiKey, model, language string, maxRetries int) *WhisperClient {
	if model == "" {
		model = openai.Whisper1
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &WhisperClient{
		client:     openai.NewClient(apiKey),
		model:      model,
		language:   language,
		maxRetries: maxRetries,
	}
}

// Transcribe 识别整个音频文件（段级时间戳）
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath string) (*ASRResult, error) {
	resp, err := wc.createWithRetry(ctx, openai.AudioRequest{
		Model:    wc.model,
		FilePath: audioPath,
		Language: wc.language,
		// verbose_json 才带时间戳片段
		Format: openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, err
	}

	// 在协作方边界立刻规整为本层的 Segment
	segments := make([]models.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, models.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		})
	}

	return &ASRResult{
		Language: resp.Language,
		Segments: segments,
	}, nil
}

// Align 重新请求词级时间戳，把段级结果细化为词级
// 模型没返回词信息时退回原有分段（不破坏流水线）
func (wc *WhisperClient) Align(ctx context.Context, segments []models.Segment, audioPath string) ([]models.Segment, error) {
	resp, err := wc.createWithRetry(ctx, openai.AudioRequest{
		Model:    wc.model,
		FilePath: audioPath,
		Language: wc.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Words) == 0 {
		return segments, nil
	}

	aligned := make([]models.Segment, 0, len(resp.Words))
	for _, w := range resp.Words {
		aligned = append(aligned, models.Segment{
			Start: w.Start,
			End:   w.End,
			Text:  w.Word,
		})
	}

	return aligned, nil
}

// createWithRetry 带重试的 API 调用（指数退避）
func (wc *WhisperClient) createWithRetry(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	var lastErr error

	for i := 0; i < wc.maxRetries; i++ {
		resp, err := wc.client.CreateTranscription(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		// 检查是否因为 Context 取消
		if ctx.Err() != nil {
			return openai.AudioResponse{}, fmt.Errorf("任务被取消: %v", ctx.Err())
		}

		// 指数退避
		if i < wc.maxRetries-1 {
			waitTime := time.Duration(1<<uint(i)) * time.Second // 1s, 2s, 4s, 8s...
			select {
			case <-time.After(waitTime):
				continue
			case <-ctx.Done():
				return openai.AudioResponse{}, fmt.Errorf("任务被取消: %v", ctx.Err())
			}
		}
	}

	return openai.AudioResponse{}, fmt.Errorf("重试 %d 次后仍然失败: %v", wc.maxRetries, lastErr)
}
