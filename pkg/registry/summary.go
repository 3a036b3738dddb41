package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/z-wentao/autocut/pkg/models"
)

const (
	summaryFile = "summary.json" // 成功结果
	errorFile   = "error.json"   // 失败记录
)

// WriteSummary 将完整转录结果写入任务输出目录
// 原子写入：查询方永远不会读到写了一半的文件
func (r *Registry) WriteSummary(result *models.TranscriptionResult) error {
	path := filepath.Join(r.outputDir, result.TaskID, summaryFile)
	if err := writeJSONAtomic(path, result); err != nil {
		return models.NewTaskError(models.ErrKindStorage, "写入结果失败: %v", err)
	}
	return nil
}

// WriteError 将失败记录写入任务输出目录（代替 summary）
func (r *Registry) WriteError(taskID, kind, message string) error {
	path := filepath.Join(r.outputDir, taskID, errorFile)
	record := models.TaskError{Kind: kind, Message: message}
	if err := writeJSONAtomic(path, &record); err != nil {
		return models.NewTaskError(models.ErrKindStorage, "写入错误记录失败: %v", err)
	}
	return nil
}

// ReadSummary 读取任务的持久化结果
// 纯读操作，绝不触发计算，所以进程重启后依然可查：
//   - summary.json 存在 → 返回结果
//   - error.json 存在   → 返回该失败（终态）
//   - 任务目录存在但无结果 → ErrTaskNotReady
//   - 任务目录不存在       → ErrTaskNotFound
func (r *Registry) ReadSummary(taskID string) (*models.TranscriptionResult, error) {
	taskDir := filepath.Join(r.outputDir, taskID)

	// 1. 成功结果
	data, err := os.ReadFile(filepath.Join(taskDir, summaryFile))
	if err == nil {
		var result models.TranscriptionResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("解析结果文件失败: %w", err)
		}
		return &result, nil
	}

	// 2. 失败记录
	data, err = os.ReadFile(filepath.Join(taskDir, errorFile))
	if err == nil {
		var record models.TaskError
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("解析错误记录失败: %w", err)
		}
		return nil, &record
	}

	// 3. 任务目录存在但还没有结果
	if fileExists(taskDir) {
		return nil, models.ErrTaskNotReady
	}

	// 4. 从未分配过这个任务
	return nil, models.ErrTaskNotFound
}

// writeJSONAtomic 原子写 JSON 文件
// 先写同目录临时文件再 rename，避免查询方读到半个文件
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("替换文件失败: %w", err)
	}

	return nil
}
