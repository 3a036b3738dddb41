package models

import (
	"errors"
	"fmt"
)

// 错误类别（持久化到 error.json 的 kind 字段）
const (
	ErrKindUnsupportedMedia = "unsupported_media" // 不支持的媒体类型
	ErrKindStorage          = "storage_error"     // 任务存储分配/写入失败
	ErrKindConfiguration    = "configuration_error"
	ErrKindTranscription    = "transcription_error"
)

// TaskError 带类别的任务错误
// 类别用于持久化和接口返回，Message 面向调用方
type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewTaskError 创建任务错误
func NewTaskError(kind, format string, args ...any) *TaskError {
	return &TaskError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorKind 提取错误类别
// 非 TaskError 一律归为 transcription_error（对本层不透明的模型错误）
func ErrorKind(err error) string {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ErrKindTranscription
}

// 检索协议的哨兵错误
var (
	// ErrTaskNotFound 任务从未被分配过
	ErrTaskNotFound = errors.New("任务不存在")

	// ErrTaskNotReady 任务已分配但结果尚未落盘
	ErrTaskNotReady = errors.New("转录尚未完成")
)
