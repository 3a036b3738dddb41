package models

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"    // 已创建，等待调度
	StatusProcessing TaskStatus = "processing" // 流水线执行中
	StatusCompleted  TaskStatus = "completed"  // 终态：成功
	StatusFailed     TaskStatus = "failed"     // 终态：失败
)

// IsTerminal 判断状态是否为终态（终态之后不允许再变更）
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 一次转录任务
// 每个任务独占 inputs/<task_id>/ 和 outputs/<task_id>/ 两个子目录
type Task struct {
	TaskID      string     `json:"task_id"`
	Filename    string     `json:"filename"`
	MediaKind   string     `json:"media_kind"` // audio 或 video
	InputPath   string     `json:"input_path"`
	OutputDir   string     `json:"output_dir"`
	Status      TaskStatus `json:"status"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt time.Time  `json:"completed_at,omitempty"`
}

// Segment 一段转录文本
// Speaker 仅在启用说话人分离后才会填充，否则序列化时省略
type Segment struct {
	Start   float64 `json:"start"` // 开始时间（秒）
	End     float64 `json:"end"`   // 结束时间（秒）
	Text    string  `json:"text"`  // 文本内容（已去除首尾空格）
	Speaker string  `json:"speaker,omitempty"`
}

// SpeakerTurn 说话人分离输出的一个发言区间
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// TranscriptionResult 完整的转录结果（summary.json 的内容）
// Language 为 "unknown" 表示模型未返回语言信息，不会留空
type TranscriptionResult struct {
	TaskID   string    `json:"task_id"`
	Model    string    `json:"model"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
	SRTPath  string    `json:"srt_path"`
	JSONPath string    `json:"json_path"`
}

// TaskMessage 队列中传递的消息
// 只带 task_id，任务详情统一从 Store 读取（保证单一数据源）
type TaskMessage struct {
	TaskID string `json:"task_id"`

	// RabbitMQ 相关（不序列化到 JSON）
	DeliveryTag      uint64 `json:"-"`
	RabbitMQDelivery any    `json:"-"`
}
