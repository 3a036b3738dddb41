package transcriber

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/z-wentao/autocut/pkg/models"
)

// FormatSRT 将分段序列渲染为 SRT 字幕内容
// 纯函数：不碰文件系统，不依赖模型，方便单独测试
func FormatSRT(segments []models.Segment) string {
	var builder strings.Builder
	subtitleIndex := 1

	for _, seg := range segments {
		// 清理文本（去除首尾空格）
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		// 写入 SRT 格式
		// 1
		// 00:00:00,000 --> 00:00:05,200
		// 字幕文本
		//
		builder.WriteString(fmt.Sprintf("%d\n", subtitleIndex))
		builder.WriteString(fmt.Sprintf("%s --> %s\n", formatSRTTime(seg.Start), formatSRTTime(seg.End)))
		builder.WriteString(fmt.Sprintf("%s\n\n", text))

		subtitleIndex++
	}

	return builder.String()
}

// GenerateSRT 生成 SRT 字幕文件
func GenerateSRT(segments []models.Segment, outputPath string) error {
	// 创建输出目录
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	// 创建文件
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("创建 SRT 文件失败: %w", err)
	}
	defer file.Close()

	// 写入文件
	if _, err := file.WriteString(FormatSRT(segments)); err != nil {
		return fmt.Errorf("写入 SRT 文件失败: %w", err)
	}

	return nil
}

// formatSRTTime 将秒数格式化为 SRT 时间格式
// 例如: 65.5 -> 00:01:05,500
func formatSRTTime(seconds float64) string {
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	millis := int((seconds - float64(int(seconds))) * 1000)

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
