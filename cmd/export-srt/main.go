package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/z-wentao/autocut/pkg/models"
	"github.com/z-wentao/autocut/pkg/transcriber"
)

func main() {
	// 定义命令行参数
	summaryPath := flag.String("summary", "", "summary.json 文件路径")
	outputPath := flag.String("o", "", "输出文件路径（留空则打印到标准输出）")
	flag.Parse()

	if *summaryPath == "" {
		fmt.Println("❌ 错误：请提供 summary.json 路径")
		fmt.Println("\n使用方法：")
		fmt.Println("  go run cmd/export-srt/main.go -summary=assets/outputs/<task_id>/summary.json")
		fmt.Println("  go run cmd/export-srt/main.go -summary=... -o=out.srt")
		os.Exit(1)
	}

	// 读取并解析结果文件
	data, err := os.ReadFile(*summaryPath)
	if err != nil {
		fmt.Printf("❌ 读取文件失败: %v\n", err)
		os.Exit(1)
	}

	var result models.TranscriptionResult
	if err := json.Unmarshal(data, &result); err != nil {
		fmt.Printf("❌ 解析结果失败: %v\n", err)
		os.Exit(1)
	}

	// 重新渲染 SRT
	if *outputPath == "" {
		fmt.Print(transcriber.FormatSRT(result.Segments))
		return
	}

	if err := transcriber.GenerateSRT(result.Segments, *outputPath); err != nil {
		fmt.Printf("❌ 写入 SRT 失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ 已导出 %d 段字幕到 %s\n", len(result.Segments), *outputPath)
}
