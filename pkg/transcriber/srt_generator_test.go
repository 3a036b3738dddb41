package transcriber

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/z-wentao/autocut/pkg/models"
)

func TestFormatSRT(t *testing.T) {
	segments := []models.Segment{
		{Start: 0.0, End: 1.5, Text: "Hello"},
		{Start: 1.5, End: 3.25, Text: "world"},
	}

	want := "1\n00:00:00,000 --> 00:00:01,500\nHello\n\n" +
		"2\n00:00:01,500 --> 00:00:03,250\nworld\n\n"

	got := FormatSRT(segments)
	if got != want {
		t.Fatalf("FormatSRT 输出不符:\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatSRTSkipsEmptyText(t *testing.T) {
	segments := []models.Segment{
		{Start: 0.0, End: 1.0, Text: "   "},
		{Start: 1.0, End: 2.0, Text: " hi "},
	}

	want := "1\n00:00:01,000 --> 00:00:02,000\nhi\n\n"

	got := FormatSRT(segments)
	if got != want {
		t.Fatalf("FormatSRT 输出不符:\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatSRTTime(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{65.5, "00:01:05,500"},
		{3661.25, "01:01:01,250"},
		// 3661.042 的 float64 表示略小于真值，毫秒部分向下取整
		{3661.042, "01:01:01,041"},
		{3600, "01:00:00,000"},
	}

	for _, c := range cases {
		if got := formatSRTTime(c.seconds); got != c.want {
			t.Errorf("formatSRTTime(%v) = %s, want %s", c.seconds, got, c.want)
		}
	}
}

func TestGenerateSRT(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "transcript.srt")

	segments := []models.Segment{
		{Start: 0, End: 1, Text: "测试"},
	}

	if err := GenerateSRT(segments, path); err != nil {
		t.Fatalf("GenerateSRT: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取输出文件: %v", err)
	}
	if string(data) != FormatSRT(segments) {
		t.Fatalf("文件内容与 FormatSRT 不一致")
	}
}
