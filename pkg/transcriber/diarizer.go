package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/z-wentao/autocut/pkg/models"
)

// PyannoteDiarizer 说话人分离客户端
// 对接一个 pyannote 推理服务：上传音频，返回按说话人划分的发言区间
type PyannoteDiarizer struct {
	baseURL    string
	token      string // HuggingFace 访问凭证
	httpClient *http.Client
}

// NewPyannoteDiarizer 创建说话人分离客户端
func NewPyannoteDiarizer(baseURL, token string) *PyannoteDiarizer {
	return &PyannoteDiarizer{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute, // 说话人分离比识别慢，超时放宽
		},
	}
}

// diarizeResponse 服务端响应
type diarizeResponse struct {
	Turns []models.SpeakerTurn `json:"turns"`
}

// Diarize 对整个音频做说话人分离
func (pd *PyannoteDiarizer) Diarize(ctx context.Context, audioPath string) ([]models.SpeakerTurn, error) {
	// 1. 打开音频文件
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %v", err)
	}
	defer file.Close()

	// 2. 构造 multipart 表单
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("创建表单失败: %v", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("复制文件失败: %v", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("关闭表单失败: %v", err)
	}

	// 3. 创建 HTTP 请求
	req, err := http.NewRequestWithContext(ctx, "POST", pd.baseURL+"/diarize", body)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %v", err)
	}

	req.Header.Set("Authorization", "Bearer "+pd.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	// 4. 发送请求
	resp, err := pd.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	// 5. 检查响应状态
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("服务返回错误 (状态码 %d): %s", resp.StatusCode, string(bodyBytes))
	}

	// 6. 解析响应
	var diarizeResp diarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&diarizeResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %v", err)
	}

	return diarizeResp.Turns, nil
}
