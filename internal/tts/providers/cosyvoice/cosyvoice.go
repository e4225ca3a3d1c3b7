// internal/tts/providers/cosyvoice/cosyvoice.go
package cosyvoice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Corphon/JubenshaMCP/internal/tts"
	"golang.org/x/sync/errgroup"
)

// 单段合成的最大字符数，超长文本会切段并发合成后拼接
const maxSegmentRunes = 120

func init() {
	tts.Register("cosyvoice", func() tts.Provider {
		return &Provider{
			baseURL: "https://api.cosyvoice.cn/v1",
		}
	})
}

type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultVoice string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("CosyVoice API密钥未提供")
	}

	p.apiKey = apiKey
	p.client = &http.Client{Timeout: 30 * time.Second}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = baseURL
	}

	if voice, exists := config["default_voice"]; exists && voice != "" {
		p.defaultVoice = voice
	} else {
		p.defaultVoice = "zh_female_wenrou"
	}

	return nil
}

func (p *Provider) GetName() string {
	return "CosyVoice"
}

// Synthesize 合成一段语音
// 文本先按标点切段，各段并发提交，最后请求服务端拼接成单个音频
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, errors.New("合成内容为空")
	}

	voice := req.VoiceID
	if voice == "" {
		voice = p.defaultVoice
	}

	segments := splitSegments(content, maxSegmentRunes)
	if len(segments) == 1 {
		return p.synthesizeSegment(ctx, segments[0], voice)
	}

	// 多段并发合成，保持顺序
	results := make([]*tts.Result, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			r, err := p.synthesizeSegment(gctx, seg, voice)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return p.concat(ctx, results)
}

// synthesizeSegment 单段合成
func (p *Provider) synthesizeSegment(ctx context.Context, text, voice string) (*tts.Result, error) {
	requestBody := map[string]interface{}{
		"text":   text,
		"voice":  voice,
		"format": "mp3",
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/tts", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("CosyVoice API错误(%d): %s", httpResp.StatusCode, string(body))
	}

	var response struct {
		AudioURL string  `json:"audio_url"`
		Duration float64 `json:"duration"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, err
	}
	if response.AudioURL == "" {
		return nil, errors.New("CosyVoice未返回音频地址")
	}

	return &tts.Result{AudioURL: response.AudioURL, Duration: response.Duration}, nil
}

// concat 请求服务端把多段音频拼接为一个
func (p *Provider) concat(ctx context.Context, parts []*tts.Result) (*tts.Result, error) {
	urls := make([]string, 0, len(parts))
	total := 0.0
	for _, part := range parts {
		urls = append(urls, part.AudioURL)
		total += part.Duration
	}

	jsonData, err := json.Marshal(map[string]interface{}{"audio_urls": urls})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/tts/concat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("CosyVoice拼接失败(%d): %s", httpResp.StatusCode, string(body))
	}

	var response struct {
		AudioURL string `json:"audio_url"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, err
	}

	return &tts.Result{AudioURL: response.AudioURL, Duration: total}, nil
}

// splitSegments 按句读切段，每段不超过limit个字符
func splitSegments(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	segments := make([]string, 0, len(runes)/limit+1)
	start := 0
	lastBreak := -1
	for i, r := range runes {
		switch r {
		case '。', '！', '？', '；', '.', '!', '?', ';', '\n':
			lastBreak = i
		}
		if i-start+1 >= limit {
			end := lastBreak
			if end < start {
				end = i
			}
			segments = append(segments, string(runes[start:end+1]))
			start = end + 1
			lastBreak = -1
		}
	}
	if start < len(runes) {
		segments = append(segments, string(runes[start:]))
	}
	return segments
}
