package entity

// TranscriptResult 音频转写统一结果
type TranscriptResult struct {
	Text       string  `json:"text"`
	Language   string  `json:"language,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
}

// DescriptionResult 图像描述统一结果
type DescriptionResult struct {
	Description string `json:"description"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
}

// OCRResult 图像文字提取统一结果
// 模型返回 NO_TEXT 哨兵时 HasText 为 false 且 Text 为空
type OCRResult struct {
	Text      string   `json:"text"`
	HasText   bool     `json:"hasText"`
	Languages []string `json:"languages,omitempty"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
}

// GenerationResult 文本生成统一结果
type GenerationResult struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}
