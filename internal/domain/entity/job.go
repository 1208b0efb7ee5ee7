package entity

import (
	"encoding/json"
	"time"
)

// JobKind 任务类型, 每种类型对应一个独立队列与工作池
type JobKind string

const (
	JobKindAudio JobKind = "audio"
	JobKindImage JobKind = "image"
	JobKindOCR   JobKind = "ocr"
	JobKindLLM   JobKind = "llm"
)

// JobKinds 返回全部任务类型
func JobKinds() []JobKind {
	return []JobKind{JobKindAudio, JobKindImage, JobKindOCR, JobKindLLM}
}

// JobPriority 数值越小优先级越高
type JobPriority int

const (
	PriorityHigh   JobPriority = 1
	PriorityNormal JobPriority = 2
	PriorityLow    JobPriority = 3
)

// JobStatus 任务生命周期状态
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

const (
	// DefaultMaxAttempts 默认重试上限（含首次执行）
	DefaultMaxAttempts = 3
	// BackoffBase 首次重试延迟, 之后指数翻倍
	BackoffBase = 2 * time.Second
)

// Job 队列任务记录, 以 JSON 形式存于缓存层
type Job struct {
	ID           string          `json:"id"`
	Kind         JobKind         `json:"kind"`
	Priority     JobPriority     `json:"priority"`
	Payload      json.RawMessage `json:"payload"`
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	TimeoutMs    int64           `json:"timeoutMs"`
	Status       JobStatus       `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	RetryAfterMs int64           `json:"retryAfterMs,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	ProcessedAt  *time.Time      `json:"processedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
}

// DefaultTimeout 各任务类型的执行超时
func DefaultTimeout(kind JobKind) time.Duration {
	switch kind {
	case JobKindAudio:
		return 120 * time.Second
	case JobKindLLM:
		return 90 * time.Second
	default:
		return 60 * time.Second
	}
}

// Timeout 任务超时时长
func (j *Job) Timeout() time.Duration {
	if j.TimeoutMs > 0 {
		return time.Duration(j.TimeoutMs) * time.Millisecond
	}
	return DefaultTimeout(j.Kind)
}

// NextBackoff returns the delay before the next attempt: BackoffBase
// doubled per completed attempt (2s, 4s, 8s, ...).
func (j *Job) NextBackoff() time.Duration {
	d := BackoffBase
	for i := 1; i < j.AttemptsMade; i++ {
		d *= 2
	}
	return d
}

// ExhaustedAttempts 判断是否已达重试上限
func (j *Job) ExhaustedAttempts() bool {
	return j.AttemptsMade >= j.MaxAttempts
}

// Terminal 判断任务是否已到终态
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// AudioJobPayload 音频转写任务载荷
type AudioJobPayload struct {
	AudioURL string `json:"audioUrl"`
	Language string `json:"language,omitempty"`
}

// ImageJobPayload 图像描述任务载荷
type ImageJobPayload struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt,omitempty"`
}

// OCRJobPayload 图像文字提取任务载荷
type OCRJobPayload struct {
	ImageURL  string   `json:"imageUrl"`
	Languages []string `json:"languages,omitempty"`
}

// LLMJobPayload 文本生成任务载荷
type LLMJobPayload struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
	MaxTokens    int     `json:"maxTokens,omitempty"`
	Temperature  float32 `json:"temperature,omitempty"`
}
