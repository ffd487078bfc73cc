package domain

import "time"

// Report 报告领域对象
type Report struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner"`
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject"`
	Year      int       `json:"year"`
	Month     int       `json:"month,omitempty"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportFilter 报告列表过滤条件，零值为通配
type ReportFilter struct {
	Owner   string
	Subject string
	Kind    string
	Year    int
}

// JobStatus 后台任务状态
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Done 任务是否已结束
func (s JobStatus) Done() bool {
	return s == JobSucceeded || s == JobFailed
}

// GenerateRequest 触发报告生成的参数
type GenerateRequest struct {
	Owner      string `json:"owner"`
	Subject    string `json:"subject"`
	Kind       string `json:"kind"`
	SkipSearch bool   `json:"skip_search"`
}

// JobResult 生成结束后的结果
type JobResult struct {
	Status    string `json:"status"`
	Text      string `json:"text"`
	Cached    int    `json:"cached"`
	Generated int    `json:"generated"`
	Failed    int    `json:"failed"`
}

// Job 一次报告生成任务的快照
type Job struct {
	ID        string          `json:"id"`
	Request   GenerateRequest `json:"request"`
	Status    JobStatus       `json:"status"`
	Message   string          `json:"message"`
	Fraction  float64         `json:"fraction"`
	Result    *JobResult      `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
