package model

// ProgressStatus 进度回调的状态
type ProgressStatus string

const (
	StatusProgress ProgressStatus = "progress"
	StatusInfo     ProgressStatus = "info"
	StatusWarning  ProgressStatus = "warning"
	StatusError    ProgressStatus = "error"
)

// ProgressFunc 进度回调，fraction 取值 [0, 1]
type ProgressFunc func(msg string, fraction float64, status ProgressStatus)

// Notify 调用回调，fn 为 nil 时什么也不做
func (fn ProgressFunc) Notify(msg string, fraction float64, status ProgressStatus) {
	if fn == nil {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	fn(msg, fraction, status)
}
