package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/display/internal/conf"
	"github.com/iWorld-y/company_radar/app/display/internal/domain"
	"github.com/iWorld-y/company_radar/app/display/internal/repo"
)

const defaultRetention = time.Hour

// JobManager 在后台执行报告生成，并保存任务进度供轮询
type JobManager struct {
	gen       repo.ReportGenerator
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time
	log       *log.Helper

	mu   sync.Mutex
	jobs map[string]*domain.Job
	// active 同一请求同时只运行一个任务
	active map[domain.GenerateRequest]string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobManager 创建任务管理器，cleanup 取消未完成的任务并等待退出
func NewJobManager(gen repo.ReportGenerator, c *conf.Jobs, logger log.Logger) (*JobManager, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &JobManager{
		gen:       gen,
		retention: defaultRetention,
		now:       time.Now,
		log:       log.NewHelper(logger),
		jobs:      make(map[string]*domain.Job),
		active:    make(map[domain.GenerateRequest]string),
		ctx:       ctx,
		cancel:    cancel,
	}
	if c != nil {
		if d, err := time.ParseDuration(c.Retention); err == nil && d > 0 {
			m.retention = d
		}
		if d, err := time.ParseDuration(c.JobTimeout); err == nil && d > 0 {
			m.timeout = d
		}
	}
	return m, m.Close
}

// Submit 提交生成任务；相同请求的任务仍在运行时直接返回该任务
func (m *JobManager) Submit(_ context.Context, req domain.GenerateRequest) (*domain.Job, error) {
	req.Owner = strings.TrimSpace(req.Owner)
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Owner == "" || req.Subject == "" {
		return nil, errors.BadRequest("INVALID_REQUEST", "owner and subject are required")
	}
	if req.Kind == "" {
		req.Kind = string(model.KindYearly)
	}
	kind, ok := model.ParseReportKind(req.Kind)
	if !ok {
		return nil, errors.BadRequest("INVALID_KIND", "unsupported report kind: "+req.Kind)
	}
	req.Kind = string(kind)
	if m.gen == nil {
		return nil, errors.ServiceUnavailable("GENERATION_DISABLED", "report generation is not configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return nil, errors.ServiceUnavailable("SHUTTING_DOWN", "job manager is closed")
	}
	m.prune()
	if id, ok := m.active[req]; ok {
		return m.snapshot(m.jobs[id]), nil
	}

	now := m.now()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    domain.JobPending,
		Message:   "等待执行",
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.jobs[job.ID] = job
	m.active[req] = job.ID

	m.wg.Add(1)
	go m.run(job.ID, req)
	m.log.Infof("job %s submitted: owner=%s subject=%s kind=%s", job.ID, req.Owner, req.Subject, req.Kind)
	return m.snapshot(job), nil
}

// Get 返回任务快照
func (m *JobManager) Get(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.NotFound("JOB_NOT_FOUND", "job not found")
	}
	return m.snapshot(job), nil
}

// Close 取消运行中的任务并等待全部退出
func (m *JobManager) Close() {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *JobManager) run(id string, req domain.GenerateRequest) {
	defer m.wg.Done()

	ctx := m.ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.update(id, func(j *domain.Job) {
		j.Status = domain.JobRunning
		j.Message = "开始生成"
	})
	res, err := m.gen.Generate(ctx, req, func(msg string, fraction float64) {
		m.update(id, func(j *domain.Job) {
			j.Message = msg
			j.Fraction = fraction
		})
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, req)
	job := m.jobs[id]
	job.UpdatedAt = m.now()
	if err != nil {
		m.log.Errorf("job %s failed: %v", id, err)
		job.Status = domain.JobFailed
		job.Error = err.Error()
		job.Message = "生成失败"
		return
	}
	job.Status = domain.JobSucceeded
	job.Fraction = 1
	job.Result = res
	job.Message = "生成结束: " + res.Status
}

func (m *JobManager) update(id string, fn func(*domain.Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = m.now()
	}
}

// prune 清理超过保留时长的已结束任务，调用方持有锁
func (m *JobManager) prune() {
	cutoff := m.now().Add(-m.retention)
	for id, j := range m.jobs {
		if j.Status.Done() && j.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}

func (m *JobManager) snapshot(j *domain.Job) *domain.Job {
	cp := *j
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	return &cp
}
