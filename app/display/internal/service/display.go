package service

import (
	"context"
	nethttp "net/http"
	"strconv"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/company_radar/app/display/internal/domain"
	"github.com/iWorld-y/company_radar/app/display/internal/usecase"
)

const (
	OperationListReports    = "/display.v1.Display/ListReports"
	OperationGetReport      = "/display.v1.Display/GetReport"
	OperationGenerateReport = "/display.v1.Display/GenerateReport"
	OperationGetJob         = "/display.v1.Display/GetJob"
)

type ListReportsReply struct {
	Reports []*domain.Report `json:"reports"`
}

type GenerateReportReply struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

type DisplayService struct {
	reports *usecase.ReportUseCase
	jobs    *usecase.JobManager
	log     *log.Helper
}

func NewDisplayService(reports *usecase.ReportUseCase, jobs *usecase.JobManager, logger log.Logger) *DisplayService {
	return &DisplayService{
		reports: reports,
		jobs:    jobs,
		log:     log.NewHelper(logger),
	}
}

// RegisterRoutes 注册 HTTP 路由
func (s *DisplayService) RegisterRoutes(srv *http.Server) {
	r := srv.Route("/")
	r.GET("/v1/reports", s.ListReports)
	r.GET("/v1/reports/{id}", s.GetReport)
	r.POST("/v1/reports/generate", s.GenerateReport)
	r.GET("/v1/jobs/{id}", s.GetJob)
}

func (s *DisplayService) ListReports(ctx http.Context) error {
	q := ctx.Query()
	f := domain.ReportFilter{
		Owner:   q.Get("owner"),
		Subject: q.Get("subject"),
		Kind:    q.Get("kind"),
	}
	if y := q.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			return errors.BadRequest("INVALID_YEAR", "year must be an integer")
		}
		f.Year = year
	}

	http.SetOperation(ctx, OperationListReports)
	h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
		reports, err := s.reports.List(c, *req.(*domain.ReportFilter))
		if err != nil {
			return nil, err
		}
		return &ListReportsReply{Reports: reports}, nil
	})
	out, err := h(ctx, &f)
	if err != nil {
		return err
	}
	return ctx.Result(nethttp.StatusOK, out)
}

func (s *DisplayService) GetReport(ctx http.Context) error {
	id, err := strconv.ParseInt(ctx.Vars().Get("id"), 10, 64)
	if err != nil {
		return errors.BadRequest("INVALID_ID", "report id must be an integer")
	}
	owner := ctx.Query().Get("owner")

	http.SetOperation(ctx, OperationGetReport)
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return s.reports.Get(c, id, owner)
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(nethttp.StatusOK, out)
}

func (s *DisplayService) GenerateReport(ctx http.Context) error {
	var in domain.GenerateRequest
	if err := ctx.Bind(&in); err != nil {
		return errors.BadRequest("INVALID_BODY", err.Error())
	}

	http.SetOperation(ctx, OperationGenerateReport)
	h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
		job, err := s.jobs.Submit(c, *req.(*domain.GenerateRequest))
		if err != nil {
			return nil, err
		}
		return &GenerateReportReply{JobID: job.ID, Status: job.Status}, nil
	})
	out, err := h(ctx, &in)
	if err != nil {
		return err
	}
	return ctx.Result(nethttp.StatusAccepted, out)
}

func (s *DisplayService) GetJob(ctx http.Context) error {
	id := ctx.Vars().Get("id")

	http.SetOperation(ctx, OperationGetJob)
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return s.jobs.Get(c, id)
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(nethttp.StatusOK, out)
}
