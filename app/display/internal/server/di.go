package server

import (
	"github.com/google/wire"

	"github.com/iWorld-y/company_radar/app/display/internal/data"
	"github.com/iWorld-y/company_radar/app/display/internal/service"
	"github.com/iWorld-y/company_radar/app/display/internal/usecase"
)

// ProviderSet 是展示服务的依赖注入 Provider 集合
var ProviderSet = wire.NewSet(
	// Server providers
	NewHTTPServer,
	NewScheduler,

	// Data providers
	data.NewData,
	data.NewReportRepo,
	data.NewReportGenerator,
	data.NewRefresher,
	data.NewScheduleConfig,

	// UseCase providers
	usecase.NewReportUseCase,
	usecase.NewJobManager,
	usecase.NewRefreshUseCase,

	// Service providers
	service.NewDisplayService,
)
