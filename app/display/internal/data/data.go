package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/bootstrap"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	radarlog "github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/display/internal/conf"
)

// Data 持有 company_radar 的全部组件
type Data struct {
	app *bootstrap.App
}

// NewData 加载 company_radar 配置并装配组件；LLM 凭证缺失时只提供查询
func NewData(c *conf.Radar, logger log.Logger) (*Data, func(), error) {
	helper := log.NewHelper(logger)
	if c == nil || c.Config == "" {
		return nil, nil, fmt.Errorf("radar.config is required")
	}

	cfg, err := config.LoadConfig(c.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("load radar config: %w", err)
	}
	if err := radarlog.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		helper.Errorf("Failed to init company_radar logger: %v", err)
		_ = radarlog.InitLogger("info", "") // 降级处理
	}

	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg, bootstrap.FeatureCrawl, bootstrap.FeatureReports)
	if errors.Is(err, config.ErrMissingCredential) {
		helper.Warnf("LLM 未配置，报告生成不可用: %v", err)
		app, err = bootstrap.New(ctx, cfg, bootstrap.FeatureCrawl)
	}
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		if err := app.Close(); err != nil {
			helper.Errorf("close radar resources: %v", err)
		}
	}
	return &Data{app: app}, cleanup, nil
}

// NewScheduleConfig 定时刷新配置来自 company_radar 配置文件
func NewScheduleConfig(data *Data) *config.ScheduleConfig {
	return &data.app.Config.Schedule
}
