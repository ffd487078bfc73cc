package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
)

// globalOptions 所有子命令共享的参数
type globalOptions struct {
	configPath string
	timeout    time.Duration
	verbose    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "company_radar",
		Short: "企业新闻抓取与分析报告生成",
		Long: `company_radar 从新闻搜索抓取某个企业的文章，
按月、按年汇总成分析报告，并基于年报生成关键词、趋势和未来战略报告。`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(g.configPath)
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			level := cfg.Log.Level
			if g.verbose {
				level = "debug"
			}
			if err := logger.InitLogger(level, cfg.Log.File); err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			g.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "configs/config.yaml", "配置文件路径")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 0, "整体超时时间，0 表示不限")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "输出调试日志")

	root.AddCommand(
		newCrawlCmd(g),
		newClassifyCmd(g),
		newReportCmd(g),
		newResetCmd(g),
		newStatusCmd(g),
	)
	return root
}

// context 命令的执行上下文，设置了 --timeout 时附带超时
func (g *globalOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if g.timeout > 0 {
		return context.WithTimeout(ctx, g.timeout)
	}
	return context.WithCancel(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
