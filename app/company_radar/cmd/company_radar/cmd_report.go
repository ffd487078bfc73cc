package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/bootstrap"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/engine"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
)

// errUnitsFailed 报告已输出，但有单元失败
var errUnitsFailed = errors.New("部分报告单元生成失败，重新运行会重试失败的单元")

type reportOptions struct {
	owner      string
	subject    string
	kind       string
	skipSearch bool
}

func newReportCmd(g *globalOptions) *cobra.Command {
	o := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "生成或读取企业分析报告",
		Long: `按类型生成报告并输出到标准输出。已生成的报告单元直接复用，
只有缺失或上次失败的单元会调用 LLM。

类型: monthly, yearly, keyword, trend, future`,
		Example: `  company_radar report --owner alice --subject Acme --kind yearly
  company_radar report --owner alice --subject Acme --kind future --skip-search`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.owner, "owner", "", "数据所属用户")
	f.StringVar(&o.subject, "subject", "", "企业名称")
	f.StringVar(&o.kind, "kind", string(model.KindYearly), "报告类型")
	f.BoolVar(&o.skipSearch, "skip-search", false, "未来报告不做网页搜索，只用向量库已有资料")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func runReport(cmd *cobra.Command, g *globalOptions, o *reportOptions) error {
	kind, ok := model.ParseReportKind(o.kind)
	if !ok {
		return fmt.Errorf("%w: %q", engine.ErrUnsupportedKind, o.kind)
	}
	ctx, cancel := g.context(cmd)
	defer cancel()

	app, err := bootstrap.New(ctx, g.cfg, bootstrap.FeatureReports)
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer app.Close()

	res, err := app.Engine.Generate(ctx, kind, o.subject, o.owner, engine.Options{
		Progress:      progressPrinter(cmd.ErrOrStderr()),
		SkipWebSearch: o.skipSearch,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	fmt.Fprintf(cmd.ErrOrStderr(), "状态: %s (复用 %d, 新生成 %d, 失败 %d)\n",
		res.Status, res.Units.Cached, res.Units.Generated, res.Units.Failed)
	if res.Status == engine.StatusFailed {
		return errUnitsFailed
	}
	return nil
}

type classifyOptions struct {
	owner   string
	subject string
}

func newClassifyCmd(g *globalOptions) *cobra.Command {
	o := &classifyOptions{}
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "用 LLM 标注尚未判定的文章是否适合企业分析",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, g, o)
		},
	}
	cmd.Flags().StringVar(&o.owner, "owner", "", "数据所属用户")
	cmd.Flags().StringVar(&o.subject, "subject", "", "只处理该企业的文章，为空处理全部")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func runClassify(cmd *cobra.Command, g *globalOptions, o *classifyOptions) error {
	ctx, cancel := g.context(cmd)
	defer cancel()

	app, err := bootstrap.New(ctx, g.cfg, bootstrap.FeatureReports)
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer app.Close()

	stats, err := app.Classifier.ClassifyPending(ctx, o.owner, o.subject, progressPrinter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "标注完成: 共 %d 篇，适合 %d，不适合 %d，未判定 %d\n",
		stats.Total, stats.Suitable, stats.Unsuitable, stats.Undecided)
	return nil
}
