package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/bootstrap"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
)

func newResetCmd(g *globalOptions) *cobra.Command {
	var (
		owner string
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "清空文章数据（报告和上下文分片保留）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner != "" && all || owner == "" && !all {
				return fmt.Errorf("必须且只能指定 --owner 或 --all 之一")
			}
			ctx, cancel := g.context(cmd)
			defer cancel()

			app, err := bootstrap.New(ctx, g.cfg, bootstrap.FeatureCrawl)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Store.ResetArticles(ctx, owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已删除 %d 篇文章\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "只删除该用户的文章")
	cmd.Flags().BoolVar(&all, "all", false, "删除全部用户的文章")
	return cmd
}

func newStatusCmd(g *globalOptions) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "查看文章标注分布和已生成的报告",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()

			app, err := bootstrap.New(ctx, g.cfg, bootstrap.FeatureCrawl)
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.Store.SuitabilityStats(ctx, owner)
			if err != nil {
				return err
			}
			reports, err := app.Store.LoadReports(ctx, storage.ReportQuery{Owner: owner})
			if err != nil {
				return err
			}
			logger.For("cli").Debugf("status: %d 份报告", len(reports))
			return printStatus(cmd.OutOrStdout(), stats, reports)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "用户，为空统计全部")
	return cmd
}

// printStatus 输出文章标注分布，以及按 (企业, 类型) 汇总的报告数量
func printStatus(w io.Writer, stats map[model.Suitability]int, reports []model.Report) error {
	total := 0
	for _, n := range stats {
		total += n
	}
	fmt.Fprintf(w, "文章: 共 %d 篇，适合 %d，不适合 %d，未判定 %d\n\n", total,
		stats[model.SuitabilitySuitable], stats[model.SuitabilityUnsuitable], stats[model.SuitabilityUnset])

	type row struct {
		subject string
		kind    model.ReportKind
	}
	counts := make(map[row]int)
	latest := make(map[row]string)
	for _, r := range reports {
		k := row{r.Subject, r.Kind}
		counts[k]++
		// LoadReports 按创建时间倒序返回
		if _, ok := latest[k]; !ok {
			latest[k] = r.CreatedAt.Format("2006-01-02 15:04")
		}
	}
	rows := make([]row, 0, len(counts))
	for k := range counts {
		rows = append(rows, k)
	}
	slices.SortFunc(rows, func(a, b row) int {
		return cmp.Or(strings.Compare(a.subject, b.subject), strings.Compare(string(a.kind), string(b.kind)))
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "企业\t类型\t数量\t最近生成")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.subject, r.kind, counts[r], latest[r])
	}
	return tw.Flush()
}
