package cmd

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LENAX/content-pipeline/pkg/cli/output"
)

// statsCmd stats子命令
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "实例数量统计",
	RunE: func(cmd *cobra.Command, args []string) error {
		ov, err := newClient().Overview(cmd.Context())
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(ov)
		}

		output.Info("实例总数: %d (今日新建 %d, 今日发布 %d)", ov.Total, ov.TodayCreated, ov.TodayPublished)
		output.Info("待审核: %d, 执行中: %d, 定时任务: %d", ov.PendingReview, ov.InFlight, ov.ScheduledJobs)

		table := output.NewTable([]string{"KIND", "NAME", "COUNT"})
		addCounts(table, "status", ov.ByStatus)
		addCounts(table, "outcome", ov.ByOutcome)
		table.Render()
		return nil
	},
}

func addCounts(table *output.Table, kind string, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		table.AddRow([]string{kind, output.Status(name), strconv.Itoa(counts[name])})
	}
}
