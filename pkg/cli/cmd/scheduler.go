package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/content-pipeline/pkg/cli/output"
)

var historyLimit int

// schedulerCmd scheduler子命令
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "定时批量任务管理",
}

var schedulerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看调度器状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newClient().SchedulerStatus(cmd.Context())
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(status)
		}
		state := "stopped"
		if status.Running {
			state = "running"
		}
		output.Info("调度器: %s", state)
		output.Info("任务数: %d, 执行中: %d", status.Jobs, status.ActiveRuns)
		if status.StartedAt != nil {
			output.Info("启动于: %s", status.StartedAt.Format(time.DateTime))
		}
		return nil
	},
}

var schedulerJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "列出定时任务及下次执行时间",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := newClient().ListJobs(cmd.Context())
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(jobs)
		}
		if len(jobs) == 0 {
			output.Info("未配置定时任务")
			return nil
		}
		table := output.NewTable([]string{"NAME", "CRON", "USER", "COUNT", "NEXT_RUN", "LAST_RUN", "RUNNING"})
		for _, j := range jobs {
			table.AddRow([]string{
				j.Name,
				j.CronExpr,
				j.UserID,
				strconv.Itoa(j.Count),
				formatTime(j.NextRun),
				formatTime(j.LastRun),
				strconv.FormatBool(j.Running),
			})
		}
		table.Render()
		return nil
	},
}

var schedulerRunCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "立即触发一次定时任务",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exec, err := newClient().RunJob(cmd.Context(), args[0])
		if err != nil {
			output.Error("触发失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(exec)
		}
		output.Success("已触发定时任务 %s, ExecutionID=%s", exec.Job, exec.ID)
		return nil
	},
}

var schedulerHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "查看定时任务执行记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := newClient().JobExecutions(cmd.Context(), historyLimit)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(runs)
		}
		if len(runs) == 0 {
			output.Info("暂无执行记录")
			return nil
		}
		table := output.NewTable([]string{"STARTED", "JOB", "TRIGGER", "STATUS", "OK", "FAILED", "DURATION", "ERROR"})
		for _, r := range runs {
			table.AddRow([]string{
				r.StartedAt.Format(time.DateTime),
				r.Job,
				string(r.Trigger),
				output.Status(string(r.Status)),
				strconv.Itoa(r.Succeeded),
				strconv.Itoa(r.Failed),
				strconv.FormatInt(r.DurationMs, 10) + "ms",
				output.Truncate(r.Error, 50),
			})
		}
		table.Render()
		return nil
	},
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateTime)
}

func init() {
	schedulerHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "返回数量限制")

	schedulerCmd.AddCommand(schedulerStatusCmd)
	schedulerCmd.AddCommand(schedulerJobsCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerHistoryCmd)
}
