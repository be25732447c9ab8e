package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LENAX/content-pipeline/pkg/api/dto"
	"github.com/LENAX/content-pipeline/pkg/cli/output"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

var (
	logsWorkflowID string
	logsStep       string
	logsStatus     string
	logsLimit      int
	logsOffset     int
)

// logsCmd logs子命令
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "按条件查询执行记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().ListLogs(cmd.Context(), dto.LogsQuery{
			WorkflowID: logsWorkflowID,
			Step:       logsStep,
			Status:     logsStatus,
			Limit:      logsLimit,
			Offset:     logsOffset,
		})
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}
		if len(result.Items) == 0 {
			output.Info("暂无执行记录")
			return nil
		}
		renderRecords(result.Items)
		if result.HasMore {
			output.Info("共 %d 条，使用 --offset 查看更多", result.Total)
		}
		return nil
	},
}

func renderRecords(records []workflow.ExecutionRecord) {
	table := output.NewTable([]string{"TIME", "WORKFLOW_ID", "STEP", "ACTION", "STATUS", "DURATION", "ERROR"})
	for _, r := range records {
		table.AddRow([]string{
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.WorkflowID,
			string(r.Step),
			r.Action,
			output.Status(string(r.Status)),
			strconv.FormatInt(r.DurationMs, 10) + "ms",
			output.Truncate(r.Error, 50),
		})
	}
	table.Render()
}

func init() {
	logsCmd.Flags().StringVarP(&logsWorkflowID, "workflow", "w", "", "按实例过滤")
	logsCmd.Flags().StringVar(&logsStep, "step", "", "按步骤过滤")
	logsCmd.Flags().StringVar(&logsStatus, "status", "", "按状态过滤（RUNNING/SUCCESS/FAILED/BLOCKED/PENDING）")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "l", 50, "返回数量限制")
	logsCmd.Flags().IntVar(&logsOffset, "offset", 0, "分页偏移")
}
