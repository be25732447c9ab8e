package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LENAX/content-pipeline/pkg/api/dto"
	"github.com/LENAX/content-pipeline/pkg/cli/output"
	"github.com/LENAX/content-pipeline/pkg/core/realtime"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

var (
	startUser      string
	batchUser      string
	listUser       string
	wfWait         bool
	wfRecentTopics []string
	wfCount        int
	wfStatus       string
	wfLimit        int
	wfOffset       int
	reviewDecision string
	reviewNotes    string
	reviewVersion  int
)

// workflowCmd workflow子命令
var workflowCmd = &cobra.Command{
	Use:     "workflow",
	Aliases: []string{"wf"},
	Short:   "工作流实例管理命令",
	Long:    `启动实例、批量执行、查看状态、提交审核结论。`,
}

// workflowStartCmd 启动实例
var workflowStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动一个实例",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		ctx := cmd.Context()

		if !wfWait {
			id, err := client.StartWorkflow(ctx, startUser, wfRecentTopics)
			if err != nil {
				output.Error("启动失败: %v", err)
				return err
			}
			if outputJSON {
				return output.PrintJSON(dto.StartWorkflowResponse{WorkflowID: id})
			}
			output.Success("实例已启动: %s", id)
			return nil
		}

		outcome, err := client.RunWorkflow(ctx, startUser, wfRecentTopics)
		if err != nil {
			output.Error("执行失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(outcome)
		}
		printOutcome(outcome)
		return nil
	},
}

// workflowBatchCmd 批量执行
var workflowBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "批量执行多个实例",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().StartBatch(cmd.Context(), batchUser, wfCount)
		if err != nil {
			output.Error("批量执行失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}

		table := output.NewTable([]string{"#", "WORKFLOW_ID", "OUTCOME", "STEP", "TOPIC", "ERROR"})
		for i, out := range result.Outcomes {
			table.AddRow([]string{
				strconv.Itoa(i + 1),
				out.WorkflowID,
				output.Status(string(out.Status)),
				string(out.Step),
				topicOf(out.State),
				output.Truncate(out.Error, 40),
			})
		}
		table.Render()
		output.Info("成功: %d, 失败: %d", result.Succeeded, result.Failed)
		return nil
	},
}

// workflowListCmd 列出实例
var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出实例",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().ListWorkflows(cmd.Context(), dto.ListWorkflowsQuery{
			Status: wfStatus,
			UserID: listUser,
			Limit:  wfLimit,
			Offset: wfOffset,
		})
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}
		if len(result.Items) == 0 {
			output.Info("暂无实例")
			return nil
		}

		table := output.NewTable([]string{"WORKFLOW_ID", "USER", "STATUS", "STEP", "OUTCOME", "ROUND", "VERSION", "UPDATED"})
		for _, v := range result.Items {
			table.AddRow([]string{
				v.WorkflowID,
				v.UserID,
				output.Status(v.Status),
				string(v.Step),
				output.Status(string(v.Outcome)),
				strconv.Itoa(v.RevisionRound),
				strconv.Itoa(v.Version),
				v.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		if result.HasMore {
			output.Info("共 %d 条，使用 --offset 查看更多", result.Total)
		}
		return nil
	},
}

// workflowStatusCmd 查看实例状态
var workflowStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "查看实例状态",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := newClient().GetWorkflow(cmd.Context(), args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(view)
		}

		fmt.Fprintf(output.Stdout, "Workflow:  %s\n", view.WorkflowID)
		fmt.Fprintf(output.Stdout, "User:      %s\n", view.UserID)
		fmt.Fprintf(output.Stdout, "Status:    %s\n", output.Status(view.Status))
		fmt.Fprintf(output.Stdout, "Step:      %s\n", view.Step)
		if view.Outcome != "" {
			fmt.Fprintf(output.Stdout, "Outcome:   %s\n", output.Status(string(view.Outcome)))
		}
		fmt.Fprintf(output.Stdout, "Round:     %d\n", view.RevisionRound)
		fmt.Fprintf(output.Stdout, "Version:   %d\n", view.Version)
		fmt.Fprintf(output.Stdout, "Updated:   %s\n", view.UpdatedAt.Format("2006-01-02 15:04:05"))
		if view.Error != "" {
			fmt.Fprintf(output.Stdout, "Error:     %s\n", view.Error)
		}
		printContent(view.State)
		return nil
	},
}

// workflowReviewCmd 提交审核结论
var workflowReviewCmd = &cobra.Command{
	Use:   "review <id>",
	Short: "提交审核结论（approved / revision / rejected）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decision := workflow.ReviewDecision(reviewDecision)
		if !decision.IsValid() {
			err := fmt.Errorf("%w: %q", workflow.ErrInvalidDecision, reviewDecision)
			output.Error("%v", err)
			return err
		}
		outcome, err := newClient().Review(cmd.Context(), args[0], dto.ReviewRequest{
			Decision: reviewDecision,
			Notes:    reviewNotes,
			Version:  reviewVersion,
		})
		if err != nil {
			output.Error("提交失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(outcome)
		}
		printOutcome(outcome)
		return nil
	},
}

// workflowLogsCmd 查看实例执行记录
var workflowLogsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "查看实例执行记录",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := newClient().WorkflowLogs(cmd.Context(), args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(records)
		}
		renderRecords(records)
		return nil
	},
}

// workflowGraphCmd 输出步骤图
var workflowGraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "输出步骤图（Mermaid）",
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := newClient().Graph(cmd.Context())
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(graph)
		}
		fmt.Fprint(output.Stdout, graph.Mermaid)
		return nil
	},
}

// workflowWatchCmd 订阅实时事件
var workflowWatchCmd = &cobra.Command{
	Use:   "watch [id]",
	Short: "订阅实时事件（Ctrl+C 退出）",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		if len(args) == 1 {
			id = args[0]
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		output.Info("正在订阅事件...")
		return newClient().Watch(ctx, id, func(ev *realtime.WorkflowEvent) {
			if outputJSON {
				_ = output.PrintJSON(ev)
				return
			}
			fmt.Fprintf(output.Stdout, "%s  %-22s %-24s %-18s %s\n",
				ev.Timestamp.Format("15:04:05.000"), ev.Type, ev.WorkflowID, ev.Step, output.Status(ev.Status))
		})
	},
}

func printOutcome(out *workflow.InstanceOutcome) {
	switch {
	case out.Status == workflow.OutcomeSuspended:
		output.Success("实例 %s 等待审核", out.WorkflowID)
	case out.Succeeded():
		output.Success("实例 %s 已结束: %s", out.WorkflowID, out.Status)
	default:
		output.Error("实例 %s 失败于 %s: %s", out.WorkflowID, out.Step, out.Error)
	}
	printContent(out.State)
}

func printContent(st *workflow.WorkflowState) {
	if st == nil {
		return
	}
	if topic := topicOf(st); topic != "" {
		fmt.Fprintf(output.Stdout, "Topic:     %s\n", topic)
	}
	if st.Content != nil {
		fmt.Fprintf(output.Stdout, "Title:     %s\n", st.Content.PrimaryTitle())
		fmt.Fprintf(output.Stdout, "Body:      %s\n", output.Truncate(st.Content.Body, 80))
	}
	if st.ComplianceResult != nil {
		fmt.Fprintf(output.Stdout, "Compliance:%s (%s)\n", output.Status(string(st.ComplianceResult.Status)), st.ComplianceResult.RiskLevel)
	}
	if st.PublishResult != nil && st.PublishResult.ID != "" {
		fmt.Fprintf(output.Stdout, "Published: %s\n", st.PublishResult.ID)
	}
}

func topicOf(st *workflow.WorkflowState) string {
	if st == nil || st.SelectedTopic == nil {
		return ""
	}
	return st.SelectedTopic.Title
}

func init() {
	workflowStartCmd.Flags().StringVarP(&startUser, "user", "u", "default", "用户ID")
	workflowStartCmd.Flags().BoolVarP(&wfWait, "wait", "w", false, "同步执行到挂起或终止")
	workflowStartCmd.Flags().StringSliceVar(&wfRecentTopics, "recent", nil, "最近已用选题（逗号分隔），不指定时由服务端补充")

	workflowBatchCmd.Flags().StringVarP(&batchUser, "user", "u", "default", "用户ID")
	workflowBatchCmd.Flags().IntVarP(&wfCount, "count", "n", 5, "实例数量")

	workflowListCmd.Flags().StringVar(&wfStatus, "status", "", "按状态过滤（running/suspended/resumed/terminated）")
	workflowListCmd.Flags().StringVarP(&listUser, "user", "u", "", "按用户过滤")
	workflowListCmd.Flags().IntVarP(&wfLimit, "limit", "l", 20, "返回数量限制")
	workflowListCmd.Flags().IntVar(&wfOffset, "offset", 0, "分页偏移")

	workflowReviewCmd.Flags().StringVarP(&reviewDecision, "decision", "d", "", "审核结论: approved/revision/rejected")
	workflowReviewCmd.Flags().StringVarP(&reviewNotes, "notes", "m", "", "修改意见")
	workflowReviewCmd.Flags().IntVar(&reviewVersion, "version", 0, "快照版本（0表示不校验）")
	_ = workflowReviewCmd.MarkFlagRequired("decision")

	workflowCmd.AddCommand(workflowStartCmd)
	workflowCmd.AddCommand(workflowBatchCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowStatusCmd)
	workflowCmd.AddCommand(workflowReviewCmd)
	workflowCmd.AddCommand(workflowLogsCmd)
	workflowCmd.AddCommand(workflowGraphCmd)
	workflowCmd.AddCommand(workflowWatchCmd)
}
