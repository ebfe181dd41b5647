package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/dagflow/pkg/api/dto"
	"github.com/LENAX/dagflow/pkg/cli/dagflow"
	"github.com/LENAX/dagflow/pkg/cli/output"
)

var (
	taskMapIndex int

	stateUpstream   bool
	stateDownstream bool
	statePast       bool
	stateFuture     bool
	stateDryRun     bool
)

// taskCmd task子命令
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "TaskInstance管理命令",
	Long:  `查询TaskInstance状态、依赖、历史尝试，或强制设置状态。`,
}

// taskGetCmd 查看TaskInstance
var taskGetCmd = &cobra.Command{
	Use:   "get <dag-id> <run-id> <task-id>",
	Short: "查看TaskInstance详情",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := dagflow.New(serverURL)
		ti, err := client.GetTaskInstance(args[0], args[1], args[2], taskMapIndex)
		if err != nil {
			output.Error("查询TaskInstance失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(ti)
		}

		table := output.NewTable([]string{"FIELD", "VALUE"})
		table.AddRow([]string{"DAG", ti.DagID})
		table.AddRow([]string{"Run", ti.RunID})
		table.AddRow([]string{"Task", ti.TaskID})
		table.AddRow([]string{"MapIndex", fmt.Sprintf("%d", ti.MapIndex)})
		table.AddRow([]string{"State", output.State(ti.State)})
		table.AddRow([]string{"TryNumber", fmt.Sprintf("%d", ti.TryNumber)})
		table.AddRow([]string{"Pool", ti.Pool})
		table.AddRow([]string{"StartDate", formatTime(ti.StartDate)})
		table.AddRow([]string{"EndDate", formatTime(ti.EndDate)})
		table.AddRow([]string{"Duration", formatDuration(ti.Duration)})
		table.Render()
		return nil
	},
}

// taskMappedCmd 列出映射实例
var taskMappedCmd = &cobra.Command{
	Use:   "mapped <dag-id> <run-id> <task-id>",
	Short: "列出展开Task的映射实例",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := dagflow.New(serverURL)
		instances, err := client.ListMapped(args[0], args[1], args[2])
		if err != nil {
			output.Error("查询映射实例失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(instances)
		}

		if len(instances) == 0 {
			output.Info("本次运行没有映射实例")
			return nil
		}

		table := output.NewTable([]string{"MAP_INDEX", "STATE", "TRY", "START", "DURATION"})
		for _, ti := range instances {
			table.AddRow([]string{
				fmt.Sprintf("%d", ti.MapIndex),
				output.State(ti.State),
				fmt.Sprintf("%d", ti.TryNumber),
				formatTime(ti.StartDate),
				formatDuration(ti.Duration),
			})
		}
		table.Render()
		return nil
	},
}

// taskDepsCmd 查询未满足的依赖
var taskDepsCmd = &cobra.Command{
	Use:   "deps <dag-id> <run-id> <task-id>",
	Short: "查询未满足的调度前置条件",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := dagflow.New(serverURL)
		statuses, err := client.GetDependencies(args[0], args[1], args[2], taskMapIndex)
		if err != nil {
			output.Error("评估依赖失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(statuses)
		}

		if len(statuses) == 0 {
			output.Success("所有调度前置条件均已满足")
			return nil
		}

		table := output.NewTable([]string{"DEPENDENCY", "REASON"})
		for _, s := range statuses {
			table.AddRow([]string{s.Name, s.Reason})
		}
		table.Render()
		return nil
	},
}

// taskTriesCmd 列出历史尝试
var taskTriesCmd = &cobra.Command{
	Use:   "tries <dag-id> <run-id> <task-id>",
	Short: "列出TaskInstance的历史尝试",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := dagflow.New(serverURL)
		tries, err := client.ListTries(args[0], args[1], args[2], taskMapIndex)
		if err != nil {
			output.Error("查询历史尝试失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(tries)
		}

		if len(tries) == 0 {
			output.Info("尚无已完成的尝试")
			return nil
		}

		table := output.NewTable([]string{"TRY", "STATE", "START", "END", "DURATION"})
		for _, record := range tries {
			table.AddRow([]string{
				fmt.Sprintf("%d", record.TryNumber),
				output.State(record.State),
				formatTime(record.StartDate),
				formatTime(record.EndDate),
				formatDuration(record.Duration),
			})
		}
		table.Render()
		return nil
	},
}

// taskStateCmd 强制设置状态
var taskStateCmd = &cobra.Command{
	Use:   "state <dag-id> <run-id> <task-id> <new-state>",
	Short: "强制设置TaskInstance状态",
	Long: `强制将TaskInstance置为指定状态，仅接受 success/failed/skipped/none。

级联范围通过flag控制：
  --downstream 同时标记图下游
  --upstream   同时标记图上游
  --past       同时标记更早的运行
  --future     同时标记更晚的运行`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := dagflow.New(serverURL)
		resp, err := client.SetState(args[0], args[1], args[2], taskMapIndex, dto.SetStateRequest{
			NewState:   args[3],
			Upstream:   stateUpstream,
			Downstream: stateDownstream,
			Past:       statePast,
			Future:     stateFuture,
			DryRun:     stateDryRun,
		})
		if err != nil {
			output.Error("设置状态失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(resp)
		}

		if stateDryRun {
			output.Warning("以下 %d 个TaskInstance将被更新（预览）", resp.Total)
		} else {
			output.Success("已更新 %d 个TaskInstance", resp.Total)
		}
		for _, key := range resp.Updated {
			fmt.Printf("  %s/%s/%s[%d]\n", key.DagID, key.RunID, key.TaskID, key.MapIndex)
		}
		return nil
	},
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatDuration(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fs", *seconds)
}

func init() {
	taskCmd.PersistentFlags().IntVarP(&taskMapIndex, "map-index", "m", -1, "映射实例下标，-1表示未映射实例")

	taskStateCmd.Flags().BoolVar(&stateUpstream, "upstream", false, "级联到图上游")
	taskStateCmd.Flags().BoolVar(&stateDownstream, "downstream", false, "级联到图下游")
	taskStateCmd.Flags().BoolVar(&statePast, "past", false, "级联到更早的运行")
	taskStateCmd.Flags().BoolVar(&stateFuture, "future", false, "级联到更晚的运行")
	taskStateCmd.Flags().BoolVar(&stateDryRun, "dry-run", false, "只预览将被触及的实例")

	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskMappedCmd)
	taskCmd.AddCommand(taskDepsCmd)
	taskCmd.AddCommand(taskTriesCmd)
	taskCmd.AddCommand(taskStateCmd)
}
