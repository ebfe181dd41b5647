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
	clearRunID         string
	clearStartDate     string
	clearEndDate       string
	clearTaskIDs       []string
	clearUpstream      bool
	clearDownstream    bool
	clearOnlyFailed    bool
	clearOnlyRunning   bool
	clearIncludePast   bool
	clearIncludeFuture bool
	clearResetRuns     bool
	clearLatestVersion bool
	clearYes           bool
)

// clearCmd clear子命令
var clearCmd = &cobra.Command{
	Use:   "clear <dag-id>",
	Short: "清除TaskInstance，使其重新调度",
	Long: `清除指定范围内的TaskInstance：归档当前尝试，状态重置为none。

范围通过--run或--start-date/--end-date二选一指定。
默认只预览受影响的TaskInstance；确认无误后加--yes执行。

示例：
  # 预览清除manual_1中失败的Task
  dagflow clear etl --run manual_1 --only-failed

  # 确认后执行
  dagflow clear etl --run manual_1 --only-failed --yes

  # 清除transform及其图下游
  dagflow clear etl --run manual_1 --task transform --downstream --yes

  # 按时间范围跨运行清除
  dagflow clear etl --start-date 2025-06-01T00:00:00Z --end-date 2025-06-30T00:00:00Z --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := dto.ClearRequest{
			RunID:              clearRunID,
			TaskIDs:            clearTaskIDs,
			IncludeUpstream:    clearUpstream,
			IncludeDownstream:  clearDownstream,
			OnlyFailed:         clearOnlyFailed,
			OnlyRunning:        clearOnlyRunning,
			IncludePast:        clearIncludePast,
			IncludeFuture:      clearIncludeFuture,
			ResetDagRuns:       clearResetRuns,
			RunOnLatestVersion: clearLatestVersion,
		}

		var err error
		if req.StartDate, err = parseDateFlag("start-date", clearStartDate); err != nil {
			return err
		}
		if req.EndDate, err = parseDateFlag("end-date", clearEndDate); err != nil {
			return err
		}

		dryRun := !clearYes
		req.DryRun = &dryRun

		client := dagflow.New(serverURL)
		resp, err := client.Clear(args[0], req)
		if err != nil {
			output.Error("清除失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(resp)
		}

		if resp.Total == 0 {
			output.Info("没有匹配的TaskInstance")
			return nil
		}

		table := output.NewTable([]string{"RUN", "TASK", "MAP_INDEX"})
		for _, key := range resp.Affected {
			table.AddRow([]string{key.RunID, key.TaskID, fmt.Sprintf("%d", key.MapIndex)})
		}
		table.Render()

		if resp.DryRun {
			output.Warning("以上 %d 个TaskInstance将被清除（预览）。加--yes执行", resp.Total)
		} else {
			output.Success("已清除 %d 个TaskInstance", resp.Total)
		}
		return nil
	},
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		output.Error("%s格式错误，应为RFC3339: %v", name, err)
		return nil, err
	}
	return &parsed, nil
}

func init() {
	clearCmd.Flags().StringVarP(&clearRunID, "run", "r", "", "按run_id清除单次运行")
	clearCmd.Flags().StringVar(&clearStartDate, "start-date", "", "按logical_date范围清除：下界（RFC3339）")
	clearCmd.Flags().StringVar(&clearEndDate, "end-date", "", "按logical_date范围清除：上界（RFC3339）")
	clearCmd.Flags().StringSliceVarP(&clearTaskIDs, "task", "t", nil, "限定Task，可重复指定")
	clearCmd.Flags().BoolVar(&clearUpstream, "upstream", false, "扩展到图上游")
	clearCmd.Flags().BoolVar(&clearDownstream, "downstream", false, "扩展到图下游")
	clearCmd.Flags().BoolVar(&clearOnlyFailed, "only-failed", false, "只清除失败相关状态")
	clearCmd.Flags().BoolVar(&clearOnlyRunning, "only-running", false, "只清除运行中状态")
	clearCmd.Flags().BoolVar(&clearIncludePast, "include-past", false, "run模式下同时包含更早的运行")
	clearCmd.Flags().BoolVar(&clearIncludeFuture, "include-future", false, "run模式下同时包含更晚的运行")
	clearCmd.Flags().BoolVar(&clearResetRuns, "reset-dag-runs", false, "受影响的DagRun重置为queued")
	clearCmd.Flags().BoolVar(&clearLatestVersion, "latest-version", false, "清除后绑定到最新DAG版本")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "跳过预览直接执行")
}
