// Package cmd 定义dagflow命令行
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// 全局变量
	serverURL  string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "dagflow",
	Short: "Dagflow CLI - DAG任务编排命令行工具",
	Long: `Dagflow CLI 是一个用于管理DAG任务实例的命令行工具。

支持的功能：
  - 触发和查询DagRun
  - 查询TaskInstance状态、依赖和历史尝试
  - 清除TaskInstance（支持预览）
  - 强制设置TaskInstance状态
  - 启动HTTP API服务

使用示例：
  # 手动触发一次运行
  dagflow run trigger etl manual_1

  # 查看TaskInstance
  dagflow task get etl manual_1 extract

  # 预览清除范围，确认后加--yes执行
  dagflow clear etl --run manual_1 --only-failed
  dagflow clear etl --run manual_1 --only-failed --yes

  # 启动HTTP服务
  dagflow server start --port 8080`,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "dagflow服务器地址")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	// 添加子命令
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}
