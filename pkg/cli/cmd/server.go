package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	istorage "github.com/LENAX/dagflow/internal/storage"
	"github.com/LENAX/dagflow/pkg/api"
	"github.com/LENAX/dagflow/pkg/cli/output"
	"github.com/LENAX/dagflow/pkg/config"
	"github.com/LENAX/dagflow/pkg/core/dag"
	"github.com/LENAX/dagflow/pkg/core/engine"
	"github.com/LENAX/dagflow/pkg/core/events"
	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/plugin"
	"github.com/LENAX/dagflow/pkg/storage"
)

var (
	serverPort int
	serverHost string
	configPath string
)

// serverCmd server子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "服务管理命令",
	Long:  `管理dagflow HTTP API服务。`,
}

// serverStartCmd 启动服务
var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动HTTP API服务",
	Long: `启动dagflow HTTP API服务。

示例：
  # 使用默认配置启动
  dagflow server start

  # 指定端口启动
  dagflow server start --port 8080

  # 指定配置文件启动
  dagflow server start --config ./configs/dagflow.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadServerConfig()
		if err != nil {
			output.Error("加载配置失败: %v", err)
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			output.Error("打开存储失败: %v", err)
			return err
		}
		defer store.Close()

		ctx := context.Background()
		if err := store.UpsertPool(ctx, &instance.Pool{
			Name:  cfg.DefaultPool.Name,
			Slots: cfg.DefaultPool.Slots,
		}); err != nil {
			output.Error("初始化默认资源池失败: %v", err)
			return err
		}

		registry, err := loadRegistry(cfg.DAGDir)
		if err != nil {
			output.Error("加载DAG定义失败: %v", err)
			return err
		}

		bus := events.NewBus(cfg.Mode == "dev")
		defer bus.Close()

		if len(cfg.Notifications) > 0 {
			manager, err := startNotifications(ctx, bus, cfg.Notifications)
			if err != nil {
				output.Error("启动通知插件失败: %v", err)
				return err
			}
			defer manager.Stop()
		}

		eng := engine.New(store, registry, bus, engine.Options{
			MaxAffectedRows:   cfg.Clearing.MaxAffectedRows,
			SkipArchiveStates: cfg.SkipArchiveStates(),
			KnownExecutors:    cfg.Executors,
			KnownQueues:       cfg.Queues,
		})

		if cfg.Scheduler.Enabled {
			scheduler := engine.NewScheduler(eng)
			if err := scheduler.Start(); err != nil {
				output.Error("启动调度器失败: %v", err)
				return err
			}
			defer scheduler.Stop()
		}

		serverConfig := api.DefaultServerConfig()
		serverConfig.Host = serverHost
		serverConfig.Port = cfg.HTTPPort
		if serverPort > 0 {
			serverConfig.Port = serverPort
		}

		apiServer := api.NewServer(eng, bus, serverConfig, Version)

		go func() {
			if err := apiServer.Start(); err != nil {
				log.Printf("API服务器错误: %v", err)
			}
		}()

		output.Success("dagflow server started on %s", apiServer.Addr())

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		output.Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			output.Error("关闭API服务器失败: %v", err)
		}

		output.Success("服务已停止")
		return nil
	},
}

// loadServerConfig 按--config或默认路径加载配置
func loadServerConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		defaultPaths := []string{
			"./configs/dagflow.yaml",
			"./config/dagflow.yaml",
			"./dagflow.yaml",
		}
		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		output.Info("使用配置文件: %s", path)
	}
	return config.Load(path)
}

// openStore 按配置的driver建立连接并应用连接池参数
func openStore(cfg *config.Config) (*storage.Store, error) {
	store, err := istorage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	db := store.DB()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	return store, nil
}

// builtinPlugins 内置通知插件
var builtinPlugins = map[string]func() plugin.Plugin{
	"email": plugin.NewEmailPlugin,
}

// startNotifications 按配置注册并启动通知插件
func startNotifications(ctx context.Context, bus *events.Bus, bindings []config.NotificationBinding) (*plugin.Manager, error) {
	manager := plugin.NewManager(bus)

	for _, nb := range bindings {
		if _, registered := manager.GetPlugin(nb.Plugin); !registered {
			newPlugin, ok := builtinPlugins[nb.Plugin]
			if !ok {
				return nil, fmt.Errorf("unknown notification plugin: %s", nb.Plugin)
			}
			if err := manager.RegisterWithInit(newPlugin(), nb.Params); err != nil {
				return nil, err
			}
		}

		eventTypes := make([]events.EventType, 0, len(nb.Events))
		for _, name := range nb.Events {
			eventTypes = append(eventTypes, events.EventType(name))
		}
		if err := manager.Bind(plugin.Binding{PluginName: nb.Plugin, Events: eventTypes}); err != nil {
			return nil, err
		}
	}

	if err := manager.Start(ctx); err != nil {
		return nil, err
	}
	return manager, nil
}

// loadRegistry 从DAG定义目录构建注册表
func loadRegistry(dir string) (*dag.Registry, error) {
	registry := dag.NewRegistry()

	dagConfigs, err := config.LoadDAGConfigs(dir)
	if err != nil {
		return nil, err
	}
	for _, dc := range dagConfigs {
		d, err := dc.Build()
		if err != nil {
			return nil, fmt.Errorf("build dag %s: %w", dc.DAG.ID, err)
		}
		if err := registry.Register(d); err != nil {
			return nil, err
		}
		log.Printf("registered dag %s (version=%s, tasks=%d)", d.ID, d.VersionID, len(d.TaskIDs()))
	}
	return registry, nil
}

func init() {
	serverStartCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "监听端口，覆盖配置文件")
	serverStartCmd.Flags().StringVarP(&serverHost, "host", "H", "0.0.0.0", "监听地址")
	serverStartCmd.Flags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	serverCmd.AddCommand(serverStartCmd)
}
