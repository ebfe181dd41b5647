// Package api 提供HTTP API服务
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/LENAX/dagflow/pkg/api/handler"
	"github.com/LENAX/dagflow/pkg/api/middleware"
	"github.com/LENAX/dagflow/pkg/core/engine"
	"github.com/LENAX/dagflow/pkg/core/events"
)

// SetupRouter 设置路由
// bus为nil时不注册事件流端点
func SetupRouter(eng *engine.Engine, bus *events.Bus, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	tiHandler := handler.NewTaskInstanceHandler(eng)
	runHandler := handler.NewDagRunHandler(eng)
	healthHandler := handler.NewHealthHandler(version)

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		dags := v1.Group("/dags/:dag_id")
		{
			dags.POST("/clear", runHandler.Clear)
			dags.POST("/runs", runHandler.Trigger)
			dags.GET("/runs/:run_id", runHandler.Get)

			tasks := dags.Group("/runs/:run_id/tasks/:task_id")
			{
				tasks.GET("", tiHandler.Get)
				tasks.DELETE("", tiHandler.Delete)
				tasks.PATCH("/state", tiHandler.SetState)
				tasks.GET("/dependencies", tiHandler.GetDependencies)
				tasks.GET("/tries", tiHandler.ListTries)
				tasks.GET("/tries/:try_number", tiHandler.GetTry)
				tasks.GET("/mapped", tiHandler.ListMapped)
				tasks.GET("/mapped/:map_index", tiHandler.GetMapped)
			}
		}

		if bus != nil {
			eventsHandler := handler.NewEventsHandler(bus)
			v1.GET("/events/ws", eventsHandler.Stream)
		}
	}

	return router
}
