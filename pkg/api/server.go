package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/LENAX/dagflow/pkg/core/engine"
	"github.com/LENAX/dagflow/pkg/core/events"
)

// ServerConfig API服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server HTTP API服务器
type Server struct {
	engine     *engine.Engine
	bus        *events.Bus
	httpServer *http.Server
	config     ServerConfig
	version    string
}

// NewServer 创建API服务器
func NewServer(eng *engine.Engine, bus *events.Bus, config ServerConfig, version string) *Server {
	return &Server{
		engine:  eng,
		bus:     bus,
		config:  config,
		version: version,
	}
}

// Start 启动服务器，阻塞直到关闭
func (s *Server) Start() error {
	router := SetupRouter(s.engine, s.bus, s.version)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: s.config.ReadTimeout,
		// websocket事件流是长连接，WriteTimeout只给普通请求
		WriteTimeout: 0,
	}

	log.Printf("dagflow api server starting on %s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server listen failed: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	log.Println("shutting down api server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Println("api server stopped")
	return nil
}

// Addr 获取服务器地址
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
