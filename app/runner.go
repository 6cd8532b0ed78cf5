package app

import (
	"context"
	"net/http"
	"time"

	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/messaging"
	"github.com/Tsukikage7/payment-saga/sweeper"
)

// ConsumerServer 把消息消费循环包装为后台服务器.
type ConsumerServer struct {
	name     string
	consumer messaging.Consumer
	topics   []string
	handler  messaging.MessageHandler
}

// NewConsumerServer 创建消费者服务器.
func NewConsumerServer(name string, consumer messaging.Consumer, topics []string, handler messaging.MessageHandler) *ConsumerServer {
	return &ConsumerServer{
		name:     name,
		consumer: consumer,
		topics:   topics,
		handler:  handler,
	}
}

// Start 启动消费循环（阻塞）.
func (s *ConsumerServer) Start(ctx context.Context) error {
	return s.consumer.Consume(ctx, s.topics, s.handler)
}

// Stop 关闭消费者.
func (s *ConsumerServer) Stop(_ context.Context) error {
	return s.consumer.Close()
}

// Name 返回服务器名称.
func (s *ConsumerServer) Name() string {
	return s.name
}

// SweeperServer 把卡死步骤巡检包装为后台服务器.
type SweeperServer struct {
	sweeper *sweeper.Sweeper
}

// NewSweeperServer 创建巡检服务器.
func NewSweeperServer(s *sweeper.Sweeper) *SweeperServer {
	return &SweeperServer{sweeper: s}
}

// Start 启动巡检并等待上下文取消.
func (s *SweeperServer) Start(ctx context.Context) error {
	if err := s.sweeper.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Stop 停止巡检.
func (s *SweeperServer) Stop(_ context.Context) error {
	s.sweeper.Stop()
	return nil
}

// Name 返回服务器名称.
func (s *SweeperServer) Name() string {
	return "sweeper"
}

// HTTPServer 管理 HTTP 端点（指标、健康检查、状态查询）.
type HTTPServer struct {
	addr    string
	handler http.Handler
	logger  logger.Logger
	server  *http.Server
}

// NewHTTPServer 创建 HTTP 服务器.
func NewHTTPServer(addr string, handler http.Handler, log logger.Logger) *HTTPServer {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPServer{
		addr:    addr,
		handler: handler,
		logger:  log,
	}
}

// Start 启动 HTTP 服务器（阻塞）.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.With(logger.String("addr", s.addr)).Info("[HTTP] 服务器启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Stop 停止 HTTP 服务器.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Name 返回服务器名称.
func (s *HTTPServer) Name() string {
	return "http"
}
