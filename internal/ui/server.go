package ui

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/pkg/db"
	"github.com/thep200/github-harvester/pkg/log"
)

// Server là status server HTTP của harvester
type Server struct {
	Logger  log.Logger
	Config  *cfg.Config
	MySQL   *db.Mysql
	handler *Handler
	server  *http.Server
	port    int
}

func NewServer(logger log.Logger, config *cfg.Config, mysql *db.Mysql, port int) (*Server, error) {
	return &Server{
		Logger: logger,
		Config: config,
		MySQL:  mysql,
		port:   port,
	}, nil
}

// Handler trả về handler của server, khởi tạo lười để server có thể
// được tạo trước khi database sẵn sàng
func (s *Server) Handler() (*Handler, error) {
	if s.handler != nil {
		return s.handler, nil
	}

	handler, err := NewHandler(s.Logger, s.Config, s.MySQL)
	if err != nil {
		return nil, fmt.Errorf("failed to create status handler: %w", err)
	}
	s.handler = handler
	return handler, nil
}

// Start khởi động HTTP server, block cho đến khi server dừng
func (s *Server) Start() error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.Logger.Info(context.Background(), "Starting status server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Stop dừng HTTP server một cách nhẹ nhàng
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.Logger.Info(ctx, "Shutting down status server")
		return s.server.Shutdown(ctx)
	}
	return nil
}
