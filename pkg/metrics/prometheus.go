package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
)

// PrometheusConfig holds Prometheus server configuration.
type PrometheusConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// PrometheusHandler handles Prometheus metrics HTTP requests.
type PrometheusHandler struct {
	collector *Collector
}

// NewPrometheusHandler creates a new Prometheus handler.
func NewPrometheusHandler(collector *Collector) *PrometheusHandler {
	return &PrometheusHandler{collector: collector}
}

// ServeHTTP handles HTTP requests for metrics.
func (h *PrometheusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	var output strings.Builder

	output.WriteString("# HELP dlpctl_frames_sent_total Total HID report frames sent\n")
	output.WriteString("# TYPE dlpctl_frames_sent_total counter\n")
	fmt.Fprintf(&output, "dlpctl_frames_sent_total %d\n", h.collector.GetFramesSent())

	output.WriteString("# HELP dlpctl_frames_received_total Total HID report frames received\n")
	output.WriteString("# TYPE dlpctl_frames_received_total counter\n")
	fmt.Fprintf(&output, "dlpctl_frames_received_total %d\n", h.collector.GetFramesReceived())

	output.WriteString("# HELP dlpctl_bytes_sent_total Total bytes sent over HID\n")
	output.WriteString("# TYPE dlpctl_bytes_sent_total counter\n")
	fmt.Fprintf(&output, "dlpctl_bytes_sent_total %d\n", h.collector.GetBytesSent())

	output.WriteString("# HELP dlpctl_bytes_received_total Total bytes received over HID\n")
	output.WriteString("# TYPE dlpctl_bytes_received_total counter\n")
	fmt.Fprintf(&output, "dlpctl_bytes_received_total %d\n", h.collector.GetBytesReceived())

	output.WriteString("# HELP dlpctl_uploads_total Total completed upload operations\n")
	output.WriteString("# TYPE dlpctl_uploads_total counter\n")
	fmt.Fprintf(&output, "dlpctl_uploads_total %d\n", h.collector.GetUploadsTotal())

	output.WriteString("# HELP dlpctl_uploads_failed_total Total uploads that ended in an error\n")
	output.WriteString("# TYPE dlpctl_uploads_failed_total counter\n")
	fmt.Fprintf(&output, "dlpctl_uploads_failed_total %d\n", h.collector.GetUploadsFailed())

	output.WriteString("# HELP dlpctl_controller_errors_total Controller error replies, by error code\n")
	output.WriteString("# TYPE dlpctl_controller_errors_total counter\n")
	for code, count := range h.collector.GetControllerErrors() {
		fmt.Fprintf(&output, "dlpctl_controller_errors_total{code=\"%d\"} %d\n", code, count)
	}

	if mode := h.collector.GetCurrentDisplayMode(); mode != "" {
		output.WriteString("# HELP dlpctl_display_mode_info Current display mode, as a label\n")
		output.WriteString("# TYPE dlpctl_display_mode_info gauge\n")
		fmt.Fprintf(&output, "dlpctl_display_mode_info{mode=\"%s\"} 1\n", mode)
	}

	w.Write([]byte(output.String()))
}

// PrometheusServer is an HTTP server exposing the Collector's metrics.
type PrometheusServer struct {
	config    PrometheusConfig
	collector *Collector
	log       *logger.Logger
	server    *http.Server
}

// NewPrometheusServer creates a new Prometheus metrics server.
func NewPrometheusServer(config PrometheusConfig, collector *Collector, log *logger.Logger) *PrometheusServer {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}
	return &PrometheusServer{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
	}
}

// Start runs the Prometheus metrics server until ctx is cancelled. It
// returns nil immediately if the server is disabled.
func (s *PrometheusServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("prometheus metrics server disabled")
		return nil
	}

	handler := NewPrometheusHandler(s.collector)
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, handler)

	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen on %s: %w", addr, err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{Handler: mux}

	s.log.Info("starting prometheus metrics server",
		logger.Int("port", actualPort),
		logger.String("path", s.config.Path))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down prometheus metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics: server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Stop stops the Prometheus metrics server, if running.
func (s *PrometheusServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
}
