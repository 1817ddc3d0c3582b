package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yuqie6/Sanpai/internal/bootstrap"
	"github.com/yuqie6/Sanpai/internal/eventbus"
	"github.com/yuqie6/Sanpai/internal/metrics"
	"github.com/yuqie6/Sanpai/internal/pkg/buildinfo"
)

// Server 对外 HTTP 服务
type Server struct {
	core    *bootstrap.Core
	api     *apiServer
	handler http.Handler
}

// New 构建路由；不监听端口
func New(core *bootstrap.Core) (*Server, error) {
	if core == nil {
		return nil, fmt.Errorf("core 不能为空")
	}
	hub := core.Hub
	if hub == nil {
		hub = eventbus.NewHub()
	}
	api := newAPI(core, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", api.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/events", api.wrapGET(api.handleSSE))
	api.registerJSONRoutes(mux)

	return &Server{core: core, api: api, handler: observe(mux)}, nil
}

// Handler 完整的 HTTP 处理链，测试直接使用
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve 监听 listenAddr 直到 ctx 结束，随后优雅关闭
func (s *Server) Serve(ctx context.Context, listenAddr string) error {
	if strings.TrimSpace(listenAddr) == "" {
		listenAddr = "127.0.0.1:8080"
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", listenAddr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	slog.Info("HTTP 服务已启动", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server 异常退出: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("关闭 http server 失败: %w", err)
		}
		slog.Info("HTTP 服务已关闭")
		return nil
	}
}

type apiServer struct {
	core      *bootstrap.Core
	hub       *eventbus.Hub
	limiter   *rateLimiter
	startTime time.Time
}

func newAPI(core *bootstrap.Core, hub *eventbus.Hub) *apiServer {
	return &apiServer{
		core:      core,
		hub:       hub,
		limiter:   newRateLimiter(core.Cfg.Server.RateLimitRPS, core.Cfg.Server.RateLimitBurst),
		startTime: time.Now(),
	}
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"ok":             true,
		"name":           a.core.Cfg.App.Name,
		"version":        buildinfo.Version,
		"commit":         buildinfo.Commit,
		"driver":         a.core.DB.Driver,
		"schema_version": a.core.DB.SchemaVersion,
		"started_at":     a.startTime.Format(time.RFC3339),
	}
	if a.core.DB.SafeMode {
		status = http.StatusServiceUnavailable
		body["ok"] = false
		body["safe_mode"] = true
		body["migration_error"] = a.core.DB.MigrationError
	}
	writeJSON(w, status, body)
}

func (a *apiServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream not supported")
		return
	}

	filter := eventbus.Filter{Types: eventbus.ParseTypes(r.URL.Query().Get("types"))}
	if s := r.URL.Query().Get("user_id"); s != "" {
		id, err := parseInt64Param(s)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "user_id 无效")
			return
		}
		filter.UserID = id
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	sub := a.hub.Subscribe(ctx, 32, filter)

	_, _ = io.WriteString(w, "event: ready\n")
	_, _ = io.WriteString(w, "data: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, "event: ping\n")
			_, _ = io.WriteString(w, "data: {}\n\n")
			flusher.Flush()
		case evt, ok := <-sub:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt)
			_, _ = io.WriteString(w, "event: "+sanitizeSSEName(evt.Type)+"\n")
			_, _ = io.WriteString(w, "data: ")
			_, _ = w.Write(b)
			_, _ = io.WriteString(w, "\n\n")
			flusher.Flush()
		}
	}
}

func sanitizeSSEName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return "message"
	}
	n = strings.ReplaceAll(n, "\n", "")
	n = strings.ReplaceAll(n, "\r", "")
	return n
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// observe 记录请求指标；路径标签取路由模式，避免任意 URL 撑爆基数
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTP(r.Method, path, rec.status, time.Since(start))
	})
}
