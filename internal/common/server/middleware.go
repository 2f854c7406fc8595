package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/FleetLink/FleetLink/internal/common/logger"
	"github.com/FleetLink/FleetLink/internal/common/middleware"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// Middleware 标准 HTTP 中间件签名。
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串起来（按传入顺序执行）。
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		m := middlewares[i]
		if m == nil {
			continue
		}
		h = m(h)
	}
	return h
}

// RecoveryMiddleware 防止 panic 直接把进程打崩，并记录栈信息。
func RecoveryMiddleware(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if log != nil {
						log.Errorf("panic in http path=%s err=%v stack=%s", r.URL.Path, rec, string(debug.Stack()))
					}
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder 截获写出的状态码，供访问日志使用。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// AccessLogMiddleware 记录每个 HTTP 请求的耗时/状态码。
func AccessLogMiddleware(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			cost := time.Since(start)

			if log != nil {
				fields := map[string]interface{}{
					"method": r.Method,
					"path":   r.URL.Path,
					"status": rec.status,
					"cost":   cost.String(),
				}
				if rec.status >= http.StatusInternalServerError {
					log.WithFields(fields).Warn("http request failed")
				} else {
					log.WithFields(fields).Info("http request ok")
				}
			}
		})
	}
}

// TracingMiddleware 基于 OpenTracing 的最小 server 中间件：
// - 从请求头里提取 span context（uber-trace-id / traceparent 等，取决于上游注入格式）
// - 创建 server span，并注入到 ctx，方便业务侧 opentracing.StartSpanFromContext 使用
func TracingMiddleware(serviceName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracer := opentracing.GlobalTracer()

			var parent opentracing.SpanContext
			if sc, err := tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(r.Header)); err == nil {
				parent = sc
			}

			operation := fmt.Sprintf("%s %s", r.Method, r.URL.Path)

			var span opentracing.Span
			if parent != nil {
				span = tracer.StartSpan(operation, ext.RPCServerOption(parent))
			} else {
				span = tracer.StartSpan(operation)
			}
			defer span.Finish()

			ext.SpanKindRPCServer.Set(span)
			ext.Component.Set(span, "http")
			ext.HTTPMethod.Set(span, r.Method)
			ext.HTTPUrl.Set(span, r.URL.Path)
			if serviceName != "" {
				span.SetTag("service", serviceName)
			}

			ctx := opentracing.ContextWithSpan(r.Context(), span)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware 全局限流。limiter 为 nil 时直接放行。
func RateLimitMiddleware(limiter middleware.RateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r.Context()) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
