// internal/pkg/tracing/tracer.go
package tracing

import (
	"log"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitTracerProvider 初始化 Jaeger TracerProvider 并注册为全局。
// serviceName 在 Jaeger UI 中区分 checkout-service / inventory-service / expiry-reaper。
func InitTracerProvider(serviceName, jaegerEndpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return nil, err
	}

	env := os.Getenv("DEPLOY_ENV")
	if env == "" {
		env = "dev"
	}

	tp := sdktrace.NewTracerProvider(
		// 采样跟随上游决定，根 Span 全采；锁竞争问题靠完整调用链定位
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		// 批处理上报，避免每个 Span 一次网络往返
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceNamespaceKey.String("storefront"),
			semconv.DeploymentEnvironmentKey.String(env),
		)),
	)

	otel.SetTracerProvider(tp)
	// W3C traceparent + baggage，HTTP 调用链（定价、库存）靠它传递上下文
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	log.Printf("Tracing initialized for service '%s' exporting to '%s' (env %s)", serviceName, jaegerEndpoint, env)
	return tp, nil
}
