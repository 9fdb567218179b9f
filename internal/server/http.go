package server

import (
	"subscription-service/internal/conf"
	"subscription-service/internal/service"

	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(c *conf.Bootstrap, metering *service.MeteringService) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if c.Server != nil && c.Server.Http != nil {
		if c.Server.Http.Network != "" {
			opts = append(opts, http.Network(c.Server.Http.Network))
		}
		if c.Server.Http.Addr != "" {
			opts = append(opts, http.Address(c.Server.Http.Addr))
		}
		if c.Server.Http.Timeout != "" {
			opts = append(opts, http.Timeout(c.Server.Http.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)

	registerMeteringRoutes(srv, metering)

	// Prometheus 指标
	srv.Handle("/metrics", promhttp.Handler())

	return srv
}

func registerMeteringRoutes(srv *http.Server, svc *service.MeteringService) {
	r := srv.Route("/v1/metering")

	r.POST("/check", func(ctx http.Context) error {
		var req service.CheckQuotaRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := svc.CheckQuota(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/record", func(ctx http.Context) error {
		var req service.RecordUsageRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := svc.RecordUsage(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.GET("/summary/{user_id}", func(ctx http.Context) error {
		var req service.UsageSummaryRequest
		if err := ctx.BindVars(&req); err != nil {
			return err
		}
		reply, err := svc.GetUsageSummary(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.GET("/tiers/{name}", func(ctx http.Context) error {
		var req service.TierRequest
		if err := ctx.BindVars(&req); err != nil {
			return err
		}
		reply, err := svc.GetTier(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.GET("/records/{user_id}", func(ctx http.Context) error {
		var req service.ListRecordsRequest
		if err := ctx.BindVars(&req); err != nil {
			return err
		}
		if err := ctx.BindQuery(&req); err != nil {
			return err
		}
		reply, err := svc.ListRecords(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})
}
