package server

import (
	"Momentum/internal/conf"
	"Momentum/internal/server/middleware"
	"Momentum/internal/service"
	pkglog "Momentum/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, streamService *service.StreamService, gatherer prometheus.Gatherer, logger log.Logger) *http.Server {
	logHelper := pkglog.NewLogHelper(log.With(logger, "module", "server/http"))

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper),
		),
	}
	if c != nil && c.Http != nil {
		if c.Http.Network != "" {
			opts = append(opts, http.Network(c.Http.Network))
		}
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		if c.Http.Timeout > 0 {
			opts = append(opts, http.Timeout(c.Http.Timeout))
		}
	}
	srv := http.NewServer(opts...)

	srv.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	service.RegisterStreamServiceHTTPServer(srv, streamService)

	return srv
}
