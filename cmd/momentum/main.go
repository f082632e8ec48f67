// Package main is the entry point of the Momentum stream supervisor.
// It runs the supervised stream alongside the HTTP API and gRPC health service.
package main

import (
	"flag"
	"os"

	"Momentum/internal/conf"
	"Momentum/internal/server"
	mlog "Momentum/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "momentum"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(logger log.Logger, gs *grpc.Server, hs *http.Server, ss *server.StreamServer) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			gs,
			hs,
			ss,
		),
	)
}

func main() {
	flag.Parse()

	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// zap is not up yet
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLog, err := mlog.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer func() { _ = zapLog.Sync() }()

	logger := log.With(mlog.NewKratosAdapter(zapLog),
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	mlog.NewLogHelper(logger).Startup("momentum starting",
		"stream.name", bc.Stream.Name,
		"stream.url", bc.Stream.URL,
		"stream.proxy", mlog.SanitizeField("proxy", bc.Stream.ProxyURL),
		"http.addr", bc.Server.Http.Addr,
		"grpc.addr", bc.Server.Grpc.Addr,
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
	)

	app, cleanup, err := wireApp(bc.Server, bc.Stream, bc.Circuit, bc.Data, bc.Webhook, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
