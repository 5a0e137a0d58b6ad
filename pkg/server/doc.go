// Package server assembles the PE Scanner HTTP service.
//
// New wires the shared store, the quota engine, the upstream throttle and
// client, metrics, tracing and health checks from a validated
// configuration. Serve runs the listener, the store cleanup scheduler and
// the config watcher under one errgroup; cancelling the context shuts all
// three down and drains in-flight requests within the shutdown timeout.
//
// # Routes
//
//	GET  /health, /ready, /version      probes, never quota-limited
//	GET  /metrics                       Prometheus, when enabled
//	GET  /api/analyze/{ticker}          quota-limited, throttled upstream
//	GET  /admin/usage/{tier}/{identity} admin, when enabled
//	DEL  /admin/usage/{tier}/{identity}
//	GET  /admin/throttle
//
// With server.tls.enabled the listener is wrapped in TLS and the
// certificate is reloaded from disk when it changes.
//
// # Basic Usage
//
//	cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//	if err != nil {
//	    return err
//	}
//	srv, err := server.New(cfg, server.Options{Version: version, ConfigPath: "config.yaml"})
//	if err != nil {
//	    return err
//	}
//	defer srv.Close()
//	return srv.Run(ctx)
package server
