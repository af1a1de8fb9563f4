// Package logging builds the root zap loggers of the two binaries from
// config.LogConfig.
//
// Two modes are supported:
//   - Production: sampled JSON for machine parsing
//   - Development: colored console output at debug level
//
// Every component of the host (bridge endpoints, the request handler, the
// install redirector, sandboxes) receives a *zap.Logger and names itself:
//
//	logger := logging.Must(cfg.Logging, logging.ServerName)
//	redirector := install.New(deps, install.WithLogger(logger.Named("install")))
//	logger.Info("bridge connected", zap.String("conn", id))
package logging
