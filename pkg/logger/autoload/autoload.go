// Package autoload initializes the global logger from the LOG_* environment
// on import, for binaries that have no earlier hook.
package autoload

import (
	configx "github.com/Asygurare/salespilot/pkg/config"
	logx "github.com/Asygurare/salespilot/pkg/logger"
)

func init() {
	logx.Init(*configx.MustLoad[logx.Config]("LOG"))
}
