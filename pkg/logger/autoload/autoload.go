// Package autoload initializes the global logger from environment
// configuration as a side effect of being imported.
package autoload

import (
	configx "github.com/ritobank/assistant/pkg/config"
	logx "github.com/ritobank/assistant/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOGGER"))
}
