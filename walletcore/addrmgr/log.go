package addrmgr

import "github.com/nodech/hsd/walletcore/hslog"

var log hslog.Logger = hslog.Disabled

// UseLogger directs package output at the given logger.
func UseLogger(logger hslog.Logger) { log = logger }
