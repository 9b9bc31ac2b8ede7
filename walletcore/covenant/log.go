package covenant

import "github.com/nodech/hsd/walletcore/hslog"

func defaultLogger() hslog.Logger { return hslog.Disabled }

// UseLogger directs package output at the given logger. The default is
// no output, matching wallet.DisableLog/UseLogger in the teacher.
func UseLogger(logger hslog.Logger) { log = logger }
