// Command qabase runs the batch side of the content service: imports,
// reference resync, duplicate cleanup and collection counts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/qabase/qabase/backend/go-services/internal/config"
	"github.com/qabase/qabase/backend/go-services/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	e := &env{}
	err := newRootCmd(e).ExecuteContext(ctx)
	e.close()
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, config.ErrFatalConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
