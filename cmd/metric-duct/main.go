package main

import (
	"context"
	"fmt"
	"os"

	"github.com/keboola/metric-duct/internal/pkg/env"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

func main() {
	cmd := newRootCommand(os.Stdout, os.Stderr, env.FromOs()) // nolint:forbidigo
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errors.Format(errors.PrefixError(err, "fatal error"))) // nolint:forbidigo
		os.Exit(1)
	}
}
