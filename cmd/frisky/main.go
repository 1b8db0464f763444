// Package main provides the frisky command line client for hunk-level
// staging.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/crfloyd/git-frisky/internal/gitpanel"
	_ "github.com/crfloyd/git-frisky/internal/vcs/gitcli"
	_ "github.com/crfloyd/git-frisky/internal/vcs/libgit2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorText(err))
		stop()
		os.Exit(1)
	}
}

func errorText(err error) string {
	if bindingErr := gitpanel.AsBindingError(err); bindingErr != nil {
		return bindingErr.Text()
	}
	return err.Error()
}
