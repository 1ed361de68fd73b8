// saasbooks-admin is the operator CLI: row-security deployment and
// audit-trail extraction. Exit codes: 0 success, 2 usage error,
// 3 configuration error, 4 runtime failure.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/saasbooks/backend/internal/infrastructure/config"
	"github.com/saasbooks/backend/internal/infrastructure/logger"
	"github.com/saasbooks/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	exitUsage   = 2
	exitConfig  = 3
	exitRuntime = 4
)

// codedError carries the process exit code alongside the cause.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func usageErr(format string, args ...any) error {
	return &codedError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

func configErr(err error) error {
	return &codedError{code: exitConfig, err: err}
}

func runtimeErr(err error) error {
	return &codedError{code: exitRuntime, err: err}
}

var logLevel string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "saasbooks-admin",
		Short:         "Operator tooling for the SaaSBooks backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(newRLSCmd())
	root.AddCommand(newAuditCmd())
	return root
}

func newLogger() (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:  logLevel,
		Format: "console",
		Output: "stderr",
	})
}

// openDatabase loads configuration and connects. Configuration
// problems and connection problems exit with different codes so
// deployment scripts can tell them apart.
func openDatabase() (*persistence.Database, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, configErr(err)
	}
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, nil, runtimeErr(err)
	}
	return db, cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
		var coded *codedError
		if errors.As(err, &coded) {
			os.Exit(coded.code)
		}
		// Errors cobra raises itself are flag and argument mistakes.
		os.Exit(exitUsage)
	}
}
