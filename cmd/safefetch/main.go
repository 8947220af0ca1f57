package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/logger"
)

const version = "0.1.0"

// Exit codes, one per error kind
const (
	ExitSuccess            = 0
	ExitGeneralError       = 1
	ExitInvalidArgs        = 2
	ExitPathEscape         = 3
	ExitProtocolNotAllowed = 4
	ExitTransferFailed     = 5
	ExitInterrupted        = 6
	ExitVerificationFailed = 7
	ExitPromotionFailed    = 8
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	a.close()
	defer logger.Sync()

	if err == nil {
		return ExitSuccess
	}
	code := exitCode(err)
	logger.GetZapLogger().Error("command failed",
		zap.String("kind", errorKind(code)),
		zap.Error(err))
	fmt.Fprintln(os.Stderr, "Error:", err)
	return code
}

// usageError marks bad command line input
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ue *usageError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &ue),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrUnsupportedDigest),
		errors.Is(err, domain.ErrDuplicateTarget):
		return ExitInvalidArgs
	case errors.Is(err, domain.ErrPathEscape):
		return ExitPathEscape
	case errors.Is(err, domain.ErrProtocolNotAllowed):
		return ExitProtocolNotAllowed
	case errors.Is(err, domain.ErrInterrupted):
		return ExitInterrupted
	case errors.Is(err, domain.ErrVerificationFailed):
		return ExitVerificationFailed
	case errors.Is(err, domain.ErrPromotion):
		return ExitPromotionFailed
	case errors.Is(err, domain.ErrTransferFailed), errors.Is(err, domain.ErrInsufficientSpace):
		return ExitTransferFailed
	default:
		return ExitGeneralError
	}
}

func errorKind(code int) string {
	switch code {
	case ExitInvalidArgs:
		return "invalid_args"
	case ExitPathEscape:
		return "path_escape"
	case ExitProtocolNotAllowed:
		return "protocol_not_allowed"
	case ExitTransferFailed:
		return "transfer_failed"
	case ExitInterrupted:
		return "interrupted"
	case ExitVerificationFailed:
		return "verification_failed"
	case ExitPromotionFailed:
		return "promotion_failed"
	default:
		return "error"
	}
}
