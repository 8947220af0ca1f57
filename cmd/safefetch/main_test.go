package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/safefetch/internal/domain"
)

const sha1Of10 = "87acec17cd9dcd20a716cc2cf67417b71c8a7016"

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &usageError{err: errors.New("accepts 2 arg(s)")}, ExitInvalidArgs},
		{"invalid request", fmt.Errorf("%w: empty url", domain.ErrInvalidRequest), ExitInvalidArgs},
		{"duplicate target", domain.ErrDuplicateTarget, ExitInvalidArgs},
		{"path escape", domain.NewPathEscapeError("/base", "../x", "parent segment"), ExitPathEscape},
		{"protocol", &domain.ProtocolError{URL: "file:///etc/passwd", Scheme: "file"}, ExitProtocolNotAllowed},
		{"transient", domain.NewTransientError("http://h/x", 503, "Service Unavailable", nil), ExitTransferFailed},
		{"fatal", domain.NewFatalError("http://h/x", 404, "Not Found", nil), ExitTransferFailed},
		{"interrupted", fmt.Errorf("%w: %w", domain.ErrInterrupted, context.Canceled), ExitInterrupted},
		{"verification", fmt.Errorf("%w: sha1 mismatch", domain.ErrVerificationFailed), ExitVerificationFailed},
		{"conflict", fmt.Errorf("%w: %w", domain.ErrPromotion, domain.ErrTargetConflict), ExitPromotionFailed},
		{"space", domain.ErrInsufficientSpace, ExitTransferFailed},
		{"other", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRun(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"version", []string{"version"}, ExitSuccess},
		{"digests", []string{"digests"}, ExitSuccess},
		{"missing args", []string{"get", "http://127.0.0.1:1/x"}, ExitInvalidArgs},
		{"unknown flag", []string{"get", "--bogus"}, ExitInvalidArgs},
		{"bad digest flag", []string{"get", "--no-journal", "-d", base, "http://127.0.0.1:1/x", "x", "--digest", "sha1"}, ExitInvalidArgs},
		{"path escape", []string{"get", "--no-journal", "-d", base, "http://127.0.0.1:1/x", "../x"}, ExitPathEscape},
		{"protocol", []string{"get", "--no-journal", "-d", base, "file:///etc/passwd", "passwd"}, ExitProtocolNotAllowed},
		{"protocol flag", []string{"get", "--no-journal", "-d", base, "http://127.0.0.1:1/x", "x", "--protocols", "sftp"}, ExitProtocolNotAllowed},
		{"missing manifest", []string{"batch", "--no-journal", "-d", base, base + "/none.yaml"}, ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.args); got != tt.want {
				t.Errorf("run(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestGetOptions_Request(t *testing.T) {
	cmd := newGetCmd(&app{})
	if err := cmd.ParseFlags([]string{"--size", "10", "--digest", "sha1=ABC", "--digest", "md5=def", "--keep-part", "1KiB"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	opts := getOptionsOf(t, cmd)
	req, err := opts.request(cmd, "http://h/x", "x", domain.DefaultProtocols)
	if err != nil {
		t.Fatalf("request() error = %v", err)
	}
	if req.ExpectedSize == nil || *req.ExpectedSize != 10 {
		t.Errorf("ExpectedSize = %v, want 10", req.ExpectedSize)
	}
	if req.Digests["sha1"] != "ABC" || req.Digests["md5"] != "def" {
		t.Errorf("Digests = %v", req.Digests)
	}
	if req.AlwaysKeepPartBytes == nil || *req.AlwaysKeepPartBytes != 1024 {
		t.Errorf("AlwaysKeepPartBytes = %v, want 1024", req.AlwaysKeepPartBytes)
	}
	if req.Protocols != domain.DefaultProtocols {
		t.Errorf("Protocols = %v, want defaults", req.Protocols)
	}
}

func TestGetOptions_RequestSizeUnset(t *testing.T) {
	cmd := newGetCmd(&app{})
	opts := getOptionsOf(t, cmd)
	req, err := opts.request(cmd, "http://h/x", "x", domain.DefaultProtocols)
	if err != nil {
		t.Fatalf("request() error = %v", err)
	}
	if req.ExpectedSize != nil {
		t.Errorf("ExpectedSize = %v, want nil", *req.ExpectedSize)
	}
}

func TestGetOptions_DuplicateDigest(t *testing.T) {
	tests := []struct {
		name    string
		digests []string
	}{
		{"same spelling", []string{"sha1=" + sha1Of10, "sha1=" + sha1Of10}},
		{"other spelling", []string{"sha1=" + sha1Of10, "SHA-1=" + sha1Of10}},
		{"unknown repeated", []string{"crc32=00", "CRC32=11"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newGetCmd(&app{})
			opts := &getOptions{size: -1, digests: tt.digests}
			_, err := opts.request(cmd, "http://h/x", "x", domain.DefaultProtocols)
			var ue *usageError
			if !errors.As(err, &ue) {
				t.Errorf("request() error = %v, want usage error", err)
			}
		})
	}
}

func TestRun_ClosesJournalOnFailure(t *testing.T) {
	base := t.TempDir()
	t.Setenv("SAFEFETCH_DATABASE_PATH", filepath.Join(t.TempDir(), "journal.db"))

	root, a := newRootCmd()
	root.SetArgs([]string{"get", "-d", base, "http://127.0.0.1:1/x", "../x"})
	if err := root.ExecuteContext(context.Background()); exitCode(err) != ExitPathEscape {
		t.Fatalf("Execute() error = %v, want path escape", err)
	}
	store := a.store
	if store == nil {
		t.Fatal("journal was not opened")
	}

	a.close()
	if err := store.Ping(); err == nil {
		t.Error("journal still open after close")
	}
	if a.store != nil {
		t.Error("app still holds the journal after close")
	}
}

// getOptionsOf rebuilds the options from parsed flags
func getOptionsOf(t *testing.T, cmd *cobra.Command) *getOptions {
	t.Helper()
	flags := cmd.Flags()
	opts := &getOptions{}
	var err error
	if opts.size, err = flags.GetInt64("size"); err != nil {
		t.Fatal(err)
	}
	if opts.digests, err = flags.GetStringArray("digest"); err != nil {
		t.Fatal(err)
	}
	if opts.keep, err = flags.GetString("keep-part"); err != nil {
		t.Fatal(err)
	}
	if opts.protocols, err = flags.GetString("protocols"); err != nil {
		t.Fatal(err)
	}
	return opts
}
