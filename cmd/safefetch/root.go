package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/safefetch/internal/adapter/filesystem"
	"github.com/vertextoedge/safefetch/internal/adapter/sqlite"
	"github.com/vertextoedge/safefetch/internal/adapter/transfer"
	"github.com/vertextoedge/safefetch/internal/config"
	"github.com/vertextoedge/safefetch/internal/logger"
	"github.com/vertextoedge/safefetch/internal/port"
	"github.com/vertextoedge/safefetch/internal/service/fetcher"
	"github.com/vertextoedge/safefetch/internal/service/retry"
	"github.com/vertextoedge/safefetch/internal/service/verifier"
)

// app holds the flags shared by every command and the wiring built from them
type app struct {
	configPath string
	baseDir    string
	logLevel   string
	noJournal  bool

	cfg    *config.Config
	logger *zap.Logger
	store  *sqlite.Store
}

// newRootCmd builds the command tree. The caller closes the returned app once
// the command has run, whether it failed or not.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:               "safefetch",
		Short:             "Download files into a directory safely: resumable, verified, never half-written",
		Version:           version,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to a YAML configuration file")
	flags.StringVarP(&a.baseDir, "base-dir", "d", "", "directory downloads are placed under (overrides download.base_dir)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&a.noJournal, "no-journal", false, "do not record transfers in the journal")

	root.AddCommand(
		newGetCmd(a),
		newBatchCmd(a),
		newHistoryCmd(a),
		newPruneCmd(a),
		newDigestsCmd(),
		newVersionCmd(),
	)
	return root, a
}

// usageArgs turns argument count errors into usage errors
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return &usageError{err: err}
	}
	if a.baseDir != "" {
		cfg.Download.BaseDir = a.baseDir
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return &usageError{err: err}
	}
	a.logger = logger.GetZapLogger()
	return nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}

// journal opens the journal database unless it is disabled
func (a *app) journal() (*sqlite.Store, error) {
	if a.store != nil || a.noJournal || a.cfg.Database.Path == "" {
		return a.store, nil
	}
	store, err := sqlite.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	a.store = store
	return store, nil
}

func (a *app) partialStore() (*filesystem.Manager, error) {
	return filesystem.NewManager(a.cfg.Download.BaseDir)
}

// fetcher wires the download pipeline from configuration
func (a *app) fetcher() (*fetcher.Fetcher, error) {
	d := a.cfg.Download

	fsManager, err := a.partialStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem manager: %w", err)
	}

	client := transfer.New(transfer.Config{
		UserAgent:      d.UserAgent,
		MaxRedirects:   d.MaxRedirects,
		ConnectTimeout: d.GetConnectTimeout(),
		SkipTLSVerify:  d.SkipTLSVerify,
		FTP: transfer.FTPConfig{
			Username:    a.cfg.FTP.Username,
			Password:    a.cfg.FTP.Password,
			ExplicitTLS: a.cfg.FTP.ExplicitTLS,
		},
		SFTP: transfer.SFTPConfig{
			Username:              a.cfg.SFTP.Username,
			Password:              a.cfg.SFTP.Password,
			PrivateKeyPath:        a.cfg.SFTP.PrivateKey,
			KnownHostsPath:        a.cfg.SFTP.KnownHosts,
			InsecureIgnoreHostKey: a.cfg.SFTP.InsecureIgnoreHostKey,
		},
		S3: transfer.S3Config{
			Region:       a.cfg.S3.Region,
			Endpoint:     a.cfg.S3.Endpoint,
			UsePathStyle: a.cfg.S3.UsePathStyle,
		},
	}, a.logger)

	retryCfg := retry.DefaultConfig()
	retryCfg.Attempts = d.RetryAttempts
	retryCfg.Wait = d.GetRetryWait()
	retryCfg.MaxWait = d.GetRetryMaxWait()

	var journal port.Journal
	store, err := a.journal()
	if err != nil {
		// The journal is optional; downloads proceed without it
		a.logger.Warn("journal disabled", zap.Error(err))
	} else if store != nil {
		journal = store
	}

	return fetcher.New(&fetcher.Config{
		AlwaysKeepPartBytes: d.GetAlwaysKeepPartBytes(),
		Timeout:             d.GetTimeout(),
		ProgressInterval:    d.GetProgressInterval(),
		MaxBytesPerSec:      d.GetMaxBytesPerSec(),
		Concurrency:         d.Concurrency,
	}, fsManager, client, verifier.New(a.logger), retry.New(retryCfg, a.logger), journal, a.logger)
}
