package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/service/verifier"
)

type getOptions struct {
	size      int64
	digests   []string
	keep      string
	protocols string
}

func newGetCmd(a *app) *cobra.Command {
	opts := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get <url> <relative-path>",
		Short: "Download one URL to a path under the base directory",
		Example: `  safefetch get https://example.com/a.bin a.bin --size 10 --digest sha1=87acec17cd9dcd20a716cc2cf67417b71c8a7016
  safefetch get sftp://host/srv/b.tar archive/b.tar --protocols sftp`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(cmd, args[0], args[1], a.cfg.Download.GetProtocols())
			if err != nil {
				return err
			}

			f, err := a.fetcher()
			if err != nil {
				return err
			}
			res, err := f.Get(cmd.Context(), req)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&opts.size, "size", -1, "expected size in bytes")
	flags.StringArrayVar(&opts.digests, "digest", nil, "expected digest as algorithm=hex, may be repeated")
	flags.StringVar(&opts.keep, "keep-part", "", "keep a staging file of at least this size on a not-modified reply (e.g. 64MiB)")
	flags.StringVar(&opts.protocols, "protocols", "", "comma separated allowed protocols (overrides download.protocols)")
	return cmd
}

func (o *getOptions) request(cmd *cobra.Command, url, relPath string, defaults domain.ProtocolSet) (domain.Request, error) {
	req := domain.Request{URL: url, RelPath: relPath, Protocols: defaults}

	if cmd.Flags().Changed("size") {
		req.ExpectedSize = domain.Int64(o.size)
	}
	if len(o.digests) > 0 {
		req.Digests = make(map[string]string, len(o.digests))
		seen := make(map[string]bool, len(o.digests))
		for _, d := range o.digests {
			name, value, ok := strings.Cut(d, "=")
			if !ok || name == "" || value == "" {
				return req, &usageError{err: fmt.Errorf("invalid --digest %q, want algorithm=hex", d)}
			}
			// unknown names are rejected later with ErrUnsupportedDigest
			key := strings.ToLower(name)
			if c, err := verifier.Canonical(name); err == nil {
				key = c
			}
			if seen[key] {
				return req, &usageError{err: fmt.Errorf("--digest %s given more than once", key)}
			}
			seen[key] = true
			req.Digests[name] = value
		}
	}
	if o.keep != "" {
		n, err := humanize.ParseBytes(o.keep)
		if err != nil {
			return req, &usageError{err: fmt.Errorf("invalid --keep-part: %w", err)}
		}
		req.AlwaysKeepPartBytes = domain.Int64(int64(n))
	}
	if o.protocols != "" {
		p, err := domain.ParseProtocols(o.protocols)
		if err != nil {
			return req, &usageError{err: fmt.Errorf("invalid --protocols: %w", err)}
		}
		req.Protocols = p
	}
	return req, nil
}

func printResult(w io.Writer, res *domain.Result) {
	line := fmt.Sprintf("%-7s %s (%s)", res.State, res.Target, humanize.IBytes(uint64(res.Bytes)))
	if res.Resumed() {
		line += fmt.Sprintf(", resumed from %s", humanize.IBytes(uint64(res.ResumedFrom)))
	}
	if res.Attempts > 1 {
		line += fmt.Sprintf(", %d attempts", res.Attempts)
	}
	if res.State == domain.StateDone {
		line += fmt.Sprintf(", %s", res.Elapsed.Round(1e6))
	}
	fmt.Fprintln(w, line)
}
