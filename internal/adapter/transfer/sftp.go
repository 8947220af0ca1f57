package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/port"
)

const defaultKnownHosts = "~/.ssh/known_hosts"

type sftpOpener struct {
	cfg Config
}

func (o *sftpOpener) fetch(ctx context.Context, u *url.URL, spec *port.TransferSpec, sink port.Sink, rep *port.TransferReport) error {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "22")
	}

	clientConfig, err := o.clientConfig(u)
	if err != nil {
		return domain.NewFatalError(spec.URL, 0, "", err)
	}

	dialer := net.Dialer{Timeout: o.cfg.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classify(spec.URL, err)
	}

	stop := context.AfterFunc(ctx, func() { netConn.Close() })
	defer stop()

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientConfig)
	if err != nil {
		netConn.Close()
		return o.handshakeError(ctx, spec.URL, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return o.fail(ctx, spec.URL, err)
	}
	defer client.Close()

	info, err := client.Stat(u.Path)
	if err != nil {
		return o.fail(ctx, spec.URL, err)
	}
	if !info.Mode().IsRegular() {
		return domain.NewFatalError(spec.URL, 0, "", fmt.Errorf("%s is not a regular file", u.Path))
	}

	offset, done, err := planFromStat(spec, info.Size(), info.ModTime(), sink, rep)
	if err != nil || done {
		return err
	}

	f, err := client.Open(u.Path)
	if err != nil {
		return o.fail(ctx, spec.URL, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return o.fail(ctx, spec.URL, err)
	}
	if err := copyTo(spec.URL, sink, f); err != nil {
		return o.fail(ctx, spec.URL, err)
	}
	rep.StatusText = "OK"
	return nil
}

func (o *sftpOpener) clientConfig(u *url.URL) (*ssh.ClientConfig, error) {
	user := o.cfg.SFTP.Username
	pass := o.cfg.SFTP.Password
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if user == "" {
		return nil, errors.New("sftp requires a user name")
	}

	var auth []ssh.AuthMethod
	if o.cfg.SFTP.PrivateKeyPath != "" {
		signer, err := loadSigner(o.cfg.SFTP.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if pass != "" {
		auth = append(auth, ssh.Password(pass))
	}
	if len(auth) == 0 {
		return nil, errors.New("sftp requires a password or private key")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if !o.cfg.SFTP.InsecureIgnoreHostKey {
		path := o.cfg.SFTP.KnownHostsPath
		if path == "" {
			path = defaultKnownHosts
		}
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand known_hosts path: %w", err)
		}
		if hostKey, err = knownhosts.New(expanded); err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         o.cfg.ConnectTimeout,
	}, nil
}

func loadSigner(path string) (ssh.Signer, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand private key path: %w", err)
	}
	pem, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

// handshakeError separates broken connections from rejected credentials
// and unknown host keys, which retrying cannot fix
func (o *sftpOpener) handshakeError(ctx context.Context, rawURL string, err error) error {
	if ctx.Err() != nil {
		return classify(rawURL, ctx.Err())
	}
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return domain.NewFatalError(rawURL, 0, "", err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.NewTransientError(rawURL, 0, "", err)
	}
	return classify(rawURL, err)
}

func (o *sftpOpener) fail(ctx context.Context, rawURL string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		var te *domain.TransferError
		if !errors.As(err, &te) {
			return classify(rawURL, ctxErr)
		}
	}
	var status *sftp.StatusError
	if errors.As(err, &status) {
		return domain.NewFatalError(rawURL, int(status.Code), status.Error(), err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, sftp.ErrSSHFxConnectionLost) {
		return domain.NewTransientError(rawURL, 0, "", err)
	}
	return classify(rawURL, err)
}
