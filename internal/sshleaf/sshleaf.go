// Package sshleaf implements the SSH-tunnel leaf kind the pipe builder's
// tree-node contract allows, as an in-process alternative to shelling out
// to the ssh binary for the backup engine's remote xlog/data delivery.
package sshleaf

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultTimeout is used when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Config describes one SSH leaf's connection parameters, parsed from a
// destination path of the form ssh://user@host/absolute/path.
type Config struct {
	User string
	Host string // host or host:port; ":22" is assumed if absent
	KeyPath string // private key path; empty tries DefaultKeyPaths + agent
	AllowInsecure bool // skip host-key verification; gated behind --allow-insecure-ssh
	Timeout time.Duration
}

// ParseURI parses a destination path of the form ssh://user@host/absolute/path
// (optionally ssh://user@host:port/absolute/path) into a dial Config plus
// the remote directory the delivered file should land in.
func ParseURI(raw string) (Config, string, error) {
	rest, ok := strings.CutPrefix(raw, "ssh://")
	if !ok {
		return Config{}, "", fmt.Errorf("sshleaf: %q is not an ssh:// URI", raw)
	}
	at := strings.IndexByte(rest, '@')
	if at < 0 {
		return Config{}, "", fmt.Errorf("sshleaf: %q is missing a user@ prefix", raw)
	}
	user := rest[:at]
	rest = rest[at+1:]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return Config{}, "", fmt.Errorf("sshleaf: %q is missing an absolute remote path", raw)
	}
	host := rest[:slash]
	remoteDir := rest[slash:]
	if user == "" || host == "" || remoteDir == "/" {
		return Config{}, "", fmt.Errorf("sshleaf: %q is missing user, host, or remote path", raw)
	}
	return Config{User: user, Host: host}, remoteDir, nil
}

// DefaultKeyPaths tried when Config.KeyPath is empty.
func DefaultKeyPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}
}

// Client wraps a single SSH connection used to stream a FIFO's bytes into
// a remote command's stdin.
type Client struct {
	cfg Config
	client *ssh.Client
}

// Dial establishes the SSH connection.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.User == "" || cfg.Host == "" {
		return nil, fmt.Errorf("sshleaf: user and host are required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	auth, err := authMethods(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: auth,
		HostKeyCallback: hostKeyCallback(cfg.AllowInsecure),
		Timeout: cfg.Timeout,
	}

	addr := cfg.Host
	if !hasPort(addr) {
		addr = addr + ":22"
	}

	type dialResult struct {
		c *ssh.Client
		err error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, clientCfg)
		resultCh <- dialResult{c, err}
	}()

	select {
		case <-ctx.Done():
		return nil, ctx.Err()
		case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("sshleaf: dial %s: %w", addr, r.err)
		}
		return &Client{cfg: cfg, client: r.c}, nil
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.client.Close() }

// UploadFile dials cfg, streams the contents of src into remoteDir/<basename
// of src> via `cat >`, and closes the connection. It is the non-pipelined
// delivery path used when an artifact has already been fully written to a
// local temp file rather than produced incrementally by the pipe builder.
func UploadFile(ctx context.Context, cfg Config, src, remoteDir string) error {
	c, err := Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("sshleaf: open %s: %w", src, err)
	}
	defer f.Close()

	remotePath := remoteDir + "/" + filepath.Base(src)
	remoteCmd := fmt.Sprintf("cat > %s", shellQuote(remotePath))
	return c.StreamInto(ctx, remoteCmd, f)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// StreamInto runs remoteCmd on the remote host (a shell command such as
// `cat > /absolute/path/000000010000000000000001.gz`) with src wired as
// its stdin: every byte the root produces must reach this leaf.
func (c *Client) StreamInto(ctx context.Context, remoteCmd string, src io.Reader) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("sshleaf: new session: %w", err)
	}
	defer session.Close()

	session.Stdin = src

	if err := session.Start(remoteCmd); err != nil {
		return fmt.Errorf("sshleaf: start %q: %w", remoteCmd, err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
		case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return ctx.Err()
		case err := <-done:
		if err != nil {
			return fmt.Errorf("sshleaf: remote command %q failed: %w", remoteCmd, err)
		}
		return nil
	}
}

func hasPort(addr string) bool {
	for i := len(addr) - 1; i >= 0; i-- {
		switch addr[i] {
			case ':':
			return true
			case ']':
			return false
		}
	}
	return false
}

func hostKeyCallback(allowInsecure bool) ssh.HostKeyCallback {
	if allowInsecure {
		return ssh.InsecureIgnoreHostKey()
	}
	home, _ := os.UserHomeDir()
	cb, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		// No known_hosts available: refuse to silently downgrade security;
		// callers must pass AllowInsecure explicitly if they want that.
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			return fmt.Errorf("sshleaf: no known_hosts available and --allow-insecure-ssh not set: %w", err)
		}
	}
	return cb
}

func authMethods(keyPath string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	candidates := []string{keyPath}
	if keyPath == "" {
		candidates = DefaultKeyPaths()
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		key, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			continue
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("sshleaf: no usable private key or ssh-agent found")
	}
	return methods, nil
}
