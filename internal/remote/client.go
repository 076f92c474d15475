package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/tastythames/jobdispatch/internal/config"
	"github.com/tastythames/jobdispatch/internal/fault"
	"github.com/tastythames/jobdispatch/internal/logging"
)

// Result is the outcome of one remote command. A non-zero ExitStatus is not
// an error by itself.
type Result struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// Err describes a non-zero exit, or returns nil.
func (r Result) Err() error {
	if r.ExitStatus == 0 {
		return nil
	}
	msg := strings.TrimSpace(r.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(r.Stdout)
	}
	if msg == "" {
		return fmt.Errorf("exit status %d", r.ExitStatus)
	}
	return fmt.Errorf("exit status %d: %s", r.ExitStatus, msg)
}

// Runner is the part of a Session the dispatch steps use.
type Runner interface {
	Exec(ctx context.Context, cmd string, stdin io.Reader) (Result, error)
	Home() string
}

// Session is one authenticated SSH connection. Every Exec opens a new
// channel on it, so authentication happens once per Session.
type Session struct {
	cfg    config.Config
	target Target
	token  string
	home   string
	log    *logrus.Entry

	client *ssh.Client

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open dials host, authenticates, discovers the remote home directory and
// starts the keepalive monitor. All failures are HostUnreachable.
func Open(ctx context.Context, cfg config.Config, host string) (*Session, error) {
	log := logging.FromContext(ctx)

	target, err := ResolveTarget(host, cfg)
	if err != nil {
		return nil, fault.Wrap(fault.HostUnreachable, err, "resolve %s", host)
	}

	hk, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, fault.Wrap(fault.HostUnreachable, err, "host keys for %s", host)
	}
	auth, releaseAgent, err := authMethods(target, cfg, log)
	if err != nil {
		return nil, fault.Wrap(fault.HostUnreachable, err, "credentials for %s", host)
	}
	defer releaseAgent()

	sshCfg := &ssh.ClientConfig{
		User:            target.User,
		Auth:            auth,
		HostKeyCallback: hk,
		Timeout:         cfg.ConnectTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", target.Addr())
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.Wrap(fault.Canceled, ctx.Err(), "connect %s", target)
		}
		return nil, fault.Wrap(fault.HostUnreachable, err, "connect %s", target)
	}

	// the handshake has no context of its own
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	cconn, chans, reqs, err := ssh.NewClientConn(conn, target.Addr(), sshCfg)
	if err != nil {
		conn.Close()
		return nil, fault.Wrap(fault.HostUnreachable, err, "ssh handshake with %s", target)
	}
	// the connection outlives the handshake
	_ = conn.SetDeadline(time.Time{})

	s := &Session{
		cfg:    cfg,
		target: target,
		token:  uuid.NewString(),
		client: ssh.NewClient(cconn, chans, reqs),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.log = log.WithFields(logrus.Fields{"host": target.String(), "session": s.token})

	res, err := s.Exec(ctx, HomeDir(), nil)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		s.client.Close()
		return nil, fault.Wrap(fault.HostUnreachable, err, "discover remote home on %s", target)
	}
	home, err := ParseHome(res.Stdout)
	if err != nil {
		s.client.Close()
		return nil, fault.Wrap(fault.HostUnreachable, err, "discover remote home on %s", target)
	}
	s.home = home

	go s.monitor()

	s.log.WithField("home", home).Debug("session opened")
	return s, nil
}

func (s *Session) Token() string  { return s.token }
func (s *Session) Home() string   { return s.home }
func (s *Session) Target() Target { return s.target }

// Exec runs cmd on a fresh channel of the session. Without a deadline on ctx
// the configured command timeout applies. On cancellation or timeout the
// remote process is killed; cancellation is reported as a Canceled fault.
func (s *Session) Exec(ctx context.Context, cmd string, stdin io.Reader) (Result, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CommandTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fault.Wrap(fault.Canceled, err, "before running remote command")
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return Result{}, fault.Wrap(fault.HostUnreachable, err, "open channel")
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if stdin != nil {
		sess.Stdin = stdin
	}

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		// best-effort terminate
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("remote command %q timed out: %w", firstLine(cmd), ctx.Err())
		}
		return Result{}, fault.Wrap(fault.Canceled, ctx.Err(), "remote command %q", firstLine(cmd))
	case err := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return res, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitStatus = exitErr.ExitStatus()
			return res, nil
		}
		return res, fault.Wrap(fault.HostUnreachable, err, "remote command %q", firstLine(cmd))
	}
}

// Close stops the keepalive monitor and closes the connection. Only the
// first call does any work; later calls return its result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.closeErr = s.client.Close()
		<-s.done
		s.log.Debug("session closed")
	})
	return s.closeErr
}

// monitor sends keepalives until Close.
func (s *Session) monitor() {
	defer close(s.done)
	if s.cfg.KeepaliveInterval <= 0 {
		<-s.stop
		return
	}

	ticker := time.NewTicker(s.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if _, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				s.log.WithError(err).Warn("keepalive failed")
			}
		}
	}
}

// RemotePath joins remote path elements with forward slashes.
func RemotePath(elem ...string) string {
	return path.Join(elem...)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}
