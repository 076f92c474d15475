// Package sshtest runs a small SSH server for tests. Exec requests are run
// with "sh -c" inside a temporary HOME, and a bin directory placed first on
// PATH lets tests stand in for cluster tools such as sbatch.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/tastythames/jobdispatch/internal/config"
)

type Server struct {
	Home string
	Bin  string

	listener net.Listener
	config   *ssh.ServerConfig

	conns    atomic.Int64
	channels atomic.Int64
	open     atomic.Int64

	mu       sync.Mutex
	commands []string
	wg       sync.WaitGroup
}

// Start launches a server on 127.0.0.1 and stops it when the test ends.
func Start(t testing.TB) *Server {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshtest: host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("sshtest: signer: %v", err)
	}

	s := &Server{
		Home:   filepath.Join(t.TempDir(), "home"),
		Bin:    filepath.Join(t.TempDir(), "bin"),
		config: &ssh.ServerConfig{NoClientAuth: true},
	}
	s.config.AddHostKey(signer)
	for _, d := range []string{s.Home, s.Bin} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("sshtest: %v", err)
		}
	}

	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("sshtest: listen: %v", err)
	}

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Stop)
	return s
}

// Host is the value to pass as the dispatch host.
func (s *Server) Host() string {
	return "tester@" + s.listener.Addr().String()
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Config returns a client configuration that trusts this server.
func (s *Server) Config() config.Config {
	cfg := config.Default()
	cfg.InsecureSkipHostKey = true
	cfg.SSHConfigFile = ""
	cfg.KnownHostsFile = ""
	cfg.IdentityFiles = []string{filepath.Join(s.Bin, "no-such-key")}
	cfg.KeepaliveInterval = 0
	return cfg
}

// Tool installs an executable shell script named name on the server PATH.
func (s *Server) Tool(t testing.TB, name, script string) {
	t.Helper()
	p := filepath.Join(s.Bin, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("sshtest: tool %s: %v", name, err)
	}
}

// Connections is the number of SSH connections accepted so far.
func (s *Server) Connections() int64 { return s.conns.Load() }

// OpenConnections is the number of connections not yet closed.
func (s *Server) OpenConnections() int64 { return s.open.Load() }

// Channels is the number of session channels opened so far.
func (s *Server) Channels() int64 { return s.channels.Load() }

// Commands returns every exec request received, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Server) Stop() {
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(nc net.Conn) {
	defer nc.Close()

	sc, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		return
	}
	s.conns.Add(1)
	s.open.Add(1)
	defer s.open.Add(-1)
	defer sc.Close()

	go ssh.DiscardRequests(reqs)

	var wg sync.WaitGroup
	for nch := range chans {
		if nch.ChannelType() != "session" {
			_ = nch.Reject(ssh.UnknownChannelType, "only session channels")
			continue
		}
		ch, chReqs, err := nch.Accept()
		if err != nil {
			continue
		}
		s.channels.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleSession(ch, chReqs)
		}()
	}
	wg.Wait()
}

func (s *Server) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()

	for req := range reqs {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			return
		}
		_ = req.Reply(true, nil)

		s.mu.Lock()
		s.commands = append(s.commands, payload.Command)
		s.mu.Unlock()

		status := s.run(payload.Command, ch, reqs)
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
		return
	}
}

// run executes command and kills it when the client sends a signal or goes
// away before it finishes.
func (s *Server) run(command string, ch ssh.Channel, reqs <-chan *ssh.Request) uint32 {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = s.Home
	cmd.Env = []string{
		"HOME=" + s.Home,
		"PATH=" + s.Bin + string(os.PathListSeparator) + os.Getenv("PATH"),
		"LC_ALL=C",
	}
	cmd.Stdin = ch
	cmd.Stdout = ch
	cmd.Stderr = ch.Stderr()
	cmd.WaitDelay = 200 * time.Millisecond

	if err := cmd.Start(); err != nil {
		_, _ = io.WriteString(ch.Stderr(), "sshtest: "+err.Error()+"\n")
		return 127
	}

	finished := make(chan struct{})
	go func() {
		for req := range reqs {
			if req.WantReply {
				_ = req.Reply(req.Type == "signal", nil)
			}
			if req.Type == "signal" {
				break
			}
		}
		select {
		case <-finished:
		default:
			_ = cmd.Process.Kill()
		}
		go ssh.DiscardRequests(reqs)
	}()

	err := cmd.Wait()
	close(finished)
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return uint32(code)
		}
	}
	return 255
}
