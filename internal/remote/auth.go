package remote

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"github.com/tastythames/jobdispatch/internal/config"
)

// authMethods collects every credential source available: ssh-agent,
// unencrypted identity files, a password from the environment, and finally
// an interactive prompt when stdin is a terminal. The returned closer
// releases the agent connection.
func authMethods(t Target, cfg config.Config, log *logrus.Entry) ([]ssh.AuthMethod, func(), error) {
	var (
		methods []ssh.AuthMethod
		signers []ssh.Signer
		closer  = func() {}
	)

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			log.WithError(err).Debug("ssh-agent unavailable")
		} else {
			closer = func() { _ = conn.Close() }
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	for _, path := range t.IdentityFiles {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				log.WithError(err).WithField("identity", path).Debug("identity file unreadable")
			}
			continue
		}
		s, err := ssh.ParsePrivateKey(b)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				log.WithField("identity", path).Debug("identity file is encrypted, leaving it to ssh-agent")
			} else {
				log.WithError(err).WithField("identity", path).Debug("identity file not usable")
			}
			continue
		}
		signers = append(signers, s)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if cfg.PasswordEnv != "" {
		password := os.Getenv(cfg.PasswordEnv)
		if password == "" {
			closer()
			return nil, nil, fmt.Errorf("empty env var: %s", cfg.PasswordEnv)
		}
		methods = append(methods, passwordMethods(password)...)
	} else if term.IsTerminal(int(os.Stdin.Fd())) {
		methods = append(methods, ssh.PasswordCallback(func() (string, error) {
			fmt.Fprintf(os.Stderr, "%s's password: ", t.String())
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			return string(b), err
		}))
	}

	return methods, closer, nil
}

func passwordMethods(password string) []ssh.AuthMethod {
	return []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = password
			}
			return answers, nil
		}),
	}
}

func hostKeyCallback(cfg config.Config) (ssh.HostKeyCallback, error) {
	if cfg.InsecureSkipHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if cfg.KnownHostsFile == "" {
		return nil, fmt.Errorf("no known_hosts file configured; use --insecure-skip-host-key to connect anyway")
	}
	cb, err := knownhosts.New(cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}
