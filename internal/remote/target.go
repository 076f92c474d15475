package remote

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
	"github.com/mitchellh/go-homedir"

	"github.com/tastythames/jobdispatch/internal/config"
)

// Target is a fully resolved connection target.
type Target struct {
	Alias         string
	User          string
	Hostname      string
	Port          int
	IdentityFiles []string
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.Hostname, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return t.User + "@" + t.Addr()
}

// ResolveTarget parses [user@]host[:port] and fills the gaps from the
// ssh_config file named in cfg. Explicit parts of host win over ssh_config.
func ResolveTarget(host string, cfg config.Config) (Target, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return Target{}, fmt.Errorf("empty host")
	}

	var t Target
	if i := strings.LastIndex(host, "@"); i >= 0 {
		t.User, host = host[:i], host[i+1:]
	}
	if h, p, err := net.SplitHostPort(host); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return Target{}, fmt.Errorf("bad port in %q", host)
		}
		host, t.Port = h, n
	}
	if host == "" {
		return Target{}, fmt.Errorf("empty host name")
	}
	t.Alias = host
	t.Hostname = host

	sc, err := loadSSHConfig(cfg.SSHConfigFile)
	if err != nil {
		return Target{}, err
	}
	if sc != nil {
		if v, _ := sc.Get(t.Alias, "HostName"); v != "" {
			t.Hostname = v
		}
		if v, _ := sc.Get(t.Alias, "User"); v != "" && t.User == "" {
			t.User = v
		}
		if v, _ := sc.Get(t.Alias, "Port"); v != "" && t.Port == 0 {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				t.Port = n
			}
		}
		files, _ := sc.GetAll(t.Alias, "IdentityFile")
		for _, f := range files {
			if p, err := homedir.Expand(f); err == nil {
				t.IdentityFiles = append(t.IdentityFiles, p)
			}
		}
	}

	if t.Port == 0 {
		t.Port = cfg.Port
	}
	if t.User == "" {
		t.User = currentUser()
	}
	t.IdentityFiles = append(t.IdentityFiles, cfg.IdentityFiles...)
	if len(t.IdentityFiles) == 0 {
		t.IdentityFiles = defaultIdentityFiles()
	}
	return t, nil
}

func loadSSHConfig(path string) (*ssh_config.Config, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ssh config: %w", err)
	}
	defer f.Close()

	sc, err := ssh_config.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("parse ssh config %s: %w", path, err)
	}
	return sc, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func defaultIdentityFiles() []string {
	var out []string
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		if p, err := homedir.Expand("~/.ssh/" + name); err == nil {
			out = append(out, p)
		}
	}
	return out
}
