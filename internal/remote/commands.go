package remote

import (
	"fmt"
	"os"
	"path"
	"strings"
)

// Remote commands are built here and nowhere else, so every argument goes
// through Quote.

// Quote returns s as a single POSIX shell word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./=:,+@%", r):
		return false
	}
	return true
}

func quoteAll(args []string) string {
	q := make([]string, len(args))
	for i, a := range args {
		q[i] = Quote(a)
	}
	return strings.Join(q, " ")
}

// HomeDir prints $HOME without a trailing newline.
func HomeDir() string {
	return `printf '%s' "$HOME"`
}

func MkdirAll(dirs ...string) string {
	return "mkdir -p -- " + quoteAll(dirs)
}

// CommandExists exits 0 when tool is on the remote PATH.
func CommandExists(tool string) string {
	return "command -v " + Quote(tool) + " >/dev/null 2>&1"
}

// Checksums prints "<sha256>  <name>" for every name under dir that exists.
// Missing files are skipped silently.
func Checksums(dir string, names []string) string {
	return fmt.Sprintf("cd %s 2>/dev/null && sha256sum -- %s 2>/dev/null; exit 0", Quote(dir), quoteAll(names))
}

// Upload reads stdin into a temporary sibling of dest, sets mode and renames
// it over dest, so readers never see a partial file.
func Upload(dest, tmp string, mode os.FileMode) string {
	return fmt.Sprintf("mkdir -p -- %s && cat > %s && chmod %o %s && mv -f -- %s %s",
		Quote(path.Dir(dest)), Quote(tmp), mode.Perm(), Quote(tmp), Quote(tmp), Quote(dest))
}

// WithEnv prefixes cmd with shell variable assignments, in order.
func WithEnv(env [][2]string, cmd string) string {
	var b strings.Builder
	for _, kv := range env {
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(Quote(kv[1]))
		b.WriteByte(' ')
	}
	b.WriteString(cmd)
	return b.String()
}

// Join quotes argv into one command line.
func Join(argv ...string) string {
	return quoteAll(argv)
}
