package remote

import (
	"fmt"
	"path"
	"strings"
)

func ParseHome(out string) (string, error) {
	home := strings.TrimSpace(out)
	if home == "" || !path.IsAbs(home) {
		return "", fmt.Errorf("bad remote home: %q", out)
	}
	return path.Clean(home), nil
}

// ParseChecksums reads sha256sum output: "<hex>  <name>" per line. Names
// that sha256sum had to escape (leading backslash) are skipped; they will
// simply be sent again.
func ParseChecksums(out string) map[string]string {
	sums := map[string]string{}
	for _, ln := range strings.Split(out, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if ln == "" || strings.HasPrefix(ln, `\`) {
			continue
		}
		sum, name, ok := strings.Cut(ln, " ")
		if !ok || len(sum) != 64 {
			continue
		}
		// binary mode marks the name with '*'
		name = strings.TrimPrefix(strings.TrimPrefix(name, " "), "*")
		if name == "" {
			continue
		}
		sums[name] = strings.ToLower(sum)
	}
	return sums
}
