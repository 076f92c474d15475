package remote_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastythames/jobdispatch/internal/remote"
)

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"":                 "''",
		"plain":            "plain",
		"/home/u/jobs/a.b": "/home/u/jobs/a.b",
		"KEY=v,w:x+y@z%":   "KEY=v,w:x+y@z%",
		"two words":        "'two words'",
		"it's":             `'it'\''s'`,
		"$HOME":            "'$HOME'",
		"a;rm -rf /":       "'a;rm -rf /'",
		"--nodes=2 -t 1":   "'--nodes=2 -t 1'",
	}
	for in, want := range tests {
		assert.Equal(t, want, remote.Quote(in), "Quote(%q)", in)
	}
}

func TestCommandBuilders(t *testing.T) {
	assert.Equal(t, "mkdir -p -- /h/jobs/a '/h/jobs/a b'", remote.MkdirAll("/h/jobs/a", "/h/jobs/a b"))
	assert.Equal(t, "command -v sbatch >/dev/null 2>&1", remote.CommandExists("sbatch"))
	assert.Equal(t,
		"cd /h/d 2>/dev/null && sha256sum -- a.txt 'b c' 2>/dev/null; exit 0",
		remote.Checksums("/h/d", []string{"a.txt", "b c"}))
	assert.Equal(t,
		"mkdir -p -- /h/d && cat > /h/d/x.part && chmod 755 /h/d/x.part && mv -f -- /h/d/x.part /h/d/x",
		remote.Upload("/h/d/x", "/h/d/x.part", os.FileMode(0o755)))
	assert.Equal(t,
		"A=1 B='two words' sbatch x.sh",
		remote.WithEnv([][2]string{{"A", "1"}, {"B", "two words"}}, "sbatch x.sh"))
	assert.Equal(t, "qsub -N job '/h/my job.sh'", remote.Join("qsub", "-N", "job", "/h/my job.sh"))
}

func TestParseHome(t *testing.T) {
	home, err := remote.ParseHome("/home/alice/\n")
	require.NoError(t, err)
	assert.Equal(t, "/home/alice", home)

	for _, bad := range []string{"", "   ", "relative/home"} {
		_, err := remote.ParseHome(bad)
		assert.Error(t, err, "ParseHome(%q)", bad)
	}
}

func TestParseChecksums(t *testing.T) {
	const (
		sumA = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
		sumB = "486EA46224D1BB4FB680F34F7C9AD96A8F24EC88BE73EA8E5A6C65260E9CB8A7"
	)
	out := sumA + "  a.txt\n" +
		sumB + " *b.bin\r\n" +
		`\` + sumA + "  we\\nird\n" +
		"short  c.txt\n" +
		"\n" +
		sumA + "  with space.txt\n"

	got := remote.ParseChecksums(out)
	assert.Equal(t, map[string]string{
		"a.txt":          sumA,
		"b.bin":          "486ea46224d1bb4fb680f34f7c9ad96a8f24ec88be73ea8e5a6c65260e9cb8a7",
		"with space.txt": sumA,
	}, got)

	assert.Empty(t, remote.ParseChecksums(""))
}

func TestRemotePath(t *testing.T) {
	assert.Equal(t, "/h/jobs/x/data", remote.RemotePath("/h", "jobs", "x", "data"))
	assert.Equal(t, "/h/jobs/x", remote.RemotePath("/h/", "jobs//x/"))
}
