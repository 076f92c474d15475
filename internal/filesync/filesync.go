// Package filesync pushes local files to the remote job layout. A file is
// sent only when its SHA-256 differs from the copy already on the remote
// host, so repeated dispatches of an unchanged job transfer nothing.
package filesync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/tastythames/jobdispatch/internal/fault"
	"github.com/tastythames/jobdispatch/internal/logging"
	"github.com/tastythames/jobdispatch/internal/remote"
)

// batchSize bounds the number of names per remote sha256sum call.
const batchSize = 100

// Stats summarizes one sync call.
type Stats struct {
	Files    int
	Uploaded int
	Skipped  int
	Bytes    int64
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Files += o.Files
	s.Uploaded += o.Uploaded
	s.Skipped += o.Skipped
	s.Bytes += o.Bytes
}

type Synchronizer struct {
	FS      afero.Fs
	Exclude *patternmatcher.PatternMatcher
	// Timeout bounds each upload.
	Timeout time.Duration
	// Token makes temporary remote names unique to one session.
	Token string
}

// New compiles the exclude patterns. Bad patterns are ConfigInvalid.
func New(fs afero.Fs, exclude []string, timeout time.Duration) (*Synchronizer, error) {
	pm, err := patternmatcher.New(exclude)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, err, "exclude patterns")
	}
	return &Synchronizer{FS: fs, Exclude: pm, Timeout: timeout}, nil
}

// IgnoreFile, when present next to the manifest, adds exclude patterns in
// .dockerignore syntax.
const IgnoreFile = ".jobignore"

// Patterns returns extra followed by the patterns read from dir/IgnoreFile.
func Patterns(fs afero.Fs, dir string, extra []string) ([]string, error) {
	patterns := append([]string(nil), extra...)

	f, err := fs.Open(filepath.Join(dir, IgnoreFile))
	if err != nil {
		if os.IsNotExist(err) {
			return patterns, nil
		}
		return nil, fault.Wrap(fault.ConfigInvalid, err, "open %s", IgnoreFile)
	}
	defer f.Close()

	fromFile, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, err, "read %s", filepath.Join(dir, IgnoreFile))
	}
	return append(patterns, fromFile...), nil
}

// entry is one local file and its name relative to the destination.
type entry struct {
	local string
	name  string
	mode  os.FileMode
	sum   string
}

// SyncData mirrors paths into destDir. A file lands at destDir/<base>; a
// directory's files land at destDir/<base>/<rel>.
func (s *Synchronizer) SyncData(ctx context.Context, r remote.Runner, paths []string, destDir string) (Stats, error) {
	entries, err := s.collect(paths)
	if err != nil {
		return Stats{}, err
	}
	return s.push(ctx, r, entries, destDir)
}

// SyncFile sends src to destPath with the given mode, unless the remote copy
// already has the same content.
func (s *Synchronizer) SyncFile(ctx context.Context, r remote.Runner, src, destPath string, mode os.FileMode) (Stats, error) {
	fi, err := s.FS.Stat(src)
	if err != nil {
		return Stats{}, fault.Wrap(fault.TransferFailure, err, "stat %s", src)
	}
	if !fi.Mode().IsRegular() {
		return Stats{}, fault.New(fault.TransferFailure, "%s is not a regular file", src)
	}
	e := entry{local: src, name: path.Base(destPath), mode: mode}
	return s.push(ctx, r, []entry{e}, path.Dir(destPath))
}

func (s *Synchronizer) collect(paths []string) ([]entry, error) {
	var (
		out  []entry
		seen = map[string]string{}
	)
	add := func(e entry) error {
		if prev, ok := seen[e.name]; ok {
			return fault.New(fault.TransferFailure, "%s and %s both map to remote name %q", prev, e.local, e.name)
		}
		seen[e.name] = e.local
		out = append(out, e)
		return nil
	}

	for _, p := range paths {
		fi, err := s.FS.Stat(p)
		if err != nil {
			return nil, fault.Wrap(fault.TransferFailure, err, "stat %s", p)
		}
		base := filepath.Base(p)

		if !fi.IsDir() {
			if err := add(entry{local: p, name: base, mode: fi.Mode().Perm()}); err != nil {
				return nil, err
			}
			continue
		}

		err = s.walk(p, "", []os.FileInfo{fi}, func(local, rel string, mode os.FileMode) error {
			return add(entry{local: local, name: path.Join(base, rel), mode: mode})
		})
		if err != nil {
			return nil, fault.Wrap(fault.TransferFailure, err, "walk %s", p)
		}
	}
	return out, nil
}

// walk calls visit for every regular file below dir in name order, following
// symlinks. rel is dir's slash-separated path inside the data directory and
// ancestors holds the directories already entered, to catch symlink loops.
func (s *Synchronizer) walk(dir, rel string, ancestors []os.FileInfo, visit func(local, rel string, mode os.FileMode) error) error {
	infos, err := afero.ReadDir(s.FS, dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		local := filepath.Join(dir, info.Name())
		name := path.Join(rel, info.Name())

		if info.Mode()&os.ModeSymlink != 0 {
			if info, err = s.FS.Stat(local); err != nil {
				return fault.Wrap(fault.TransferFailure, err, "follow symlink %s", local)
			}
		}

		ignored, err := s.excluded(name, info.IsDir())
		if err != nil {
			return err
		}
		if ignored {
			continue
		}

		switch {
		case info.IsDir():
			for _, a := range ancestors {
				if os.SameFile(a, info) {
					return fault.New(fault.TransferFailure, "symlink loop at %s", local)
				}
			}
			if err := s.walk(local, name, append(ancestors[:len(ancestors):len(ancestors)], info), visit); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := visit(local, name, info.Mode().Perm()); err != nil {
				return err
			}
		default:
			return fault.New(fault.TransferFailure, "%s is neither a regular file nor a directory", local)
		}
	}
	return nil
}

// excluded matches rel, a slash-separated path inside a data directory,
// against the exclude patterns. Directories carry a trailing slash.
func (s *Synchronizer) excluded(rel string, dir bool) (bool, error) {
	if s.Exclude == nil {
		return false, nil
	}
	if dir && !strings.HasSuffix(rel, "/") {
		rel += "/"
	}
	return s.Exclude.MatchesOrParentMatches(rel)
}

func (s *Synchronizer) push(ctx context.Context, r remote.Runner, entries []entry, destDir string) (Stats, error) {
	log := logging.FromContext(ctx).WithField("dest", destDir)

	for i := range entries {
		sum, err := s.checksum(entries[i].local)
		if err != nil {
			return Stats{}, fault.Wrap(fault.TransferFailure, err, "hash %s", entries[i].local)
		}
		entries[i].sum = sum
	}

	remoteSums, err := s.remoteSums(ctx, r, entries, destDir)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	for _, e := range entries {
		one := Stats{Files: 1}
		if remoteSums[e.name] == e.sum {
			one.Skipped = 1
			log.WithField("file", e.name).Debug("unchanged")
		} else {
			n, err := s.upload(ctx, r, e, path.Join(destDir, e.name))
			if err != nil {
				return st, err
			}
			one.Uploaded, one.Bytes = 1, n
			log.WithFields(logrus.Fields{"file": e.name, "bytes": n}).Debug("uploaded")
		}
		st.Add(one)
	}

	log.WithFields(logrus.Fields{
		"files":    st.Files,
		"uploaded": st.Uploaded,
		"skipped":  st.Skipped,
		"bytes":    st.Bytes,
	}).Info("sync done")
	return st, nil
}

func (s *Synchronizer) checksum(p string) (string, error) {
	f, err := s.FS.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Synchronizer) remoteSums(ctx context.Context, r remote.Runner, entries []entry, destDir string) (map[string]string, error) {
	sums := map[string]string{}
	for start := 0; start < len(entries); start += batchSize {
		end := min(start+batchSize, len(entries))
		names := make([]string, 0, end-start)
		for _, e := range entries[start:end] {
			names = append(names, e.name)
		}

		res, err := s.exec(ctx, r, remote.Checksums(destDir, names), nil)
		if err == nil {
			err = res.Err()
		}
		if err != nil {
			return nil, fault.Wrap(fault.TransferFailure, err, "remote checksums in %s", destDir)
		}
		for k, v := range remote.ParseChecksums(res.Stdout) {
			sums[k] = v
		}
	}
	return sums, nil
}

func (s *Synchronizer) upload(ctx context.Context, r remote.Runner, e entry, dest string) (int64, error) {
	f, err := s.FS.Open(e.local)
	if err != nil {
		return 0, fault.Wrap(fault.TransferFailure, err, "open %s", e.local)
	}
	defer f.Close()

	cr := &countingReader{r: f}
	res, err := s.exec(ctx, r, remote.Upload(dest, s.partName(dest), e.mode), cr)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return cr.n, fault.Wrap(fault.TransferFailure, err, "upload %s to %s", e.local, dest)
	}
	return cr.n, nil
}

// exec runs cmd under Timeout instead of the session's command timeout.
func (s *Synchronizer) exec(ctx context.Context, r remote.Runner, cmd string, stdin io.Reader) (remote.Result, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return r.Exec(ctx, cmd, stdin)
}

func (s *Synchronizer) partName(dest string) string {
	token := s.Token
	if token == "" {
		token = "sync"
	}
	return dest + "." + token + ".part"
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
