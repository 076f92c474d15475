// Package report prints the outcome of a dispatch as key=value lines, one
// per accepted submission, for people and for scripts that grep them.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/tastythames/jobdispatch/internal/filesync"
	"github.com/tastythames/jobdispatch/internal/records"
)

// Meta describes the invocation the records belong to.
type Meta struct {
	Job       string
	Host      string
	Scheduler string
	Label     string
	Width     int
	Sync      filesync.Stats
}

type Renderer struct {
	Store records.Store
}

func NewRenderer(s records.Store) *Renderer {
	return &Renderer{Store: s}
}

// Write prints a dispatched line, a synced line and one submitted line per
// record in index order.
func (r *Renderer) Write(w io.Writer, m Meta) error {
	snap := r.Store.Snapshot()

	lines := []string{
		LineDispatched + " " + formatFields([]field{
			{key: "job", value: m.Job},
			{key: "host", value: m.Host},
			{key: "scheduler", value: m.Scheduler},
			{key: "label", value: m.Label},
			{key: "submissions", value: strconv.Itoa(len(snap))},
		}),
		LineSynced + " " + formatFields([]field{
			{key: "files", value: strconv.Itoa(m.Sync.Files)},
			{key: "uploaded", value: strconv.Itoa(m.Sync.Uploaded)},
			{key: "skipped", value: strconv.Itoa(m.Sync.Skipped)},
			{key: "bytes", value: strconv.FormatInt(m.Sync.Bytes, 10)},
		}),
	}
	for _, rec := range snap {
		lines = append(lines, LineSubmitted+" "+formatFields([]field{
			{key: "job_id", value: rec.JobID},
			{key: "index", value: fmt.Sprintf("%0*d", m.Width, rec.Index)},
			{key: "command", value: rec.Command, quoted: true},
			{key: "output_dir", value: rec.OutputDir, quoted: true},
		}))
	}

	for _, ln := range lines {
		if _, err := fmt.Fprintln(w, ln); err != nil {
			return err
		}
	}
	return nil
}
