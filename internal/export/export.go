// Package export drives an export run: it lists activities newest first,
// decides per activity whether to fetch and write it, and stops at the first
// activity that is already on disk unless asked to scan everything.
package export

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/hpungsan/stravagpx/internal/activity"
	"github.com/hpungsan/stravagpx/internal/errors"
	"github.com/hpungsan/stravagpx/internal/track"
)

// Run modes as recorded in the journal.
const (
	ModeIncremental = "incremental"
	ModeScanAll     = "scan-all"
)

// Source lists activities and fetches their streams.
// Streams returns a NOT_FOUND error when an activity has no stream data.
type Source interface {
	ListActivities(ctx context.Context, page int) ([]activity.Activity, error)
	Streams(ctx context.Context, id int64) (*activity.StreamBundle, error)
}

// Input contains parameters for Run.
type Input struct {
	Dir      string    // export directory, created if absent
	ScanAll  bool      // skip existing files instead of stopping at the first one
	Progress io.Writer // per-activity progress lines, nil to discard
	RunID    string    // optional, generated when empty
	Log      zerolog.Logger
}

// Output summarizes a run.
type Output struct {
	RunID    string   `json:"run_id"`
	Dir      string   `json:"dir"`
	Examined int      `json:"examined"`
	Exported int      `json:"exported"`
	Skipped  int      `json:"skipped"`
	Empty    int      `json:"empty"`
	Manual   int      `json:"manual"`
	Failed   int      `json:"failed"`
	Stopped  bool     `json:"stopped"`
	Files    []string `json:"files"`
}

// Mode returns the journal name of the run mode.
func Mode(scanAll bool) string {
	if scanAll {
		return ModeScanAll
	}
	return ModeIncremental
}

// NewRunID generates a new ULID run identifier.
func NewRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Run executes one export run against src.
// The returned Output is non-nil whenever the directory snapshot succeeded,
// including when a fatal error aborted the run part way.
func Run(ctx context.Context, src Source, input Input) (*Output, error) {
	if input.Dir == "" {
		return nil, errors.NewInvalidRequest("export directory is required")
	}
	progress := input.Progress
	if progress == nil {
		progress = io.Discard
	}
	runID := input.RunID
	if runID == "" {
		runID = NewRunID()
	}
	log := input.Log.With().Str("run_id", runID).Logger()

	inv, err := Snapshot(input.Dir)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("dir", input.Dir).Int("existing", len(inv)).Msg("snapshot export directory")

	r := &runner{
		src:   src,
		input: input,
		inv:   inv,
		log:   log,
		out: &Output{
			RunID: runID,
			Dir:   input.Dir,
			Files: []string{},
		},
	}

	n := 1
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			return r.out, errors.NewCancelled("export")
		}

		acts, err := src.ListActivities(ctx, page)
		if err != nil {
			return r.out, err
		}
		if len(acts) == 0 {
			break
		}

		for _, a := range acts {
			if ctx.Err() != nil {
				return r.out, errors.NewCancelled("export")
			}

			writeProgress(progress, n, a)
			if a.Manual {
				r.out.Manual++
				continue
			}

			stop, err := r.handle(ctx, a)
			if err != nil {
				return r.out, err
			}
			if stop {
				r.out.Stopped = true
				return r.out, nil
			}
			n++
		}
	}

	return r.out, nil
}

type runner struct {
	src   Source
	input Input
	inv   Inventory
	log   zerolog.Logger
	out   *Output
}

// handle decides and performs the export of one non-manual activity.
// It reports stop when the loop must end without error.
func (r *runner) handle(ctx context.Context, a activity.Activity) (stop bool, err error) {
	r.out.Examined++
	name := a.ExportName(track.Ext)
	log := r.log.With().Int64("activity_id", a.ID).Str("file", name).Logger()

	if r.inv.Has(name) {
		if !r.input.ScanAll {
			log.Info().Msg("already exported, stopping")
			return true, nil
		}
		r.out.Skipped++
		log.Debug().Msg("already exported, skipping")
		return false, nil
	}

	bundle, err := r.src.Streams(ctx, a.ID)
	if errors.Is(err, errors.ErrNotFound) {
		r.out.Empty++
		log.Info().Msg("no stream data")
		return false, nil
	}
	if err != nil {
		return false, withActivity(err, a.ID)
	}

	t := track.Align(bundle, a.StartTime())
	if t.Empty() {
		r.out.Empty++
		log.Info().Int("points", t.Len()).Msg("no usable track")
		return false, nil
	}

	if err := track.WriteFile(filepath.Join(r.input.Dir, name), a.Name, t); err != nil {
		r.out.Failed++
		log.Error().Err(err).Msg("failed to write track")
		return false, nil
	}

	r.out.Exported++
	r.out.Files = append(r.out.Files, name)
	log.Debug().Int("points", t.Len()).Msg("exported")
	return false, nil
}

// withActivity attaches the activity id to a fatal source error.
func withActivity(err error, id int64) error {
	var eErr *errors.ExportError
	if !stderrors.As(err, &eErr) {
		return errors.NewInternal(fmt.Errorf("activity %d: %w", id, err))
	}

	wrapped := *eErr
	wrapped.Message = fmt.Sprintf("activity %d: %s", id, eErr.Message)
	wrapped.Details = maps.Clone(eErr.Details)
	if wrapped.Details == nil {
		wrapped.Details = map[string]any{}
	}
	wrapped.Details["activity_id"] = id
	return &wrapped
}
