// Package inbox applies batch files dropped into the spool directory.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/fennec/internal/auth"
	"github.com/starford/fennec/internal/models"
	"github.com/starford/fennec/internal/reconcile"
	"github.com/starford/fennec/internal/spool"
)

// Actor is the identity attached to batches read from the spool.
const Actor = "inbox"

// DefaultDebounce is how long the watcher waits after the last file event
// before draining.
const DefaultDebounce = 250 * time.Millisecond

// Ingester applies decoded batches.
type Ingester interface {
	UpsertNotes(ctx context.Context, records []models.Record) (*reconcile.Report, error)
	DeleteNotes(ctx context.Context, requests []models.DeletionRequest) (*reconcile.Report, error)
}

// Summary counts the files handled by one drain pass.
type Summary struct {
	Processed int
	Failed    int
}

// Inbox drains a spool into an Ingester.
type Inbox struct {
	spool    spool.Provider
	ingester Ingester
	logger   *slog.Logger
	debounce time.Duration
}

// New creates an Inbox. A zero debounce uses DefaultDebounce.
func New(sp spool.Provider, ing Ingester, logger *slog.Logger, debounce time.Duration) *Inbox {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Inbox{spool: sp, ingester: ing, logger: logger, debounce: debounce}
}

// Drain applies every pending file once, in name order. Each file ends up
// in processed/ when its workflow completed (even with per-item failures)
// and in failed/ when it could not be decoded or the workflow aborted. A
// report is written next to the archived file.
func (in *Inbox) Drain(ctx context.Context) (Summary, error) {
	var sum Summary
	entries, err := in.spool.List()
	if err != nil {
		return sum, err
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if in.process(ctx, e.Name) {
			sum.Processed++
		} else {
			sum.Failed++
		}
	}
	if len(entries) > 0 {
		in.logger.Info("inbox: drained",
			slog.Int("processed", sum.Processed),
			slog.Int("failed", sum.Failed))
	}
	return sum, nil
}

func (in *Inbox) process(ctx context.Context, name string) bool {
	rep, err := in.apply(auth.WithActor(ctx, Actor), name)

	dir := spool.ProcessedDir
	if err != nil {
		dir = spool.FailedDir
		in.logger.Warn("inbox: batch failed", slog.String("file", name), slog.String("error", err.Error()))
	} else {
		in.logger.Debug("inbox: batch applied", slog.String("file", name), slog.String("status", rep.Status))
	}

	if archErr := in.spool.Archive(name, dir); archErr != nil {
		in.logger.Error("inbox: archive failed", slog.String("file", name), slog.String("error", archErr.Error()))
		return false
	}
	in.writeReport(name, dir, rep, err)
	return err == nil
}

func (in *Inbox) apply(ctx context.Context, name string) (*reconcile.Report, error) {
	data, err := in.spool.Read(name)
	if err != nil {
		return nil, err
	}
	if spool.IsDelete(name) {
		var reqs []models.DeletionRequest
		if err := json.Unmarshal(data, &reqs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return in.ingester.DeleteNotes(ctx, reqs)
	}
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return in.ingester.UpsertNotes(ctx, records)
}

type reportFile struct {
	File   string            `json:"file"`
	Error  string            `json:"error,omitempty"`
	Report *reconcile.Report `json:"report,omitempty"`
}

func (in *Inbox) writeReport(name, dir string, rep *reconcile.Report, cause error) {
	rf := reportFile{File: name, Report: rep}
	if cause != nil {
		rf.Error = cause.Error()
	}
	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return
	}
	if err := in.spool.Write(filepath.Join(dir, name+".report"), data); err != nil {
		in.logger.Warn("inbox: write report failed", slog.String("file", name), slog.String("error", err.Error()))
	}
}

// Watch drains the spool once, then again whenever batch files settle in
// the spool root, until ctx is cancelled.
func (in *Inbox) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := in.spool.Root()
	if err := w.Add(root); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", root, err)
	}
	in.logger.Info("inbox: watching", slog.String("root", root))

	if _, err := in.Drain(ctx); err != nil {
		in.logger.Warn("inbox: initial drain failed", slog.String("error", err.Error()))
	}

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(in.debounce)
			fire = timer.C
		} else {
			timer.Reset(in.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			in.logger.Info("inbox: stopped")
			return nil

		case <-fire:
			if _, err := in.Drain(ctx); err != nil && ctx.Err() == nil {
				in.logger.Warn("inbox: drain failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Dir(ev.Name) != root || !spool.IsBatch(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
