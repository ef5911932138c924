// Package workflow orchestrates one import or export run: it wires a data
// adapter, a transform chain and a file codec together and processes one
// bounded page per call, persisting progress so a run spans many stateless
// invocations.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/commercekit/dataport/internal/adapter"
	"github.com/commercekit/dataport/internal/codec"
	"github.com/commercekit/dataport/internal/profile"
	"github.com/commercekit/dataport/internal/session"
	"github.com/commercekit/dataport/internal/transform"
)

// ErrUnsupportedFormat is returned when the selected format cannot carry
// the profile's structure.
var ErrUnsupportedFormat = errors.New("format does not support the profile structure")

// maxPreload bounds the id snapshot when no explicit cap is configured.
const maxPreload = 1<<31 - 1

// SessionSaver persists session progress after each committed page.
type SessionSaver interface {
	Save(ctx context.Context, s *session.Session) error
}

// Options tune one run.
type Options struct {
	// Limit is the page size; every step processes at most this many records.
	Limit int
	// Filter narrows the exported record set.
	Filter adapter.Filter
	// MaxRecordCount caps the id preload when > 0.
	MaxRecordCount int
	// Columns restricts the exported columns; empty means all.
	Columns []adapter.Column
	// FilePath is the exchange file the codec reads or writes.
	FilePath string
}

// Progress reports how far a run has come.
type Progress struct {
	Position int `json:"position"`
	Total    int `json:"totalCount"`
}

// Workflow runs one session page by page.
type Workflow struct {
	sess     *session.Session
	sessions SessionSaver
	adapter  adapter.DataAdapter
	codec    codec.FileCodec
	chain    *transform.Chain
	opts     Options
	log      *slog.Logger

	loggedMsgs int
}

// New validates the profile, format and direction combination and binds the
// collaborators for one run. The adapter is resolved from the primary
// iteration node, the shape stage from the codec's structure.
func New(p *profile.Profile, sess *session.Session, opts Options, adapters *adapter.Registry, sessions SessionSaver, log *slog.Logger) (*Workflow, error) {
	if !codec.IsValidFormat(sess.Format) {
		return nil, fmt.Errorf("unsupported file format %q", sess.Format)
	}
	if sess.Direction != session.DirectionExport && sess.Direction != session.DirectionImport {
		return nil, fmt.Errorf("unsupported direction %q", sess.Direction)
	}
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("paging limit must be positive, got %d", opts.Limit)
	}

	iterations := p.Tree.Iterations()
	if len(iterations) == 0 {
		return nil, fmt.Errorf("profile %q has no iteration node", p.Name)
	}

	c, err := codec.New(sess.Format, p.Tree, opts.FilePath)
	if err != nil {
		return nil, err
	}

	// A flat file cannot express nested repeating groups: importing a
	// profile with iteration nodes inside the primary one needs a tree
	// format.
	if !c.HasTreeStructure() && sess.Direction == session.DirectionImport && len(iterations) > 1 {
		return nil, fmt.Errorf("profile %q has nested repeating groups: %w", p.Name, ErrUnsupportedFormat)
	}

	da, err := adapters.Get(iterations[0].AdapterName)
	if err != nil {
		return nil, err
	}

	exprStage, err := transform.NewExpressionTransformer(p.Expressions)
	if err != nil {
		return nil, err
	}
	var shapeStage transform.Transformer
	if c.HasTreeStructure() {
		shapeStage, err = transform.NewTreeTransformer(p.Tree)
		if err != nil {
			return nil, err
		}
	} else {
		shapeStage = transform.NewFlattenTransformer(p.Tree)
	}

	return &Workflow{
		sess:     sess,
		sessions: sessions,
		adapter:  da,
		codec:    c,
		chain:    transform.NewChain(exprStage, shapeStage),
		opts:     opts,
		log:      log,
	}, nil
}

// Progress returns the current position and total.
func (w *Workflow) Progress() Progress {
	return Progress{Position: w.sess.Position, Total: w.sess.TotalCount}
}

// PrepareExport snapshots the record ids once per run and stores the total.
// Repeat calls on a started run are no-ops.
func (w *Workflow) PrepareExport(ctx context.Context) (Progress, error) {
	if w.sess.State != session.StateNew {
		return w.Progress(), nil
	}

	limit := maxPreload
	if w.opts.MaxRecordCount > 0 {
		limit = w.opts.MaxRecordCount
	}
	ids, err := w.adapter.ReadIDs(ctx, 0, limit, w.opts.Filter)
	if err != nil {
		return w.Progress(), fmt.Errorf("preload record ids: %w", err)
	}
	w.sess.Preloaded(ids)
	if err := w.sessions.Save(ctx, w.sess); err != nil {
		return w.Progress(), err
	}
	return w.Progress(), nil
}

// ExportStep processes one page: read the next id window, transform to
// file shape, append to the file, advance the position. The codec is
// finalized when the last page commits.
func (w *Workflow) ExportStep(ctx context.Context) (Progress, error) {
	if _, err := w.PrepareExport(ctx); err != nil {
		return w.Progress(), err
	}
	if w.sess.Done() {
		return w.Progress(), nil
	}

	// A crash between the file append and the session save leaves the file
	// ahead of the persisted position; cut it back so retrying the page
	// cannot duplicate records.
	if err := w.truncateUncommitted(); err != nil {
		return w.Progress(), err
	}

	ids := w.sess.PageIDs(w.opts.Limit)
	if len(ids) > 0 {
		grouped, err := w.adapter.Read(ctx, ids, w.opts.Columns)
		if err != nil {
			return w.Progress(), fmt.Errorf("read records: %w", err)
		}

		out := make([]adapter.Record, 0, len(ids))
		for _, rec := range grouped[adapter.DefaultSection] {
			fwd, err := w.chain.Forward([]adapter.Record{rec})
			if err != nil {
				w.recordError(err)
				continue
			}
			out = append(out, fwd...)
		}
		if err := w.codec.AppendBatch(out); err != nil {
			return w.Progress(), fmt.Errorf("append to file: %w", err)
		}
	}

	w.sess.Advance(len(ids))
	if w.sess.Done() {
		if err := w.codec.Close(); err != nil {
			return w.Progress(), fmt.Errorf("finalize file: %w", err)
		}
	}
	if err := w.commitFileSize(); err != nil {
		return w.Progress(), err
	}
	if err := w.sessions.Save(ctx, w.sess); err != nil {
		return w.Progress(), err
	}
	return w.Progress(), nil
}

// truncateUncommitted trims the exchange file back to the size recorded by
// the last saved page.
func (w *Workflow) truncateUncommitted() error {
	info, err := os.Stat(w.opts.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", w.opts.FilePath, err)
	}
	if info.Size() <= w.sess.FileSize {
		return nil
	}
	if err := os.Truncate(w.opts.FilePath, w.sess.FileSize); err != nil {
		return fmt.Errorf("truncate %s: %w", w.opts.FilePath, err)
	}
	return nil
}

// commitFileSize records the file size that belongs to the committed
// position.
func (w *Workflow) commitFileSize() error {
	info, err := os.Stat(w.opts.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.sess.FileSize = 0
			return nil
		}
		return fmt.Errorf("stat %s: %w", w.opts.FilePath, err)
	}
	w.sess.FileSize = info.Size()
	return nil
}

// PrepareImport counts the file's records once per run and stores the
// total. Repeat calls on a started run are no-ops.
func (w *Workflow) PrepareImport(ctx context.Context) (Progress, error) {
	if w.sess.State != session.StateNew {
		return w.Progress(), nil
	}
	total, err := w.codec.TotalCount()
	if err != nil {
		return w.Progress(), fmt.Errorf("count file records: %w", err)
	}
	w.sess.Started(total)
	if err := w.sessions.Save(ctx, w.sess); err != nil {
		return w.Progress(), err
	}
	return w.Progress(), nil
}

// ImportStep processes one page: decode the next file window, transform to
// storage shape, write through the adapter, advance the position. A record
// that fails transform or validation is logged and the page continues.
func (w *Workflow) ImportStep(ctx context.Context) (Progress, error) {
	if _, err := w.PrepareImport(ctx); err != nil {
		return w.Progress(), err
	}
	if w.sess.Done() {
		return w.Progress(), nil
	}

	recs, exhausted, err := w.codec.ReadBatch(w.sess.Position, w.opts.Limit)
	if err != nil {
		return w.Progress(), fmt.Errorf("read file records: %w", err)
	}

	batch := make([]adapter.Record, 0, len(recs))
	for _, rec := range recs {
		back, err := w.chain.Backward([]adapter.Record{rec})
		if err != nil {
			w.recordError(err)
			continue
		}
		batch = append(batch, back...)
	}

	if len(batch) > 0 {
		err := w.adapter.Write(ctx, map[string][]adapter.Record{adapter.DefaultSection: batch})
		if err != nil {
			return w.Progress(), fmt.Errorf("write records: %w", err)
		}
	}
	w.collectAdapterMessages()

	w.sess.Advance(len(recs))
	if err := w.sessions.Save(ctx, w.sess); err != nil {
		return w.Progress(), err
	}
	// A file shrinking below the counted total would otherwise leave the
	// run spinning on empty pages forever.
	if exhausted && !w.sess.Done() {
		return w.Progress(), fmt.Errorf("file %s ended at record %d of %d", w.sess.FileName, w.sess.Position, w.sess.TotalCount)
	}
	return w.Progress(), nil
}

func (w *Workflow) recordError(err error) {
	w.sess.Log(err.Error())
	if w.log != nil {
		w.log.Warn("record skipped", "session", w.sess.ID, "error", err)
	}
}

// collectAdapterMessages moves newly accumulated adapter failures into the
// session log exactly once.
func (w *Workflow) collectAdapterMessages() {
	msgs := w.adapter.LogMessages()
	if len(msgs) > w.loggedMsgs {
		w.sess.Log(msgs[w.loggedMsgs:]...)
		w.loggedMsgs = len(msgs)
	}
}
