// Package sink buffers extracted records into bounded batches and persists
// each batch as a Parquet part before recording progress in the checkpoint.
package sink

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"tweetpull/pkg/checkpoint"
	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/logger"
	"tweetpull/pkg/record"
	"tweetpull/pkg/retry"
	"tweetpull/pkg/storage"
)

// PartsSuffix names the directory holding flushed batches
const PartsSuffix = ".parts"

// Committer receives progress after every durable flush
type Committer interface {
	Save(cp checkpoint.Checkpoint) error
}

// Options configures a Sink
type Options struct {
	// BatchSize is the record count that triggers a flush
	BatchSize int
	// MaxBatchBytes is the estimated batch size that triggers a flush; 0 disables it
	MaxBatchBytes int64
	Compression   string
	Account       string
	// Resume carries the checkpoint of an interrupted run whose parts are kept
	Resume *checkpoint.Checkpoint
	// Metadata is stored as key/value metadata in the final file
	Metadata map[string]string
	Logger   logger.Logger

	// WriteRetryDelay is the pause between attempts to write a part
	WriteRetryDelay time.Duration
}

// Sink is the batch writer for one run. It is not safe for concurrent use.
type Sink struct {
	output    string
	opts      Options
	codec     compress.Codec
	parts     *storage.Parts
	committer Committer
	log       logger.Logger

	batch      []record.Record
	batchBytes int64
	total      int
	closed     bool
	// stale marks parts left by an earlier run that the first flush removes
	stale bool
}

// Open prepares the sink for output. Without Options.Resume any parts left
// by an earlier run are discarded by the first flush, so a run that fails
// before writing anything leaves them in place. With it, parts up to the checkpoint count
// are kept; if they do not add up to exactly that count a CorruptCheckpoint
// error is returned and nothing is changed.
func Open(output string, opts Options, committer Committer) (*Sink, error) {
	if opts.BatchSize <= 0 {
		return nil, errs.Newf(errs.KindConfig, "batch size must be positive, got %d", opts.BatchSize)
	}
	codec, err := Codec(opts.Compression)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if opts.WriteRetryDelay == 0 {
		opts.WriteRetryDelay = 500 * time.Millisecond
	}

	parts, err := storage.OpenParts(output + PartsSuffix)
	if err != nil {
		return nil, errs.Wrap(errs.KindOutput, err, output)
	}

	s := &Sink{
		output:    output,
		opts:      opts,
		codec:     codec,
		parts:     parts,
		committer: committer,
		log:       opts.Logger.WithField("output", output),
		batch:     make([]record.Record, 0, opts.BatchSize),
	}

	if opts.Resume == nil {
		s.stale = parts.Len() > 0
		return s, nil
	}

	if err := s.reconcile(*opts.Resume); err != nil {
		return nil, err
	}
	return s, nil
}

// reconcile keeps the prefix of parts covered by the checkpoint
func (s *Sink) reconcile(cp checkpoint.Checkpoint) error {
	list := s.parts.List()
	keep, rows := 0, 0
	for _, part := range list {
		n, err := countRows(part.Path)
		if err != nil {
			return errs.Wrap(errs.KindCorruptCheckpoint, err, part.Path)
		}
		if rows+n > cp.Count {
			break
		}
		rows += n
		keep++
	}

	if rows != cp.Count {
		return errs.Newf(errs.KindCorruptCheckpoint,
			"checkpoint count %d does not match %d persisted records", cp.Count, rows)
	}

	if keep < len(list) {
		s.log.WarnWithFields("Discarding parts written after the last checkpoint", map[string]interface{}{
			"discarded": len(list) - keep,
		})
		if err := s.parts.Truncate(keep); err != nil {
			return errs.Wrap(errs.KindOutput, err, "")
		}
	}

	s.total = rows
	s.log.InfoWithFields("Resuming output", map[string]interface{}{
		"parts":   keep,
		"records": rows,
	})
	return nil
}

func countRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return 0, err
	}
	return int(pf.NumRows()), nil
}

// discardStale removes parts of an earlier run before anything is written
func (s *Sink) discardStale() error {
	if !s.stale {
		return nil
	}
	s.log.WarnWithFields("Discarding parts from a previous run", map[string]interface{}{
		"parts": s.parts.Len(),
	})
	if err := s.parts.RemoveAll(); err != nil {
		return errs.Wrap(errs.KindOutput, err, "")
	}
	s.stale = false
	return nil
}

// Count returns the number of records durably written
func (s *Sink) Count() int {
	return s.total
}

// Pending returns the number of buffered records
func (s *Sink) Pending() int {
	return len(s.batch)
}

// Accept buffers rec and flushes when a threshold is reached. A record that
// would push a non-empty batch past MaxBatchBytes flushes the batch first.
func (s *Sink) Accept(rec record.Record) error {
	if s.closed {
		return errs.New(errs.KindOutput, "sink is closed")
	}

	size := rec.EstimatedSize()
	if s.opts.MaxBatchBytes > 0 && len(s.batch) > 0 && s.batchBytes+size > s.opts.MaxBatchBytes {
		if err := s.Flush(); err != nil {
			return err
		}
	}

	s.batch = append(s.batch, rec)
	s.batchBytes += size

	if len(s.batch) >= s.opts.BatchSize || (s.opts.MaxBatchBytes > 0 && s.batchBytes >= s.opts.MaxBatchBytes) {
		return s.Flush()
	}
	return nil
}

// Flush persists the buffered batch as one part and saves a checkpoint.
// A checkpoint that cannot be saved is logged; the part stays durable and a
// resumed run re-fetches at most that batch.
func (s *Sink) Flush() error {
	if len(s.batch) == 0 {
		return nil
	}
	if err := s.discardStale(); err != nil {
		return err
	}

	index := s.parts.Next()
	err := retry.Do(func() error {
		return s.parts.Write(index, s.encode(s.batch))
	}, &retry.Config{
		MaxAttempts: 3,
		Backoff:     &retry.ConstantBackoff{Delay: s.opts.WriteRetryDelay},
		Logger:      s.log,
	})
	if err != nil {
		return errs.Wrap(errs.KindOutput, err, fmt.Sprintf("write batch %d", index))
	}

	last := s.batch[len(s.batch)-1]
	s.total += len(s.batch)

	s.log.DebugWithFields("Batch flushed", map[string]interface{}{
		"part":    index,
		"records": len(s.batch),
		"bytes":   s.batchBytes,
		"total":   s.total,
	})

	s.batch = s.batch[:0]
	s.batchBytes = 0

	if s.committer != nil {
		cp := checkpoint.Checkpoint{LastID: last.ID, Count: s.total, Account: s.opts.Account}
		if err := s.committer.Save(cp); err != nil {
			s.log.WithError(err).WarnWithFields("Failed to save checkpoint", map[string]interface{}{
				"last_id": last.ID,
				"count":   s.total,
			})
		}
	}
	return nil
}

func (s *Sink) encode(rows []record.Record) func(io.Writer) error {
	return func(w io.Writer) error {
		pw := parquet.NewGenericWriter[record.Record](w, parquet.Compression(s.codec))
		if _, err := pw.Write(rows); err != nil {
			pw.Close()
			return err
		}
		return pw.Close()
	}
}

// Finalize flushes the remainder and publishes the output: all parts are
// merged in order into a temporary file, one row group per part, which is
// then renamed onto the output path. An empty run still produces a file
// with the full schema.
func (s *Sink) Finalize() error {
	if s.closed {
		return errs.New(errs.KindOutput, "sink is closed")
	}
	if err := s.Flush(); err != nil {
		return err
	}
	if err := s.discardStale(); err != nil {
		return err
	}
	s.closed = true

	tempPath := s.output + ".tmp"
	if err := s.merge(tempPath); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.KindOutput, err, "merge parts")
	}
	if err := os.Rename(tempPath, s.output); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.KindOutput, err, "publish output")
	}
	if err := s.parts.RemoveAll(); err != nil {
		s.log.WithError(err).Warn("Failed to remove parts directory")
	}

	s.log.InfoWithFields("Output written", map[string]interface{}{
		"records": s.total,
	})
	return nil
}

func (s *Sink) merge(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	options := []parquet.WriterOption{parquet.Compression(s.codec)}
	keys := make([]string, 0, len(s.opts.Metadata))
	for k := range s.opts.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		options = append(options, parquet.KeyValueMetadata(k, s.opts.Metadata[k]))
	}

	pw := parquet.NewGenericWriter[record.Record](out, options...)
	for _, part := range s.parts.List() {
		if err := copyPart(pw, part.Path, s.opts.BatchSize); err != nil {
			pw.Close()
			return fmt.Errorf("%s: %w", part.Path, err)
		}
		if err := pw.Flush(); err != nil {
			pw.Close()
			return err
		}
	}
	if err := pw.Close(); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	return out.Close()
}

func copyPart(pw *parquet.GenericWriter[record.Record], path string, chunk int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pr := parquet.NewGenericReader[record.Record](f)
	defer pr.Close()

	buf := make([]record.Record, chunk)
	for {
		clear(buf)
		n, err := pr.Read(buf)
		if n > 0 {
			if _, werr := pw.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Abort drops the unflushed batch and leaves flushed parts in place so a
// later run can resume from the checkpoint
func (s *Sink) Abort() {
	if s.closed {
		return
	}
	s.closed = true
	if len(s.batch) > 0 {
		s.log.InfoWithFields("Dropping unflushed records", map[string]interface{}{
			"records": len(s.batch),
		})
	}
	s.batch = nil
	s.batchBytes = 0
	os.Remove(s.output + ".tmp")
}
