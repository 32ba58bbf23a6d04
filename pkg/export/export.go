// Package export renders an extracted Parquet file as Markdown, one section
// per post, in the order the posts were extracted (newest first).
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/logger"
	"tweetpull/pkg/record"
)

const (
	// DateLayout formats section headings
	DateLayout = "2006-01-02 15:04:05"

	retweetPrefix = "RT @"
	emptyBody     = "[No text content]"
	readChunk     = 256
)

// Options controls which posts are exported
type Options struct {
	IncludeRetweets bool
	Logger          logger.Logger
}

// Stats summarizes an export
type Stats struct {
	Read     int64
	Written  int64
	Retweets int64
}

// IsRetweet reports whether r is a plain retweet
func IsRetweet(r *record.Record) bool {
	return r.Text != nil && strings.HasPrefix(*r.Text, retweetPrefix)
}

// WriteMarkdown streams the size bytes of Parquet data in src to w
func WriteMarkdown(src io.ReaderAt, size int64, w io.Writer, opts Options) (Stats, error) {
	var stats Stats

	file, err := parquet.OpenFile(src, size)
	if err != nil {
		return stats, errs.Wrap(errs.KindSchemaViolation, err, "open parquet input")
	}
	reader := parquet.NewGenericReader[record.Record](file)
	defer reader.Close()

	out := bufio.NewWriter(w)
	rows := make([]record.Record, readChunk)
	for {
		n, err := reader.Read(rows)
		for i := 0; i < n; i++ {
			stats.Read++
			if !opts.IncludeRetweets && IsRetweet(&rows[i]) {
				stats.Retweets++
				continue
			}
			if stats.Written > 0 {
				out.WriteString("\n")
			}
			writePost(out, &rows[i])
			stats.Written++
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, errs.Wrap(errs.KindOutput, err, "read records")
		}
	}

	if err := out.Flush(); err != nil {
		return stats, errs.Wrap(errs.KindOutput, err, "write markdown")
	}
	return stats, nil
}

func writePost(w *bufio.Writer, r *record.Record) {
	body := strings.TrimSpace(r.Body())
	if body == "" {
		body = emptyBody
	}
	fmt.Fprintf(w, "## %s\n%s\n", r.CreatedAt.UTC().Format(DateLayout), body)
}

// File exports the Parquet file at in to the Markdown file at out. The output
// appears only once complete.
func File(in, out string, opts Options) (Stats, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	f, err := os.Open(in)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Stats{}, errs.Newf(errs.KindConfig, "input file %s not found", in)
		}
		return Stats{}, errs.Wrap(errs.KindOutput, err, "open input")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Stats{}, errs.Wrap(errs.KindOutput, err, "stat input")
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Stats{}, errs.Wrap(errs.KindOutput, err, "create output directory")
		}
	}
	tmp := out + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return Stats{}, errs.Wrap(errs.KindOutput, err, "create output")
	}

	stats, err := WriteMarkdown(f, info.Size(), dst, opts)
	if closeErr := dst.Close(); err == nil && closeErr != nil {
		err = errs.Wrap(errs.KindOutput, closeErr, "close output")
	}
	if err != nil {
		os.Remove(tmp)
		return stats, err
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return stats, errs.Wrap(errs.KindOutput, err, "rename output")
	}

	log.InfoWithFields("Export complete", map[string]interface{}{
		"input":    in,
		"output":   out,
		"posts":    stats.Written,
		"retweets": stats.Retweets,
	})
	return stats, nil
}
