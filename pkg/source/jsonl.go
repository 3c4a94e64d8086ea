// Package source turns input documents into analyze.Records: JSONL record
// streams, saved HTML pages and live URLs.
package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/japaniel/entityscan/pkg/analyze"
)

const maxLineSize = 64 * 1024 * 1024

// Records yields one record per non-blank line of r. A malformed line yields
// an error and reading continues with the next line; a read error ends the
// sequence.
func Records(r io.Reader) iter.Seq2[analyze.Record, error] {
	return func(yield func(analyze.Record, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		line := 0
		for sc.Scan() {
			line++
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}
			var rec analyze.Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				if !yield(analyze.Record{}, fmt.Errorf("line %d: %w", line, err)) {
					return
				}
				continue
			}
			if rec.ID == "" {
				if !yield(analyze.Record{}, fmt.Errorf("line %d: %w", line, analyze.ErrMissingID)) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(analyze.Record{}, fmt.Errorf("read records: %w", err))
		}
	}
}
