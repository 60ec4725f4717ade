// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
)

type csvOptions struct {
	delimiter       rune
	commentPrefix   rune
	ignoreFirstLine bool
}

func (t Table) csvOptions() (csvOptions, error) {
	o := csvOptions{delimiter: ','}
	if f := t.Option("format"); f != "" && !strings.EqualFold(f, "csv") {
		return o, errors.Newf(ErrConnector, "Unsupported format '%s' for table '%s'", f, t.Path.Summary())
	}
	if d := t.Option("csv.field-delimiter"); d != "" {
		if d == `\t` {
			d = "\t"
		}
		r, n := utf8.DecodeRuneInString(d)
		if n != len(d) {
			return o, errors.Newf(ErrConnector, "field delimiter must be a single character but was '%s'", d)
		}
		o.delimiter = r
	}
	if p := t.Option("csv.comment-prefix"); p != "" {
		o.commentPrefix, _ = utf8.DecodeRuneInString(p)
	}
	o.ignoreFirstLine = strings.EqualFold(t.Option("csv.ignore-first-line"), "true")
	return o, nil
}

// fileSource reads a CSV file. Columns map to the table schema by
// position.
type fileSource struct {
	path   string
	opts   csvOptions
	schema types.Schema
}

func newFileSource(t Table, schema types.Schema) (*fileSource, error) {
	path, err := t.requireOption("path")
	if err != nil {
		return nil, err
	}
	opts, err := t.csvOptions()
	if err != nil {
		return nil, err
	}
	return &fileSource{path: path, opts: opts, schema: schema}, nil
}

func (s *fileSource) Bounded() bool { return true }

func (s *fileSource) Read(ctx context.Context, emit func(types.Row) error) error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return errors.Newf(ErrConnector, "File %s does not exist", s.path)
	} else if err != nil {
		return errors.Wrapf(err, "opening %s", s.path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = s.opts.delimiter
	r.Comment = s.opts.commentPrefix
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrapf(err, "reading %s", s.path)
		}
		if line == 1 && s.opts.ignoreFirstLine {
			continue
		}
		values := make([]interface{}, len(rec))
		for i, v := range rec {
			values[i] = v
		}
		row, err := coerceRow(values, s.schema)
		if err != nil {
			return errors.Wrapf(err, "%s line %d", s.path, line)
		}
		if err := emit(row); err != nil {
			return err
		}
	}
}

// fileSink appends rows to a CSV file. Retractions are written with their
// kind in an extra first column.
type fileSink struct {
	f *os.File
	w *csv.Writer
}

func newFileSink(t Table, schema types.Schema) (*fileSink, error) {
	path, err := t.requireOption("path")
	if err != nil {
		return nil, err
	}
	opts, err := t.csvOptions()
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	w := csv.NewWriter(f)
	w.Comma = opts.delimiter
	return &fileSink{f: f, w: w}, nil
}

func (s *fileSink) Write(ctx context.Context, row types.Row) error {
	rec := make([]string, 0, len(row.Values)+1)
	if row.Kind != types.Insert {
		rec = append(rec, row.Kind.String())
	}
	for _, v := range row.Values {
		if v == nil {
			rec = append(rec, "")
			continue
		}
		rec = append(rec, types.FormatValue(v))
	}
	return errors.Wrap(s.w.Write(rec), "writing csv record")
}

func (s *fileSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return errors.Wrap(err, "flushing csv")
	}
	return s.f.Close()
}
