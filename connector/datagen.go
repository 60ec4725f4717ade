// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/time/rate"

	gwcontext "github.com/featurebasedb/sqlgateway/context"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
)

const defaultRowsPerSecond = 10000

// datagenSource generates rows at a fixed rate. Each column is either a
// random value or a sequence; the source ends when number-of-rows rows
// were produced or a sequence is exhausted, and runs forever otherwise.
type datagenSource struct {
	limiter *rate.Limiter
	rows    int64 // -1 when unbounded
	fields  []generator
}

// generator returns the next value of a column, or false once exhausted.
type generator func(rnd *rand.Rand) (interface{}, bool)

func newDatagenSource(t Table, schema types.Schema) (*datagenSource, error) {
	rps, err := t.intOption("rows-per-second", defaultRowsPerSecond)
	if err != nil {
		return nil, err
	} else if rps <= 0 {
		return nil, errors.Newf(ErrConnector, "rows-per-second must be positive but was %d", rps)
	}
	rows, err := t.intOption("number-of-rows", -1)
	if err != nil {
		return nil, err
	}
	s := &datagenSource{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		rows:    rows,
	}
	for _, col := range schema {
		g, err := t.generator(col)
		if err != nil {
			return nil, err
		}
		s.fields = append(s.fields, g)
	}
	return s, nil
}

func (t Table) generator(col types.Column) (generator, error) {
	prefix := "fields." + col.Name + "."
	kind := strings.ToLower(t.Option(prefix + "kind"))
	base := types.BaseType(col.Type)

	if kind == "sequence" {
		if base != types.TypeInt && base != types.TypeBigInt && base != types.TypeString {
			return nil, errors.Newf(ErrConnector, "sequence generator is not supported for column '%s' of type %s", col.Name, col.Type)
		}
		if t.Option(prefix+"start") == "" || t.Option(prefix+"end") == "" {
			return nil, errors.Newf(ErrConnector, "Could not find required property '%sstart' or '%send' for sequence generator", prefix, prefix)
		}
		start, err := t.intOption(prefix+"start", 0)
		if err != nil {
			return nil, err
		}
		end, err := t.intOption(prefix+"end", 0)
		if err != nil {
			return nil, err
		}
		next := start
		return func(*rand.Rand) (interface{}, bool) {
			if next > end {
				return nil, false
			}
			v := next
			next++
			if base == types.TypeString {
				return itoa(v), true
			}
			return v, true
		}, nil
	} else if kind != "" && kind != "random" {
		return nil, errors.Newf(ErrConnector, "unknown generator kind '%s' for column '%s'", kind, col.Name)
	}

	switch base {
	case types.TypeInt, types.TypeBigInt:
		min, err := t.intOption(prefix+"min", 0)
		if err != nil {
			return nil, err
		}
		max, err := t.intOption(prefix+"max", 1<<31-1)
		if err != nil {
			return nil, err
		} else if max < min {
			return nil, errors.Newf(ErrConnector, "max of column '%s' is less than min", col.Name)
		}
		return func(rnd *rand.Rand) (interface{}, bool) {
			return min + rnd.Int63n(max-min+1), true
		}, nil
	case types.TypeDouble:
		min, err := t.intOption(prefix+"min", 0)
		if err != nil {
			return nil, err
		}
		max, err := t.intOption(prefix+"max", 1<<31-1)
		if err != nil {
			return nil, err
		}
		return func(rnd *rand.Rand) (interface{}, bool) {
			return float64(min) + rnd.Float64()*float64(max-min), true
		}, nil
	case types.TypeBoolean:
		return func(rnd *rand.Rand) (interface{}, bool) {
			return rnd.Intn(2) == 1, true
		}, nil
	case types.TypeString:
		length, err := t.intOption(prefix+"length", 100)
		if err != nil {
			return nil, err
		}
		return func(rnd *rand.Rand) (interface{}, bool) {
			return randomString(rnd, int(length)), true
		}, nil
	case types.TypeTimestamp:
		return func(*rand.Rand) (interface{}, bool) {
			return time.Now().UTC().Format("2006-01-02T15:04:05.999"), true
		}, nil
	}
	return nil, errors.Newf(ErrConnector, "unsupported type %s of column '%s' for datagen", col.Type, col.Name)
}

const letters = "0123456789abcdef"

func randomString(rnd *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rnd.Intn(len(letters))]
	}
	return string(b)
}

func itoa(v int64) string {
	return types.FormatValue(v)
}

func (s *datagenSource) Bounded() bool {
	return s.rows >= 0
}

func (s *datagenSource) Read(ctx context.Context, emit func(types.Row) error) error {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	blocker := gwcontext.BlockerFrom(ctx)
	for n := int64(0); s.rows < 0 || n < s.rows; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.limiter.Allow() {
			blocker.Block()
			err := s.limiter.Wait(ctx)
			blocker.Unblock()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			} else if err != nil {
				return errors.Wrap(err, "waiting for rate limiter")
			}
		}
		row := types.Row{Kind: types.Insert, Values: make([]interface{}, len(s.fields))}
		for i, g := range s.fields {
			v, ok := g(rnd)
			if !ok {
				return nil
			}
			row.Values[i] = v
		}
		if err := emit(row); err != nil {
			return err
		}
	}
	return nil
}
