// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"context"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
)

// valuesSource serves rows defined inline with the table.
type valuesSource struct {
	rows []types.Row
}

func newValuesSource(data [][]interface{}, schema types.Schema) (*valuesSource, error) {
	s := &valuesSource{rows: make([]types.Row, 0, len(data))}
	for i, values := range data {
		row, err := coerceRow(values, schema)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i+1)
		}
		s.rows = append(s.rows, row)
	}
	return s, nil
}

func (s *valuesSource) Bounded() bool { return true }

func (s *valuesSource) Read(ctx context.Context, emit func(types.Row) error) error {
	for _, row := range s.rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(row); err != nil {
			return err
		}
	}
	return nil
}
