// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package opentracing_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/tracing"
	gwot "github.com/featurebasedb/sqlgateway/tracing/opentracing"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracer(t *testing.T) {
	mock := mocktracer.New()
	tr := gwot.NewTracer(mock, logger.NewLogfLogger(t))

	parent, ctx := tr.StartSpanFromContext(context.Background(), "ExecuteSQL")
	child, _ := tr.StartSpanFromContext(ctx, "Submit")
	child.Finish()
	parent.Finish()

	spans := mock.FinishedSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "Submit", spans[0].OperationName)
	assert.Equal(t, spans[1].SpanContext.SpanID, spans[0].ParentID)
}

func TestHTTPHeaders(t *testing.T) {
	mock := mocktracer.New()
	tr := gwot.NewTracer(mock, logger.NopLogger)

	span, ctx := tr.StartSpanFromContext(context.Background(), "client")
	req := httptest.NewRequest("POST", "/sessions/s1/statements", nil).WithContext(ctx)
	tr.InjectHTTPHeaders(req)
	span.Finish()

	server, _ := tr.ExtractHTTPHeaders(req)
	server.Finish()

	spans := mock.FinishedSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "POST /sessions/s1/statements", spans[1].OperationName)
	assert.Equal(t, spans[0].SpanContext.TraceID, spans[1].SpanContext.TraceID)
}

func TestInstall(t *testing.T) {
	defer func() { tracing.GlobalTracer = tracing.NopTracer() }()
	mock := mocktracer.New()
	gwot.Install(mock, logger.NopLogger)
	span, _ := tracing.StartSpanFromContext(context.Background(), "op")
	span.Finish()
	assert.Len(t, mock.FinishedSpans(), 1)
}
