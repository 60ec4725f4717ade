// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package http

import (
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/types"
)

// OpenSessionRequest is the body of POST /session. A nil environment opens
// the session on the gateway defaults.
type OpenSessionRequest struct {
	ID          string                   `json:"id"`
	Environment *environment.Environment `json:"environment,omitempty"`
}

type OpenSessionResponse struct {
	ID string `json:"id"`
}

type SetPropertyRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StatementRequest is the body of the statement, query and update
// endpoints.
type StatementRequest struct {
	SQL string `json:"sql"`
}

type SnapshotRequest struct {
	PageSize int `json:"pageSize"`
}

type PageResponse struct {
	Rows []types.Row `json:"rows"`
}

type ModulesResponse struct {
	Modules []string `json:"modules"`
}

// CompleteRequest asks for the candidates of the word ending at Cursor, a
// character offset into Text.
type CompleteRequest struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
}

type CompleteResponse struct {
	Candidates []string `json:"candidates"`
}
