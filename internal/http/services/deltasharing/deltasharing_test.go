// Copyright 2018-2025 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

package deltasharing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/openlake/delta-sharing/pkg/catalog/manager/loader"
	_ "github.com/openlake/delta-sharing/pkg/storage/fs/loader"
)

const (
	testProtocolLine = `{"protocol":{"minReaderVersion":1,"minWriterVersion":2}}`
)

func metadataLine(id string, cdf bool) string {
	conf := "{}"
	if cdf {
		conf = `{"delta.enableChangeDataFeed":"true"}`
	}
	return fmt.Sprintf(`{"metaData":{"id":%q,"format":{"provider":"parquet"},"schemaString":"{\"type\":\"struct\",\"fields\":[]}","partitionColumns":["date"],"configuration":%s}}`, id, conf)
}

func addAction(path, date string, size int64, numRecords int64) string {
	stats := fmt.Sprintf(`{"numRecords":%d,"minValues":{"x":1},"maxValues":{"x":100}}`, numRecords)
	return fmt.Sprintf(`{"add":{"path":%q,"partitionValues":{"date":%q},"size":%d,"modificationTime":1700000000000,"dataChange":true,"stats":%q}}`, path, date, size, stats)
}

func writeCommit(t *testing.T, table string, version int64, lines ...string) {
	t.Helper()
	dir := filepath.Join(table, "_delta_log")
	require.NoError(t, os.MkdirAll(dir, 0755))
	name := filepath.Join(dir, fmt.Sprintf("%020d.json", version))
	require.NoError(t, os.WriteFile(name, []byte(strings.Join(lines, "\n")+"\n"), 0600))
}

// newTestService seeds a catalog with three tables: "events" (partitioned,
// three files), "cdf" (change data feed enabled) and "empty" (no log yet).
func newTestService(t *testing.T) *svc {
	t.Helper()
	root := t.TempDir()

	events := filepath.Join(root, "events")
	writeCommit(t, events, 0,
		testProtocolLine,
		metadataLine("events-meta", false),
		addAction("date=2025-01-01/part-a.parquet", "2025-01-01", 100, 10),
		`{"commitInfo":{"timestamp":1735700000000}}`,
	)
	writeCommit(t, events, 1,
		addAction("date=2025-01-02/part-b.parquet", "2025-01-02", 200, 20),
		`{"commitInfo":{"timestamp":1735800000000}}`,
	)
	writeCommit(t, events, 2,
		addAction("date=2025-01-03/part-c.parquet", "2025-01-03", 300, 30),
		`{"commitInfo":{"timestamp":1735900000000}}`,
	)

	cdf := filepath.Join(root, "cdf")
	writeCommit(t, cdf, 0,
		testProtocolLine,
		metadataLine("cdf-meta", true),
		addAction("part-0.parquet", "2025-01-01", 50, 5),
	)
	writeCommit(t, cdf, 1,
		`{"cdc":{"path":"_change_data/cdc-0.parquet","partitionValues":{},"size":40,"dataChange":false}}`,
		`{"commitInfo":{"timestamp":1735850000000}}`,
	)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	catalogFile := filepath.Join(root, "catalog.json")
	model := fmt.Sprintf(`{
	  "shares": [{"name": "main", "active": true}],
	  "schemas": [{"name": "default", "share": "main"}],
	  "tables": [
	    {"name": "events", "schema": "default", "share": "main", "storageUri": %q},
	    {"name": "cdf", "schema": "default", "share": "main", "storageUri": %q},
	    {"name": "empty", "schema": "default", "share": "main", "storageUri": %q}
	  ]
	}`, events, cdf, filepath.Join(root, "empty"))
	require.NoError(t, os.WriteFile(catalogFile, []byte(model), 0600))

	log := zerolog.Nop()
	service, err := New(map[string]interface{}{
		"page_token_secret": "page-secret",
		"catalog":           map[string]interface{}{"json": map[string]interface{}{"file": catalogFile}},
		"storage": map[string]interface{}{"local": map[string]interface{}{
			"root":           root,
			"external_url":   "https://share.example.org/data",
			"signing_secret": "url-secret",
		}},
	}, &log)
	require.NoError(t, err)
	return service.(*svc)
}

func do(t *testing.T, s *svc, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for k, vv := range header {
		for _, v := range vv {
			r.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func ndjsonLines(t *testing.T, body string) []map[string]json.RawMessage {
	t.Helper()
	out := []map[string]json.RawMessage{}
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		m := map[string]json.RawMessage{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestListShares(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodGet, "/shares", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		NextPageToken string `json:"nextPageToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "main", resp.Items[0].Name)
	assert.Empty(t, resp.NextPageToken)
}

func TestGetShareNotFound(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodGet, "/shares/nope", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RESOURCE_DOES_NOT_EXIST", body.ErrorCode)
	assert.NotEmpty(t, body.Message)
}

func TestListTablesPagination(t *testing.T) {
	s := newTestService(t)

	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables?maxResults=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page1 struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		NextPageToken string `json:"nextPageToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page1))
	require.Len(t, page1.Items, 2)
	require.NotEmpty(t, page1.NextPageToken)

	w = do(t, s, http.MethodGet, "/shares/main/schemas/default/tables?pageToken="+page1.NextPageToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page2 struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		NextPageToken string `json:"nextPageToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page2))
	require.Len(t, page2.Items, 1)
	assert.Empty(t, page2.NextPageToken)

	names := []string{page1.Items[0].Name, page1.Items[1].Name, page2.Items[0].Name}
	assert.Equal(t, []string{"cdf", "empty", "events"}, names)
}

func TestPageTokenScopeEnforced(t *testing.T) {
	s := newTestService(t)

	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables?maxResults=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		NextPageToken string `json:"nextPageToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.NotEmpty(t, page.NextPageToken)

	// a tables token replayed against the shares listing is rejected.
	w = do(t, s, http.MethodGet, "/shares?pageToken="+page.NextPageToken, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidMaxResults(t *testing.T) {
	s := newTestService(t)
	for _, q := range []string{"maxResults=abc", "maxResults=-1"} {
		w := do(t, s, http.MethodGet, "/shares?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Contains(t, w.Body.String(), "INVALID_PARAMETER_VALUE")
	}
}

func TestTableVersion(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/events/version", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("Delta-Table-Version"))
	assert.JSONEq(t, `{"deltaTableVersion":2}`, w.Body.String())
}

func TestTableVersionStartingTimestamp(t *testing.T) {
	s := newTestService(t)
	// earliest version at or after the commit timestamp of version 2.
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/events/version?startingTimestamp=2025-01-03T00:00:00Z", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("Delta-Table-Version"))

	w = do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/events/version?startingTimestamp=not-a-time", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTableVersionEmptyTable(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/empty/version", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("Delta-Table-Version"))
}

func TestTableMetadataParquet(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/events/metadata", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("Delta-Table-Version"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/x-ndjson")

	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "protocol")
	assert.Contains(t, lines[1], "metaData")

	var md struct {
		ID               string   `json:"id"`
		PartitionColumns []string `json:"partitionColumns"`
	}
	require.NoError(t, json.Unmarshal(lines[1]["metaData"], &md))
	assert.Equal(t, "events-meta", md.ID)
	assert.Equal(t, []string{"date"}, md.PartitionColumns)
}

func TestTableMetadataDeltaFormat(t *testing.T) {
	s := newTestService(t)
	h := http.Header{}
	h.Set(CapabilitiesHeader, "responseformat=delta")
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/events/metadata", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get(CapabilitiesHeader), "responseformat=parquet,delta")

	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]["protocol"]), "deltaProtocol")
	assert.Contains(t, string(lines[1]["metaData"]), "deltaMetadata")

	var md struct {
		Size     int64 `json:"size"`
		NumFiles int64 `json:"numFiles"`
	}
	require.NoError(t, json.Unmarshal(lines[1]["metaData"], &md))
	assert.Equal(t, int64(600), md.Size)
	assert.Equal(t, int64(3), md.NumFiles)
}

func TestTableMetadataEmptyTable(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/empty/metadata", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("Delta-Table-Version"))
	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 2)
}

func TestTableMetadataEndStreamAction(t *testing.T) {
	s := newTestService(t)
	h := http.Header{}
	h.Set(CapabilitiesHeader, "responseformat=parquet;includeendstreamaction=true")
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/events/metadata", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get(CapabilitiesHeader), "includeendstreamaction=true")

	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "protocol")
	assert.Contains(t, lines[1], "metaData")
	require.Contains(t, lines[2], "endStreamAction")

	// metadata signs no URLs, the closing action carries no expiration and no
	// error.
	var esa struct {
		MinURLExpirationTimestamp int64  `json:"minUrlExpirationTimestamp"`
		ErrorMessage              string `json:"errorMessage"`
	}
	require.NoError(t, json.Unmarshal(lines[2]["endStreamAction"], &esa))
	assert.Zero(t, esa.MinURLExpirationTimestamp)
	assert.Empty(t, esa.ErrorMessage)
}

func TestTableQueryParquet(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodPost, "/shares/main/schemas/default/tables/events/query", "{}", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("Delta-Table-Version"))

	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "protocol")
	assert.Contains(t, lines[1], "metaData")

	var f struct {
		URL                 string            `json:"url"`
		ID                  string            `json:"id"`
		PartitionValues     map[string]string `json:"partitionValues"`
		Size                int64             `json:"size"`
		ExpirationTimestamp int64             `json:"expirationTimestamp"`
		Stats               *struct {
			NumRecords int64 `json:"numRecords"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(lines[2]["file"], &f))
	assert.Contains(t, f.URL, "https://share.example.org/data/events/")
	assert.Contains(t, f.URL, "sig=")
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "2025-01-01", f.PartitionValues["date"])
	assert.Equal(t, int64(100), f.Size)
	assert.Greater(t, f.ExpirationTimestamp, int64(0))
	require.NotNil(t, f.Stats)
	assert.Equal(t, int64(10), f.Stats.NumRecords)
}

func TestTableQueryPredicateHints(t *testing.T) {
	s := newTestService(t)
	body := `{"predicateHints":["date = '2025-01-02'"]}`
	w := do(t, s, http.MethodPost, "/shares/main/schemas/default/tables/events/query", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[2]["file"]), "part-b.parquet")
}

func TestTableQueryLimitHint(t *testing.T) {
	s := newTestService(t)
	// the first file already reaches 10 cumulative records.
	w := do(t, s, http.MethodPost, "/shares/main/schemas/default/tables/events/query", `{"limitHint":10}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 3)
}

func TestTableQueryAtVersion(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodPost, "/shares/main/schemas/default/tables/events/query", `{"version":0}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("Delta-Table-Version"))

	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 3)

	w = do(t, s, http.MethodPost, "/shares/main/schemas/default/tables/events/query", `{"version":99}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTableQueryVersionAndTimestampExclusive(t *testing.T) {
	s := newTestService(t)
	body := `{"version":1,"timestamp":"2025-01-02T00:00:00Z"}`
	w := do(t, s, http.MethodPost, "/shares/main/schemas/default/tables/events/query", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_PARAMETER_VALUE")
}

func TestTableQueryEndStreamAction(t *testing.T) {
	s := newTestService(t)
	h := http.Header{}
	h.Set(CapabilitiesHeader, "responseformat=parquet;includeendstreamaction=true")
	w := do(t, s, http.MethodPost, "/shares/main/schemas/default/tables/events/query", "{}", h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get(CapabilitiesHeader), "includeendstreamaction=true")

	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 6)
	last := lines[len(lines)-1]
	require.Contains(t, last, "endStreamAction")

	var esa struct {
		MinURLExpirationTimestamp int64 `json:"minUrlExpirationTimestamp"`
	}
	require.NoError(t, json.Unmarshal(last["endStreamAction"], &esa))
	assert.Greater(t, esa.MinURLExpirationTimestamp, int64(0))
}

func TestTableQueryExpiredDeadline(t *testing.T) {
	s := newTestService(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	r := httptest.NewRequest(http.MethodPost, "/shares/main/schemas/default/tables/events/query", strings.NewReader("{}"))
	r = r.WithContext(ctx)
	r.Header.Set(CapabilitiesHeader, "responseformat=parquet;includeendstreamaction=true")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)

	// protocol and metadata were already flushed when the deadline was
	// noticed, the expiry travels as the closing action's errorMessage.
	require.Equal(t, http.StatusOK, w.Code)
	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "protocol")
	assert.Contains(t, lines[1], "metaData")
	require.Contains(t, lines[2], "endStreamAction")

	var esa struct {
		ErrorMessage string `json:"errorMessage"`
	}
	require.NoError(t, json.Unmarshal(lines[2]["endStreamAction"], &esa))
	assert.Contains(t, esa.ErrorMessage, "deadline")
}

func TestTableQueryDeltaFormat(t *testing.T) {
	s := newTestService(t)
	h := http.Header{}
	h.Set(CapabilitiesHeader, "responseformat=delta")
	w := do(t, s, http.MethodPost, "/shares/main/schemas/default/tables/events/query", "{}", h)
	require.Equal(t, http.StatusOK, w.Code)

	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 5)

	var f struct {
		ID                string `json:"id"`
		Size              int64  `json:"size"`
		DeltaSingleAction struct {
			Add *struct {
				Path  string `json:"path"`
				Stats string `json:"stats"`
			} `json:"add"`
		} `json:"deltaSingleAction"`
	}
	require.NoError(t, json.Unmarshal(lines[2]["file"], &f))
	require.NotNil(t, f.DeltaSingleAction.Add)
	assert.Contains(t, f.DeltaSingleAction.Add.Path, "sig=")
	assert.Contains(t, f.DeltaSingleAction.Add.Stats, "numRecords")
}

func TestTableQueryEmptyTable(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodPost, "/shares/main/schemas/default/tables/empty/query", "{}", nil)
	require.Equal(t, http.StatusOK, w.Code)
	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 2)
}

func TestTableChanges(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/cdf/changes?startingVersion=0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	lines := ndjsonLines(t, w.Body.String())
	// protocol, metadata, the version-0 insert and the version-1 cdc file.
	require.Len(t, lines, 4)

	var insert struct {
		Version    int64  `json:"version"`
		Timestamp  int64  `json:"timestamp"`
		ChangeType string `json:"changeType"`
	}
	require.NoError(t, json.Unmarshal(lines[2]["file"], &insert))
	assert.Equal(t, int64(0), insert.Version)
	assert.Equal(t, "insert", insert.ChangeType)

	var cdc struct {
		URL       string `json:"url"`
		Version   int64  `json:"version"`
		Timestamp int64  `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(lines[3]["file"], &cdc))
	assert.Equal(t, int64(1), cdc.Version)
	assert.Equal(t, int64(1735850000000), cdc.Timestamp)
	assert.Contains(t, cdc.URL, "cdc-0.parquet")
}

func TestTableChangesRequiresStart(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/cdf/changes", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTableChangesCDFDisabled(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/events/changes?startingVersion=0", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Change data feed is not enabled")
}

func TestTableNotFound(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/nope/version", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidTableName(t *testing.T) {
	s := newTestService(t)
	w := do(t, s, http.MethodGet, "/shares/main/schemas/default/tables/a%2Fb/version", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
