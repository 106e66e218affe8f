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
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/openlake/delta-sharing/pkg/appctx"
	"github.com/openlake/delta-sharing/pkg/catalog"
	"github.com/openlake/delta-sharing/pkg/delta"
	"github.com/openlake/delta-sharing/pkg/delta/pruning"
	"github.com/openlake/delta-sharing/pkg/errtypes"
	"github.com/openlake/delta-sharing/pkg/storage"
)

// versionHeader carries the resolved table version on version, metadata and
// query responses.
const versionHeader = "Delta-Table-Version"

type queryRequest struct {
	PredicateHints  []string `json:"predicateHints,omitempty"`
	LimitHint       *int64   `json:"limitHint,omitempty"`
	Version         *int64   `json:"version,omitempty"`
	Timestamp       string   `json:"timestamp,omitempty"`
	StartingVersion *int64   `json:"startingVersion,omitempty"`
	EndingVersion   *int64   `json:"endingVersion,omitempty"`
}

func (s *svc) resolveTable(r *http.Request) (*catalog.Table, error) {
	share, err := pathParam(r, "share")
	if err != nil {
		return nil, err
	}
	schema, err := pathParam(r, "schema")
	if err != nil {
		return nil, err
	}
	table, err := pathParam(r, "table")
	if err != nil {
		return nil, err
	}
	return s.catalog.ResolveTable(r.Context(), share, schema, table)
}

// snapshotAt loads the table snapshot at the requested version or timestamp,
// at the latest version when neither is given. Concrete versions go through
// the snapshot cache; structural errors are never cached.
func (s *svc) snapshotAt(ctx context.Context, t *catalog.Table, version *int64, timestamp string) (*delta.Snapshot, error) {
	if version != nil && timestamp != "" {
		return nil, errtypes.BadRequest("version and timestamp cannot both be set")
	}
	if version != nil && *version < 0 {
		return nil, errtypes.BadRequest("version must not be negative")
	}

	var v int64
	switch {
	case version != nil:
		v = *version
	case timestamp != "":
		ts, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, errtypes.BadRequest("invalid timestamp: " + timestamp)
		}
		v, err = s.reader.VersionForTimestamp(ctx, t.StorageURI, ts)
		if err != nil {
			return nil, err
		}
	default:
		latest, ok, err := s.reader.LatestVersion(ctx, t.StorageURI)
		if err != nil {
			return nil, err
		}
		if !ok {
			// no committed version yet, serve the empty table without caching.
			return s.reader.Load(ctx, t.StorageURI, nil)
		}
		v = latest
	}

	return s.snapshots.Get(ctx, t.ID, v, func(ctx context.Context) (*delta.Snapshot, error) {
		return s.reader.Load(ctx, t.StorageURI, &v)
	})
}

func (s *svc) signFile(ctx context.Context, t *catalog.Table, path string) (storage.SignedURL, error) {
	ttl := time.Duration(s.conf.URLTTLSeconds) * time.Second
	return s.store.Sign(ctx, t.StorageURI, path, ttl)
}

func (s *svc) handleTableVersion(w http.ResponseWriter, r *http.Request) {
	t, err := s.resolveTable(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var version int64
	if ts := r.URL.Query().Get("startingTimestamp"); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			writeError(w, r, errtypes.BadRequest("invalid startingTimestamp: "+ts))
			return
		}
		version, err = s.reader.VersionForTimestamp(r.Context(), t.StorageURI, parsed)
		if err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		v, _, err := s.reader.LatestVersion(r.Context(), t.StorageURI)
		if err != nil {
			writeError(w, r, err)
			return
		}
		version = v
	}

	w.Header().Set(versionHeader, strconv.FormatInt(version, 10))
	writeJSON(w, r, http.StatusOK, versionResponse{DeltaTableVersion: version})
}

func (s *svc) handleTableMetadata(w http.ResponseWriter, r *http.Request) {
	t, err := s.resolveTable(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	snap, err := s.snapshotAt(r.Context(), t, nil, "")
	if err != nil {
		writeError(w, r, err)
		return
	}

	caps := parseCapabilities(r.Header.Get(CapabilitiesHeader))
	format := caps.responseFormat(snap)
	setCapabilitiesHeader(w, caps)
	w.Header().Set(versionHeader, strconv.FormatInt(snap.Version, 10))

	sw := newStreamWriter(w)
	if err := s.writeProtocolAndMetadata(sw, format, snap, snap.Files); err != nil {
		s.abortStream(w, r, sw, caps, err)
		return
	}
	s.finishStream(w, r, sw, caps)
}

func (s *svc) handleTableQuery(w http.ResponseWriter, r *http.Request) {
	t, err := s.resolveTable(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req queryRequest
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, errtypes.BadRequest("unparseable query request body"))
			return
		}
	}

	caps := parseCapabilities(r.Header.Get(CapabilitiesHeader))

	// a query with startingVersion streams all data change files since that
	// version, like the changes endpoint.
	if req.StartingVersion != nil {
		s.streamChanges(w, r, t, caps, *req.StartingVersion, req.EndingVersion, false)
		return
	}

	snap, err := s.snapshotAt(r.Context(), t, req.Version, req.Timestamp)
	if err != nil {
		writeError(w, r, err)
		return
	}

	files := pruning.Prune(r.Context(), snap.Files, req.PredicateHints, partitionColumns(snap))

	format := caps.responseFormat(snap)
	setCapabilitiesHeader(w, caps)
	w.Header().Set(versionHeader, strconv.FormatInt(snap.Version, 10))

	sw := newStreamWriter(w)
	if err := s.writeProtocolAndMetadata(sw, format, snap, files); err != nil {
		s.abortStream(w, r, sw, caps, err)
		return
	}

	ctx := r.Context()
	var records int64
	for _, f := range files {
		// a gone client or an expired deadline stops the signing work.
		if err := ctx.Err(); err != nil {
			s.abortStream(w, r, sw, caps, err)
			return
		}
		if req.LimitHint != nil && f.ParsedStats != nil {
			if records >= *req.LimitHint {
				break
			}
			records += f.ParsedStats.NumRecords
		}
		signed, err := s.signFile(ctx, t, f.Path)
		if err != nil {
			s.abortStream(w, r, sw, caps, err)
			return
		}
		sw.TrackExpiration(signed.ExpirationTimestampMs)
		if err := s.writeFileLine(sw, format, f, signed, 0, 0, ""); err != nil {
			s.abortStream(w, r, sw, caps, err)
			return
		}
	}

	s.finishStream(w, r, sw, caps)
}

func (s *svc) handleTableChanges(w http.ResponseWriter, r *http.Request) {
	t, err := s.resolveTable(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	caps := parseCapabilities(r.Header.Get(CapabilitiesHeader))

	var start int64
	switch {
	case q.Get("startingVersion") != "":
		start, err = strconv.ParseInt(q.Get("startingVersion"), 10, 64)
		if err != nil || start < 0 {
			writeError(w, r, errtypes.BadRequest("invalid startingVersion"))
			return
		}
	case q.Get("startingTimestamp") != "":
		ts, err := time.Parse(time.RFC3339, q.Get("startingTimestamp"))
		if err != nil {
			writeError(w, r, errtypes.BadRequest("invalid startingTimestamp"))
			return
		}
		start, err = s.reader.VersionForTimestamp(r.Context(), t.StorageURI, ts)
		if err != nil {
			writeError(w, r, err)
			return
		}
	default:
		writeError(w, r, errtypes.BadRequest("startingVersion or startingTimestamp is required"))
		return
	}

	var end *int64
	if raw := q.Get("endingVersion"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, r, errtypes.BadRequest("invalid endingVersion"))
			return
		}
		end = &v
	} else if raw := q.Get("endingTimestamp"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, errtypes.BadRequest("invalid endingTimestamp"))
			return
		}
		v, err := s.reader.VersionForTimestamp(r.Context(), t.StorageURI, ts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		end = &v
	}

	s.streamChanges(w, r, t, caps, start, end, true)
}

// streamChanges serves the change data feed between two versions. requireCDF
// distinguishes the changes endpoint, which demands the feed to be recorded,
// from starting-version queries.
func (s *svc) streamChanges(w http.ResponseWriter, r *http.Request, t *catalog.Table, caps capabilities, start int64, end *int64, requireCDF bool) {
	ctx := r.Context()

	snap, err := s.snapshotAt(ctx, t, end, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if requireCDF && !snap.Metadata.CDFEnabled() {
		writeError(w, r, errtypes.BadRequest("Change data feed is not enabled"))
		return
	}

	sets, err := s.reader.Changes(ctx, t.StorageURI, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}

	format := caps.responseFormat(snap)
	setCapabilitiesHeader(w, caps)
	w.Header().Set(versionHeader, strconv.FormatInt(snap.Version, 10))

	sw := newStreamWriter(w)
	if err := s.writeProtocolAndMetadata(sw, format, snap, snap.Files); err != nil {
		s.abortStream(w, r, sw, caps, err)
		return
	}

	for _, cs := range sets {
		if err := ctx.Err(); err != nil {
			s.abortStream(w, r, sw, caps, err)
			return
		}
		if err := s.writeChangeSet(ctx, sw, format, t, cs); err != nil {
			s.abortStream(w, r, sw, caps, err)
			return
		}
	}

	s.finishStream(w, r, sw, caps)
}

// writeChangeSet emits the file lines of one commit. Commits that recorded
// cdc files are represented by those alone; otherwise adds surface as inserts
// and removes as removes.
func (s *svc) writeChangeSet(ctx context.Context, sw *streamWriter, format string, t *catalog.Table, cs *delta.ChangeSet) error {
	sign := func(path string) (storage.SignedURL, error) {
		signed, err := s.signFile(ctx, t, path)
		if err == nil {
			sw.TrackExpiration(signed.ExpirationTimestampMs)
		}
		return signed, err
	}

	if len(cs.CDCs) > 0 {
		for _, c := range cs.CDCs {
			signed, err := sign(c.Path)
			if err != nil {
				return err
			}
			if err := s.writeCDCLine(sw, format, c, signed, cs.Version, cs.Timestamp); err != nil {
				return err
			}
		}
		return nil
	}

	for _, a := range cs.Adds {
		signed, err := sign(a.Path)
		if err != nil {
			return err
		}
		stats, statsErr := delta.ParseStats(a.Stats)
		if statsErr != nil {
			stats = nil
		}
		entry := &delta.FileEntry{Add: a, ParsedStats: stats}
		if err := s.writeFileLine(sw, format, entry, signed, cs.Version, cs.Timestamp, "insert"); err != nil {
			return err
		}
	}
	for _, rm := range cs.Removes {
		signed, err := sign(rm.Path)
		if err != nil {
			return err
		}
		if err := s.writeRemoveLine(sw, format, rm, signed, cs.Version, cs.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

func (s *svc) writeProtocolAndMetadata(sw *streamWriter, format string, snap *delta.Snapshot, files []*delta.FileEntry) error {
	md := metadataToJSON(snap.Metadata)
	if format == FormatDelta {
		proto := delta.Protocol{MinReaderVersion: 1, MinWriterVersion: 1}
		if snap.Protocol != nil {
			proto = *snap.Protocol
		}
		if err := sw.WriteLine(deltaProtocolWrapper{Protocol: deltaProtocolInner{DeltaProtocol: proto}}); err != nil {
			return err
		}
		var size int64
		for _, f := range files {
			size += f.Size
		}
		return sw.WriteLine(deltaMetadataWrapper{MetaData: deltaMetadataInner{
			DeltaMetadata: md,
			Size:          size,
			NumFiles:      int64(len(files)),
		}})
	}

	if err := sw.WriteLine(parquetProtocolWrapper{Protocol: parquetProtocol{MinReaderVersion: 1}}); err != nil {
		return err
	}
	return sw.WriteLine(parquetMetadataWrapper{MetaData: md})
}

func (s *svc) writeFileLine(sw *streamWriter, format string, f *delta.FileEntry, signed storage.SignedURL, version, timestamp int64, changeType string) error {
	partitions := f.PartitionValues
	if partitions == nil {
		partitions = map[string]string{}
	}
	if format == FormatDelta {
		return sw.WriteLine(deltaFileWrapper{File: deltaFile{
			ID:                  fileID(f.Path),
			Size:                f.Size,
			ExpirationTimestamp: signed.ExpirationTimestampMs,
			Version:             version,
			Timestamp:           timestamp,
			DeltaSingleAction: deltaSingleAction{Add: &deltaAdd{
				Path:             signed.URL,
				PartitionValues:  partitions,
				Size:             f.Size,
				ModificationTime: f.ModificationTime,
				DataChange:       f.DataChange,
				Stats:            f.Stats,
				DeletionVector:   f.DeletionVector,
			}},
		}})
	}
	return sw.WriteLine(parquetFileWrapper{File: parquetFile{
		URL:                 signed.URL,
		ID:                  fileID(f.Path),
		PartitionValues:     partitions,
		Size:                f.Size,
		Stats:               f.ParsedStats,
		ExpirationTimestamp: signed.ExpirationTimestampMs,
		Version:             version,
		Timestamp:           timestamp,
		ChangeType:          changeType,
	}})
}

func (s *svc) writeRemoveLine(sw *streamWriter, format string, rm *delta.Remove, signed storage.SignedURL, version, timestamp int64) error {
	if format == FormatDelta {
		return sw.WriteLine(deltaFileWrapper{File: deltaFile{
			ID:                  fileID(rm.Path),
			Size:                rm.Size,
			ExpirationTimestamp: signed.ExpirationTimestampMs,
			Version:             version,
			Timestamp:           timestamp,
			DeltaSingleAction: deltaSingleAction{Remove: &deltaRemove{
				Path:            signed.URL,
				PartitionValues: rm.PartitionValues,
				Size:            rm.Size,
				DataChange:      rm.DataChange,
			}},
		}})
	}
	partitions := rm.PartitionValues
	if partitions == nil {
		partitions = map[string]string{}
	}
	return sw.WriteLine(parquetFileWrapper{File: parquetFile{
		URL:                 signed.URL,
		ID:                  fileID(rm.Path),
		PartitionValues:     partitions,
		Size:                rm.Size,
		ExpirationTimestamp: signed.ExpirationTimestampMs,
		Version:             version,
		Timestamp:           timestamp,
		ChangeType:          "remove",
	}})
}

func (s *svc) writeCDCLine(sw *streamWriter, format string, c *delta.CDC, signed storage.SignedURL, version, timestamp int64) error {
	partitions := c.PartitionValues
	if partitions == nil {
		partitions = map[string]string{}
	}
	if format == FormatDelta {
		return sw.WriteLine(deltaFileWrapper{File: deltaFile{
			ID:                  fileID(c.Path),
			Size:                c.Size,
			ExpirationTimestamp: signed.ExpirationTimestampMs,
			Version:             version,
			Timestamp:           timestamp,
			DeltaSingleAction: deltaSingleAction{CDC: &deltaCDC{
				Path:            signed.URL,
				PartitionValues: partitions,
				Size:            c.Size,
				DataChange:      c.DataChange,
			}},
		}})
	}
	// change rows of cdc files carry their own _change_type column, the line
	// itself is not labelled.
	return sw.WriteLine(parquetFileWrapper{File: parquetFile{
		URL:                 signed.URL,
		ID:                  fileID(c.Path),
		PartitionValues:     partitions,
		Size:                c.Size,
		ExpirationTimestamp: signed.ExpirationTimestampMs,
		Version:             version,
		Timestamp:           timestamp,
	}})
}

// finishStream emits the end-stream action when the client negotiated it.
func (s *svc) finishStream(w http.ResponseWriter, r *http.Request, sw *streamWriter, caps capabilities) {
	if !caps.includeEndStreamAction {
		return
	}
	line := endStreamActionWrapper{EndStreamAction: endStreamAction{
		MinURLExpirationTimestamp: sw.MinExpiration(),
	}}
	if err := sw.WriteLine(line); err != nil {
		appctx.GetLogger(r.Context()).Error().Err(err).Msg("deltasharing: error writing end stream action")
	}
}

// abortStream handles a failure after response synthesis began. Before the
// first byte it degrades to a regular error response; afterwards the error
// travels as an end-stream action when negotiated, else the connection is
// torn down so the client does not mistake the truncated stream for a
// complete one.
func (s *svc) abortStream(w http.ResponseWriter, r *http.Request, sw *streamWriter, caps capabilities, err error) {
	if !sw.Started() {
		writeError(w, r, err)
		return
	}
	log := appctx.GetLogger(r.Context())
	log.Error().Err(err).Msg("deltasharing: stream aborted")
	if caps.includeEndStreamAction {
		_, body := mapError(err)
		line := endStreamActionWrapper{EndStreamAction: endStreamAction{
			MinURLExpirationTimestamp: sw.MinExpiration(),
			ErrorMessage:              body.Message,
		}}
		if werr := sw.WriteLine(line); werr != nil {
			log.Error().Err(werr).Msg("deltasharing: error writing end stream action")
		}
		return
	}
	panic(http.ErrAbortHandler)
}

func partitionColumns(s *delta.Snapshot) []string {
	if s.Metadata == nil {
		return nil
	}
	return s.Metadata.PartitionColumns
}
