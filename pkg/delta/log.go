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

// Package delta reads Delta Lake transaction logs into versioned table
// snapshots.
package delta

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openlake/delta-sharing/pkg/appctx"
	"github.com/openlake/delta-sharing/pkg/errtypes"
	"github.com/openlake/delta-sharing/pkg/storage"
)

// LogDir is the directory holding the transaction log inside a table root.
const LogDir = "_delta_log"

const maxLineSize = 16 << 20

// Reader loads snapshots from a table's transaction log through a storage
// driver.
type Reader struct {
	fs storage.FS
}

// NewReader returns a log reader on top of the given storage.
func NewReader(fs storage.FS) *Reader {
	return &Reader{fs: fs}
}

// versionFromName parses NNNNNNNNNNNNNNNNNNNN.json names, 20 digit
// zero-padded decimal. Checkpoint and CRC files do not match.
func versionFromName(name string) (int64, bool) {
	base := name
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if !strings.HasSuffix(base, ".json") || len(base) != 25 {
		return 0, false
	}
	digits := strings.TrimSuffix(base, ".json")
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// listLog returns the commit files of the log keyed by version, sorted
// ascending. A missing log directory surfaces as errtypes.NotFound.
func (r *Reader) listLog(ctx context.Context, uri string) (map[int64]storage.FileInfo, []int64, error) {
	infos, err := r.fs.ListDir(ctx, uri, LogDir)
	if err != nil {
		return nil, nil, err
	}
	files := map[int64]storage.FileInfo{}
	versions := []int64{}
	for _, fi := range infos {
		if v, ok := versionFromName(fi.Name); ok {
			files[v] = fi
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return files, versions, nil
}

// LatestVersion returns the greatest committed version of the table.
// ok is false when the log directory is missing or holds no commits, which
// the protocol exposes as version 0 of an empty table.
func (r *Reader) LatestVersion(ctx context.Context, uri string) (version int64, ok bool, err error) {
	_, versions, err := r.listLog(ctx, uri)
	if err != nil {
		if _, missing := err.(errtypes.IsNotFound); missing {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(versions) == 0 {
		return 0, false, nil
	}
	return versions[len(versions)-1], true, nil
}

// VersionForTimestamp resolves a timestamp to the earliest version whose
// commit timestamp is at or after it.
func (r *Reader) VersionForTimestamp(ctx context.Context, uri string, ts time.Time) (int64, error) {
	files, versions, err := r.listLog(ctx, uri)
	if err != nil {
		return 0, err
	}
	wanted := ts.UnixMilli()
	for _, v := range versions {
		commitTs, err := r.commitTimestamp(ctx, uri, v, files[v])
		if err != nil {
			return 0, err
		}
		if commitTs >= wanted {
			return v, nil
		}
	}
	return 0, errtypes.NotFound(fmt.Sprintf("no version at or after timestamp %s", ts.Format(time.RFC3339)))
}

// commitTimestamp returns the timestamp of a commit in milliseconds: the
// commitInfo timestamp when present, otherwise the log file mtime.
func (r *Reader) commitTimestamp(ctx context.Context, uri string, version int64, fi storage.FileInfo) (int64, error) {
	actions, err := r.readCommit(ctx, uri, fi)
	if err != nil {
		return 0, err
	}
	for _, a := range actions {
		if len(a.CommitInfo) > 0 {
			var ci commitInfo
			if err := json.Unmarshal(a.CommitInfo, &ci); err == nil && ci.Timestamp != nil {
				return *ci.Timestamp, nil
			}
		}
	}
	return fi.ModTime.UnixMilli(), nil
}

// readCommit reads one commit file and parses its NDJSON lines into actions.
// Individual malformed lines are logged and skipped; a file that cannot be
// read, or that holds content but not a single parseable action, yields
// errtypes.CorruptLog.
func (r *Reader) readCommit(ctx context.Context, uri string, fi storage.FileInfo) ([]*Action, error) {
	log := appctx.GetLogger(ctx)

	rc, err := r.fs.Open(ctx, uri, fi.Name)
	if err != nil {
		return nil, errtypes.CorruptLog(fi.Name + ": " + err.Error())
	}
	defer rc.Close()

	actions := []*Action{}
	lines := 0
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64<<10), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines++
		a := &Action{}
		if err := json.Unmarshal([]byte(line), a); err != nil {
			log.Warn().Str("file", fi.Name).Err(err).Msg("delta: skipping malformed log line")
			continue
		}
		actions = append(actions, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, errtypes.CorruptLog(fi.Name + ": " + err.Error())
	}
	if lines > 0 && len(actions) == 0 {
		return nil, errtypes.CorruptLog(fi.Name + ": no parseable action")
	}
	return actions, nil
}

// Load computes the snapshot of the table at the requested version, or at the
// latest version when requested is nil. A missing log directory yields an
// empty version-0 snapshot; a missing requested version yields
// errtypes.NotFound.
func (r *Reader) Load(ctx context.Context, uri string, requested *int64) (*Snapshot, error) {
	files, versions, err := r.listLog(ctx, uri)
	if err != nil {
		if _, missing := err.(errtypes.IsNotFound); missing {
			return &Snapshot{Version: 0, Files: []*FileEntry{}}, nil
		}
		return nil, err
	}
	if len(versions) == 0 {
		return &Snapshot{Version: 0, Files: []*FileEntry{}}, nil
	}

	var target int64
	if requested != nil {
		target = *requested
		if _, ok := files[target]; !ok {
			return nil, errtypes.NotFound(fmt.Sprintf("version %d", target))
		}
	} else {
		target = versions[len(versions)-1]
	}

	log := appctx.GetLogger(ctx)

	var (
		protocol *Protocol
		metadata *Metadata
		ts       int64
	)
	adds := map[string]*FileEntry{}
	order := []string{}

	for _, v := range versions {
		if v > target {
			break
		}
		fi := files[v]
		actions, err := r.readCommit(ctx, uri, fi)
		if err != nil {
			return nil, err
		}
		commitTs := fi.ModTime.UnixMilli()
		for _, a := range actions {
			switch {
			case a.Protocol != nil:
				protocol = a.Protocol
			case a.MetaData != nil:
				metadata = a.MetaData
			case a.Add != nil:
				stats, err := ParseStats(a.Add.Stats)
				if err != nil {
					log.Warn().Str("path", a.Add.Path).Err(err).Msg("delta: unparseable file stats")
					stats = nil
				}
				if _, seen := adds[a.Add.Path]; !seen {
					order = append(order, a.Add.Path)
				}
				adds[a.Add.Path] = &FileEntry{Add: a.Add, ParsedStats: stats}
			case a.Remove != nil:
				delete(adds, a.Remove.Path)
			case len(a.CommitInfo) > 0:
				var ci commitInfo
				if err := json.Unmarshal(a.CommitInfo, &ci); err == nil && ci.Timestamp != nil {
					commitTs = *ci.Timestamp
				}
			}
		}
		if v == target {
			ts = commitTs
		}
	}

	if protocol == nil {
		return nil, errtypes.IncompleteLog(fmt.Sprintf("no protocol action through version %d", target))
	}
	if metadata == nil {
		return nil, errtypes.IncompleteLog(fmt.Sprintf("no metaData action through version %d", target))
	}

	entries := make([]*FileEntry, 0, len(adds))
	for _, p := range order {
		if e, ok := adds[p]; ok {
			entries = append(entries, e)
		}
	}

	return &Snapshot{
		Version:   target,
		Protocol:  protocol,
		Metadata:  metadata,
		Files:     entries,
		Timestamp: ts,
	}, nil
}

// ChangeSet holds the file actions of one commit, annotated with its
// timestamp. It backs the change-data-feed endpoint.
type ChangeSet struct {
	Version   int64
	Timestamp int64
	Adds      []*Add
	Removes   []*Remove
	CDCs      []*CDC
}

// Changes collects the file actions of every commit in [start, end]. A nil
// end means the latest version. start beyond the latest version yields
// errtypes.NotFound.
func (r *Reader) Changes(ctx context.Context, uri string, start int64, end *int64) ([]*ChangeSet, error) {
	files, versions, err := r.listLog(ctx, uri)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, errtypes.NotFound("table has no commits")
	}
	latest := versions[len(versions)-1]
	if start > latest {
		return nil, errtypes.NotFound(fmt.Sprintf("version %d", start))
	}
	last := latest
	if end != nil {
		if *end < start {
			return nil, errtypes.BadRequest(fmt.Sprintf("endingVersion %d is before startingVersion %d", *end, start))
		}
		if *end < last {
			last = *end
		}
	}

	sets := []*ChangeSet{}
	for _, v := range versions {
		if v < start || v > last {
			continue
		}
		fi := files[v]
		actions, err := r.readCommit(ctx, uri, fi)
		if err != nil {
			return nil, err
		}
		cs := &ChangeSet{Version: v, Timestamp: fi.ModTime.UnixMilli()}
		for _, a := range actions {
			switch {
			case a.Add != nil:
				cs.Adds = append(cs.Adds, a.Add)
			case a.Remove != nil:
				cs.Removes = append(cs.Removes, a.Remove)
			case a.CDC != nil:
				cs.CDCs = append(cs.CDCs, a.CDC)
			case len(a.CommitInfo) > 0:
				var ci commitInfo
				if err := json.Unmarshal(a.CommitInfo, &ci); err == nil && ci.Timestamp != nil {
					cs.Timestamp = *ci.Timestamp
				}
			}
		}
		sets = append(sets, cs)
	}
	return sets, nil
}
