package matomo

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/walsidalw/opencast-matomo-adapter/internal/domain"
)

// The URL-like label of a record identifies the episode for the two common
// player URL shapes. Anything else (live streams, static assets without a
// player path) does not reference a playable episode.
var (
	engageExpr = regexp.MustCompile(`/engage/.*\?id=([^&\s]+)`)
	staticExpr = regexp.MustCompile(`/static/.*yer/([^/?\s]+)`)
)

// viewRow is the schema of one raw view-statistics record. Matomo encodes
// some numeric fields as quoted strings depending on version, so counters
// decode through a tolerant type; pointers distinguish absent fields.
type viewRow struct {
	Label    *string    `json:"label"`
	Plays    *numericID `json:"nb_plays"`
	Visitors *numericID `json:"nb_unique_visitors_impressions"`
	Finishes *numericID `json:"nb_finishes"`
	Subtable *subtable  `json:"idsubdatatable"`
}

type numericID int

func (n *numericID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("counter %q: %w", s, err)
	}
	if v < 0 {
		return fmt.Errorf("counter %d is negative", v)
	}
	*n = numericID(v)
	return nil
}

// subtable accepts both the string and the integer encoding of the handle.
type subtable string

func (s *subtable) UnmarshalJSON(data []byte) error {
	*s = subtable(strings.Trim(strings.TrimSpace(string(data)), `"`))
	return nil
}

// extractRecord parses one raw analytics record. It returns ok=false for
// records whose label does not reference a playable episode; those are
// dropped silently. A matched record with missing or non-numeric required
// fields fails with MalformedRecordError, which is fatal for the run.
func extractRecord(raw json.RawMessage) (domain.ViewRecord, bool, error) {
	var probe struct {
		Label *string `json:"label"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Label == nil {
		return domain.ViewRecord{}, false, &domain.MalformedRecordError{Raw: string(raw), Err: errLabel(err)}
	}

	episodeID := episodeFromLabel(*probe.Label)
	if episodeID == "" {
		return domain.ViewRecord{}, false, nil
	}

	var row viewRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return domain.ViewRecord{}, false, &domain.MalformedRecordError{Raw: string(raw), Err: err}
	}
	if row.Plays == nil || row.Visitors == nil || row.Finishes == nil || row.Subtable == nil {
		return domain.ViewRecord{}, false, &domain.MalformedRecordError{
			Raw: string(raw),
			Err: fmt.Errorf("required field missing"),
		}
	}

	return domain.ViewRecord{
		EpisodeID: episodeID,
		Plays:     int(*row.Plays),
		Visitors:  int(*row.Visitors),
		Finishes:  int(*row.Finishes),
		Subtable:  string(*row.Subtable),
	}, true, nil
}

// episodeFromLabel matches the label against the two supported player URL
// shapes and returns the embedded episode id, or "" for no match.
func episodeFromLabel(label string) string {
	if m := engageExpr.FindStringSubmatch(label); m != nil {
		return m[1]
	}
	if m := staticExpr.FindStringSubmatch(label); m != nil {
		return m[1]
	}
	return ""
}

func errLabel(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("label field missing")
}
