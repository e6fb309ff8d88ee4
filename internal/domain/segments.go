package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Segment is one 30-second slice of an episode's playback timeline. SumPlays
// holds the episode's total play count for the day and is replicated at every
// index of an array; PlayRate is Plays/SumPlays rounded to two decimals.
type Segment struct {
	Plays    int
	SumPlays int
	PlayRate float64
}

// segmentWire is the provider/store shape of a segment. The analytics
// provider encodes numbers as strings ("12") and sometimes suffixes the play
// rate with a percent sign, so the fields decode through tolerant types.
type segmentWire struct {
	Plays    wireInt   `json:"nb_plays"`
	SumPlays wireInt   `json:"sum_plays"`
	PlayRate wireFloat `json:"play_rate"`
}

type wireInt int

func (w *wireInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*w = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("numeric field %q: %w", s, err)
	}
	*w = wireInt(v)
	return nil
}

type wireFloat float64

func (w *wireFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	s = strings.TrimSuffix(s, "%")
	if s == "" || s == "null" {
		*w = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("rate field %q: %w", s, err)
	}
	*w = wireFloat(v)
	return nil
}

// ParseSegments decodes a raw segment-statistics body into a Segment array.
func ParseSegments(raw string) ([]Segment, error) {
	var wire []segmentWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, &MalformedResponseError{Body: raw, Err: err}
	}
	segments := make([]Segment, len(wire))
	for i, w := range wire {
		segments[i] = Segment{Plays: int(w.Plays), SumPlays: int(w.SumPlays), PlayRate: float64(w.PlayRate)}
	}
	return segments, nil
}

// EncodeSegments renders a Segment array back into the stored wire shape:
// string-valued numeric fields, play rate trimmed to two decimals.
func EncodeSegments(segments []Segment) (string, error) {
	type out struct {
		Plays    string `json:"nb_plays"`
		SumPlays string `json:"sum_plays"`
		PlayRate string `json:"play_rate"`
	}
	wire := make([]out, len(segments))
	for i, s := range segments {
		wire[i] = out{
			Plays:    strconv.Itoa(s.Plays),
			SumPlays: strconv.Itoa(s.SumPlays),
			PlayRate: strconv.FormatFloat(s.PlayRate, 'f', -1, 64),
		}
	}
	encoded, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encode segments: %w", err)
	}
	return string(encoded), nil
}

// CombineSegments folds one raw subtable response into the accumulated
// segment array. A near-empty body (the provider returns "[]" or nothing when
// a subtable has no segment data) leaves the accumulator unchanged; a fresh
// array onto an empty accumulator is taken as-is. Usable as a fold seed
// across any number of subtable responses for one episode on one day.
func CombineSegments(acc []Segment, raw string) ([]Segment, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) <= 2 {
		return acc, nil
	}
	fresh, err := ParseSegments(raw)
	if err != nil {
		return nil, err
	}
	if len(fresh) == 0 {
		return acc, nil
	}
	if len(acc) == 0 {
		return fresh, nil
	}
	return MergeSegments(acc, fresh), nil
}

// MergeSegments unifies two parsed segment arrays. The result has the length
// of the longer input (ties favor the first operand), the total play count is
// the sum of both totals and is carried forward unconditionally, and every
// play rate is recomputed against the new total.
func MergeSegments(a, b []Segment) []Segment {
	longer, shorter := a, b
	if len(b) > len(a) {
		longer, shorter = b, a
	}
	sum := 0
	if len(a) > 0 {
		sum += a[0].SumPlays
	}
	if len(b) > 0 {
		sum += b[0].SumPlays
	}
	merged := make([]Segment, len(longer))
	for i := range longer {
		plays := longer[i].Plays
		if i < len(shorter) {
			plays += shorter[i].Plays
		}
		rate := 0.0
		if sum != 0 {
			rate = roundRate(float64(plays) / float64(sum))
		}
		merged[i] = Segment{Plays: plays, SumPlays: sum, PlayRate: rate}
	}
	return merged
}

func roundRate(v float64) float64 {
	return math.Round(v*100) / 100
}
