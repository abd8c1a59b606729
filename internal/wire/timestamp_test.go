package wire

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestampAcceptsOffsetAndNaiveForms(t *testing.T) {
	utc := func(nsec int) time.Time { return time.Date(2024, 3, 10, 11, 0, 0, nsec, time.UTC) }
	cases := []struct {
		raw  string
		want time.Time
	}{
		{`"2024-03-10T11:00:00Z"`, utc(0)},
		{`"2024-03-10T06:00:00-05:00"`, utc(0)},
		{`"2024-03-10T11:00:00"`, utc(0)},
		{`"2024-03-10T11:00:00.123456"`, utc(123456000)},
		{`"2024-03-10T11:00:00.123456789+00:00"`, utc(123456789)},
	}
	for _, tc := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(tc.raw), &ts); err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if !ts.Equal(tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.raw, ts.Time, tc.want)
		}
	}
}

func TestTimestampRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`"yesterday"`, `"2024-03-10"`, `1710068400`} {
		var ts Timestamp
		if err := json.Unmarshal([]byte(raw), &ts); err == nil {
			t.Fatalf("%s: expected error, got %v", raw, ts.Time)
		}
	}
}

func TestTimestampNullLeavesZero(t *testing.T) {
	var rec ReportRecord
	if err := json.Unmarshal([]byte(`{"id":"x","expires_at":null}`), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.ExpiresAt != nil && !rec.ExpiresAt.IsZero() {
		t.Fatalf("expected no expiry, got %v", rec.ExpiresAt)
	}
}
