package cachestatus

import "testing"

func TestCacheStatusString(t *testing.T) {
	cases := map[string]CacheStatus{
		"Stepper-Cache; hit; ttl=376":         NewHit(376),
		"Stepper-Cache; hit; ttl=-412":        NewHit(-412),
		"Stepper-Cache; fwd=uri-miss; stored": NewForward(FwdReasonUriMiss, true),
		"Stepper-Cache; fwd=uri-miss":         NewForward(FwdReasonUriMiss, false),
	}
	for expected, cs := range cases {
		if s := cs.String(); s != expected {
			t.Fatalf("Cache-Status is '%s', expected '%s'", s, expected)
		}
	}
}
