package slp

import (
	"net/netip"
	"testing"
	"time"
)

var testDAAddr = netip.MustParseAddr("10.0.0.1")

// TestKnownDAFirstSightingEnqueuesReregister covers spec.md §8 scenario 1:
// the first DAAdvert from a previously-unknown DA must enqueue a
// re-registration of all local services.
func TestKnownDAFirstSightingEnqueuesReregister(t *testing.T) {
	t.Parallel()

	tr := NewKnownDATracker(time.Second)
	now := time.Unix(0, 0)

	tr.Observe(ErrNone, testDAAddr, 100, "default", "service:directory-agent://10.0.0.1", "", now)

	items := tr.DrainReregisterQueue()
	if len(items) != 1 || items[0].Addr != testDAAddr {
		t.Fatalf("expected one reregister item for %v, got %v", testDAAddr, items)
	}
	if tr.Len() != 1 {
		t.Fatalf("expected one tracked DA, got %d", tr.Len())
	}
}

// TestKnownDABootstampMonotonicity covers spec.md §8 scenario 2: a DAAdvert
// with a higher bootstamp than the stored entry (DA restart) must re-enqueue
// a re-registration and adopt the new bootstamp; a DAAdvert with an equal or
// lower bootstamp must not.
func TestKnownDABootstampMonotonicity(t *testing.T) {
	t.Parallel()

	tr := NewKnownDATracker(time.Second)
	now := time.Unix(0, 0)

	tr.Observe(ErrNone, testDAAddr, 100, "default", "service:directory-agent://10.0.0.1", "", now)
	tr.DrainReregisterQueue()

	// Same bootstamp: routine heartbeat, no reregister.
	tr.Observe(ErrNone, testDAAddr, 100, "default", "service:directory-agent://10.0.0.1", "", now.Add(time.Second))
	if items := tr.DrainReregisterQueue(); len(items) != 0 {
		t.Fatalf("expected no reregister on unchanged bootstamp, got %v", items)
	}

	// Higher bootstamp: DA restarted, must reregister.
	tr.Observe(ErrNone, testDAAddr, 200, "default", "service:directory-agent://10.0.0.1", "", now.Add(2*time.Second))
	items := tr.DrainReregisterQueue()
	if len(items) != 1 {
		t.Fatalf("expected one reregister on bootstamp increase, got %v", items)
	}

	snap := tr.Snapshot()
	if len(snap) != 1 || snap[0].BootTime != 200 {
		t.Fatalf("expected stored bootstamp to advance to 200, got %+v", snap)
	}

	// Lower (stale/reordered) bootstamp: ignored, no regression.
	tr.Observe(ErrNone, testDAAddr, 150, "default", "service:directory-agent://10.0.0.1", "", now.Add(3*time.Second))
	if items := tr.DrainReregisterQueue(); len(items) != 0 {
		t.Fatalf("expected no reregister on stale bootstamp, got %v", items)
	}
	snap = tr.Snapshot()
	if snap[0].BootTime != 200 {
		t.Fatalf("stale bootstamp must not roll back stored value, got %d", snap[0].BootTime)
	}
}

func TestKnownDAObserveIgnoresErrorCode(t *testing.T) {
	t.Parallel()

	tr := NewKnownDATracker(time.Second)
	tr.Observe(ErrInternalError, testDAAddr, 100, "default", "", "", time.Unix(0, 0))
	if tr.Len() != 0 {
		t.Fatalf("expected non-zero error code DAAdvert to be ignored, got %d entries", tr.Len())
	}
}

func TestKnownDALivenessSweep(t *testing.T) {
	t.Parallel()

	heartbeat := time.Second
	tr := NewKnownDATracker(heartbeat)
	t0 := time.Unix(0, 0)
	tr.Observe(ErrNone, testDAAddr, 1, "default", "", "", t0)

	// Before 3x heartbeat: still reachable and included in scope lookup.
	tr.SweepLiveness(t0.Add(2 * heartbeat))
	if das := tr.DASForScope("default"); len(das) != 1 {
		t.Fatalf("expected DA still reachable before 3x heartbeat, got %v", das)
	}

	// Past 3x heartbeat: marked unreachable, excluded from scope lookup,
	// but not yet evicted.
	tr.SweepLiveness(t0.Add(3*heartbeat + time.Millisecond))
	if das := tr.DASForScope("default"); len(das) != 0 {
		t.Fatalf("expected DA excluded once unreachable, got %v", das)
	}
	if tr.Len() != 1 {
		t.Fatalf("expected unreachable DA to remain tracked, got %d", tr.Len())
	}

	// Past 5x heartbeat total: evicted.
	tr.SweepLiveness(t0.Add(5*heartbeat + time.Millisecond))
	if tr.Len() != 0 {
		t.Fatalf("expected DA evicted after extended silence, got %d", tr.Len())
	}
}

func TestKnownDASForScopeOrdersByBootTimeDesc(t *testing.T) {
	t.Parallel()

	tr := NewKnownDATracker(time.Minute)
	now := time.Unix(0, 0)
	tr.Observe(ErrNone, netip.MustParseAddr("10.0.0.1"), 100, "default", "", "", now)
	tr.Observe(ErrNone, netip.MustParseAddr("10.0.0.2"), 300, "default", "", "", now)
	tr.Observe(ErrNone, netip.MustParseAddr("10.0.0.3"), 200, "default", "", "", now)

	das := tr.DASForScope("default")
	if len(das) != 3 {
		t.Fatalf("expected 3 DAs, got %d", len(das))
	}
	if das[0].BootTime != 300 || das[1].BootTime != 200 || das[2].BootTime != 100 {
		t.Fatalf("expected descending bootstamp order, got %v, %v, %v", das[0].BootTime, das[1].BootTime, das[2].BootTime)
	}
}

func TestKnownDASForScopeFiltersByScope(t *testing.T) {
	t.Parallel()

	tr := NewKnownDATracker(time.Minute)
	now := time.Unix(0, 0)
	tr.Observe(ErrNone, netip.MustParseAddr("10.0.0.1"), 1, "red,blue", "", "", now)
	tr.Observe(ErrNone, netip.MustParseAddr("10.0.0.2"), 1, "green", "", "", now)

	das := tr.DASForScope("blue")
	if len(das) != 1 || das[0].Addr.String() != "10.0.0.1" {
		t.Fatalf("expected only the blue-scoped DA, got %v", das)
	}
}
