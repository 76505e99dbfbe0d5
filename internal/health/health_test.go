package health

import (
	"errors"
	"testing"

	"air-monitor/internal/models"
)

func TestTrackerInitializingToOK(t *testing.T) {
	tr := NewTracker("pms")
	if tr.Status() != models.StatusInitializing || !tr.Stale() {
		t.Fatalf("new tracker should be initializing and stale")
	}
	if recovered := tr.Success(); recovered {
		t.Errorf("first success is not a recovery")
	}
	if tr.Status() != models.StatusOK || tr.Stale() {
		t.Errorf("status = %v stale = %v after success", tr.Status(), tr.Stale())
	}
}

func TestTrackerGoesOfflineAfterMoreThanThreeFailures(t *testing.T) {
	tr := NewTracker("pms")
	tr.Success()

	for i := 1; i <= OfflineRetries; i++ {
		out := tr.Failure()
		if out.WentOffline || out.Reinitialize {
			t.Fatalf("failure %d should only count, got %+v", i, out)
		}
		if tr.Status() != models.StatusOK {
			t.Fatalf("failure %d changed status to %v", i, tr.Status())
		}
	}

	out := tr.Failure()
	if !out.WentOffline || !out.Reinitialize {
		t.Fatalf("fourth failure should take the sensor offline, got %+v", out)
	}
	if tr.Status() != models.StatusOffline || tr.Online() || !tr.Stale() {
		t.Errorf("status = %v online = %v stale = %v", tr.Status(), tr.Online(), tr.Stale())
	}

	// further failures keep asking for re-initialization without another transition
	out = tr.Failure()
	if out.WentOffline || !out.Reinitialize {
		t.Errorf("offline failure outcome = %+v", out)
	}
}

func TestTrackerSuccessClearsRetries(t *testing.T) {
	tr := NewTracker("bme")
	tr.Success()
	tr.Failure()
	tr.Failure()
	tr.Success()
	if tr.Retries() != 0 {
		t.Errorf("Retries = %d, want 0", tr.Retries())
	}
	for i := 0; i < OfflineRetries; i++ {
		tr.Failure()
	}
	if !tr.Online() {
		t.Errorf("counter should have restarted after the success")
	}
}

func TestTrackerSingleSuccessRecoversFromOffline(t *testing.T) {
	tr := NewTracker("pms")
	for i := 0; i <= OfflineRetries; i++ {
		tr.Failure()
	}
	tr.ReinitFailed(errors.New("no device"))
	if tr.Status() != models.StatusError {
		t.Fatalf("status = %v, want error after failed re-initialization", tr.Status())
	}

	if recovered := tr.Success(); !recovered {
		t.Errorf("success while offline should report recovery")
	}
	if tr.Status() != models.StatusOK || tr.Retries() != 0 || !tr.Online() {
		t.Errorf("status = %v retries = %d online = %v", tr.Status(), tr.Retries(), tr.Online())
	}
}

func TestTrackerReinitSucceededReturnsToOffline(t *testing.T) {
	tr := NewTracker("bme")
	for i := 0; i <= OfflineRetries; i++ {
		tr.Failure()
	}
	tr.ReinitFailed(errors.New("nack"))
	tr.ReinitSucceeded()
	if tr.Status() != models.StatusOffline {
		t.Errorf("status = %v, want offline until data flows", tr.Status())
	}
}

func TestFanStuckAfterFiveIdenticalCycles(t *testing.T) {
	var f FanDetector
	same := Triple{12, 18, 25}

	if got := f.Check(same); got != models.StatusOK {
		t.Fatalf("baseline cycle status = %v", got)
	}
	for i := 1; i < FanStuckCycles; i++ {
		if got := f.Check(same); got != models.StatusOK {
			t.Fatalf("repeat %d status = %v, want ok", i, got)
		}
	}
	if got := f.Check(same); got != models.StatusFanStuck {
		t.Fatalf("status after %d identical repeats = %v, want fan_stuck", FanStuckCycles, got)
	}

	if got := f.Check(Triple{12, 18, 26}); got != models.StatusOK {
		t.Errorf("differing cycle status = %v, want ok", got)
	}
	if f.StuckCount() != 0 {
		t.Errorf("StuckCount = %d, want 0", f.StuckCount())
	}
}

func TestZeroDataIndependentOfStuck(t *testing.T) {
	var f FanDetector
	f.Check(Triple{3, 4, 5})

	var got models.SensorStatus
	for i := 0; i < ZeroDataCycles; i++ {
		got = f.Check(Triple{})
	}
	if got != models.StatusZeroData {
		t.Fatalf("status after %d zero cycles = %v, want zero_data", ZeroDataCycles, got)
	}
	if f.ZeroCount() != ZeroDataCycles || f.StuckCount() != ZeroDataCycles-1 {
		t.Errorf("zero = %d stuck = %d", f.ZeroCount(), f.StuckCount())
	}

	// a non-zero reading clears the zero counter
	if got := f.Check(Triple{0, 0, 1}); got != models.StatusOK || f.ZeroCount() != 0 {
		t.Errorf("status = %v zero = %d after non-zero cycle", got, f.ZeroCount())
	}
}

func TestFanDetectorReset(t *testing.T) {
	var f FanDetector
	for i := 0; i < 10; i++ {
		f.Check(Triple{1, 1, 1})
	}
	f.Reset()
	if f.Check(Triple{1, 1, 1}) != models.StatusOK || f.StuckCount() != 0 {
		t.Errorf("Reset should forget the previous triple")
	}
}
