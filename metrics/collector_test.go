package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("example_handler", "run-001")

	c.IncFetchOK()
	c.IncFetchOK()
	c.IncFetchTransientHTTP()
	c.IncFetchBrokenSession()
	c.IncFetchTimeout()
	c.IncFetchOther()
	c.IncCacheHit()
	c.IncSessionStarted()
	c.IncSessionRestarted()
	c.IncSessionBroken()
	c.IncBlobWriteSuccess()
	c.IncBlobWriteSuccess()
	c.IncBlobWriteFailure()
	c.AddEventsIntegrated(5)
	c.AddRowsRegistered(3)
	c.AddRowsStatusChanged(2)

	s := c.Snapshot()

	if s.FetchOK != 2 {
		t.Errorf("FetchOK = %d, want 2", s.FetchOK)
	}
	if s.FetchTransientHTTP != 1 {
		t.Errorf("FetchTransientHTTP = %d, want 1", s.FetchTransientHTTP)
	}
	if s.FetchBrokenSession != 1 {
		t.Errorf("FetchBrokenSession = %d, want 1", s.FetchBrokenSession)
	}
	if s.FetchTimeout != 1 {
		t.Errorf("FetchTimeout = %d, want 1", s.FetchTimeout)
	}
	if s.FetchOther != 1 {
		t.Errorf("FetchOther = %d, want 1", s.FetchOther)
	}
	if s.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", s.CacheHits)
	}
	if s.SessionsStarted != 1 || s.SessionsRestarted != 1 || s.SessionsBroken != 1 {
		t.Errorf("session counters = %+v, want all 1", s)
	}
	if s.BlobWriteSuccess != 2 {
		t.Errorf("BlobWriteSuccess = %d, want 2", s.BlobWriteSuccess)
	}
	if s.BlobWriteFailure != 1 {
		t.Errorf("BlobWriteFailure = %d, want 1", s.BlobWriteFailure)
	}
	if s.EventsIntegrated != 5 {
		t.Errorf("EventsIntegrated = %d, want 5", s.EventsIntegrated)
	}
	if s.RowsRegistered != 3 {
		t.Errorf("RowsRegistered = %d, want 3", s.RowsRegistered)
	}
	if s.RowsStatusChanged != 2 {
		t.Errorf("RowsStatusChanged = %d, want 2", s.RowsStatusChanged)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("example_handler", "run-42")
	s := c.Snapshot()

	if s.Handler != "example_handler" {
		t.Errorf("Handler = %q, want %q", s.Handler, "example_handler")
	}
	if s.RunID != "run-42" {
		t.Errorf("RunID = %q, want %q", s.RunID, "run-42")
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("example_handler", "run-001")
	c.IncFetchOK()
	c.IncBlobWriteSuccess()

	s1 := c.Snapshot()

	c.IncFetchOK()
	c.IncBlobWriteSuccess()
	c.IncBlobWriteSuccess()

	if s1.FetchOK != 1 {
		t.Errorf("s1.FetchOK = %d, want 1 (snapshot should be frozen)", s1.FetchOK)
	}
	if s1.BlobWriteSuccess != 1 {
		t.Errorf("s1.BlobWriteSuccess = %d, want 1 (snapshot should be frozen)", s1.BlobWriteSuccess)
	}

	s2 := c.Snapshot()
	if s2.FetchOK != 2 {
		t.Errorf("s2.FetchOK = %d, want 2", s2.FetchOK)
	}
	if s2.BlobWriteSuccess != 3 {
		t.Errorf("s2.BlobWriteSuccess = %d, want 3", s2.BlobWriteSuccess)
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	c.IncFetchOK()
	c.IncFetchTransientHTTP()
	c.IncFetchBrokenSession()
	c.IncFetchTimeout()
	c.IncFetchOther()
	c.IncCacheHit()
	c.IncSessionStarted()
	c.IncSessionRestarted()
	c.IncSessionBroken()
	c.IncBlobWriteSuccess()
	c.IncBlobWriteFailure()
	c.AddEventsIntegrated(1)
	c.AddRowsRegistered(1)
	c.AddRowsStatusChanged(1)

	s := c.Snapshot()
	if s.FetchOK != 0 {
		t.Errorf("nil collector snapshot FetchOK = %d, want 0", s.FetchOK)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("example_handler", "run-001")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncFetchOK()
				c.IncBlobWriteSuccess()
				c.AddEventsIntegrated(1)
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.FetchOK != want {
		t.Errorf("FetchOK = %d, want %d", s.FetchOK, want)
	}
	if s.BlobWriteSuccess != want {
		t.Errorf("BlobWriteSuccess = %d, want %d", s.BlobWriteSuccess, want)
	}
	if s.EventsIntegrated != want {
		t.Errorf("EventsIntegrated = %d, want %d", s.EventsIntegrated, want)
	}
}

func TestCollector_ZeroValueSnapshot(t *testing.T) {
	c := NewCollector("example_handler", "run-001")
	s := c.Snapshot()

	if s.FetchOK != 0 || s.FetchTransientHTTP != 0 || s.FetchBrokenSession != 0 {
		t.Error("fresh collector should have zero fetch counters")
	}
	if s.BlobWriteSuccess != 0 || s.BlobWriteFailure != 0 {
		t.Error("fresh collector should have zero blob counters")
	}
	if s.EventsIntegrated != 0 || s.RowsRegistered != 0 || s.RowsStatusChanged != 0 {
		t.Error("fresh collector should have zero queue counters")
	}
}
