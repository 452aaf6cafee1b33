package metrics

import (
	"sync"
	"testing"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("fs", "webhook")

	c.IncSessionStarted()
	c.IncSessionStarted()
	c.IncSessionCompleted()
	c.IncSessionFailed("compression_error")
	c.IncSessionFailed("compression_error")
	c.IncSessionFailed("delivery_error")
	c.IncSessionCancelled()
	c.AddSessionsExpired(3)
	c.IncSessionSuperseded()
	c.RecordFileStaged(10)
	c.RecordFileStaged(5)
	c.RecordArchiveBuilt(12)
	c.IncPartDelivered()
	c.IncPartDelivered()
	c.IncUnauthorized()
	c.IncLimitRejected()
	c.IncInvalidReply()
	c.IncMirrorWrite(true)
	c.IncMirrorWrite(false)
	c.IncNotify(true)

	s := c.Snapshot()

	checks := []struct {
		name      string
		got, want int64
	}{
		{"SessionsStarted", s.SessionsStarted, 2},
		{"SessionsCompleted", s.SessionsCompleted, 1},
		{"SessionsFailed", s.SessionsFailed, 3},
		{"SessionsCancelled", s.SessionsCancelled, 1},
		{"SessionsExpired", s.SessionsExpired, 3},
		{"SessionsSuperseded", s.SessionsSuperseded, 1},
		{"FilesStaged", s.FilesStaged, 2},
		{"BytesStaged", s.BytesStaged, 15},
		{"ArchivesBuilt", s.ArchivesBuilt, 1},
		{"ArchiveBytes", s.ArchiveBytes, 12},
		{"PartsDelivered", s.PartsDelivered, 2},
		{"Unauthorized", s.Unauthorized, 1},
		{"LimitRejected", s.LimitRejected, 1},
		{"InvalidReplies", s.InvalidReplies, 1},
		{"MirrorWriteSuccess", s.MirrorWriteSuccess, 1},
		{"MirrorWriteFailure", s.MirrorWriteFailure, 1},
		{"NotifySuccess", s.NotifySuccess, 1},
		{"NotifyFailure", s.NotifyFailure, 0},
		{"FailedByStatus[compression_error]", s.FailedByStatus["compression_error"], 2},
		{"FailedByStatus[delivery_error]", s.FailedByStatus["delivery_error"], 1},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, tc.got, tc.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	s := NewCollector("s3", "redis").Snapshot()
	if s.MirrorBackend != "s3" {
		t.Errorf("MirrorBackend = %q, want %q", s.MirrorBackend, "s3")
	}
	if s.Adapter != "redis" {
		t.Errorf("Adapter = %q, want %q", s.Adapter, "redis")
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("", "")
	c.IncSessionStarted()
	c.IncSessionFailed("split_error")

	s1 := c.Snapshot()

	c.IncSessionCompleted()
	c.IncSessionFailed("split_error")
	s1.FailedByStatus["injected"] = 1

	if s1.SessionsCompleted != 0 {
		t.Errorf("s1.SessionsCompleted = %d, want 0 (snapshot should be frozen)", s1.SessionsCompleted)
	}
	if s1.FailedByStatus["split_error"] != 1 {
		t.Errorf("s1.FailedByStatus[split_error] = %d, want 1", s1.FailedByStatus["split_error"])
	}

	s2 := c.Snapshot()
	if s2.SessionsCompleted != 1 {
		t.Errorf("s2.SessionsCompleted = %d, want 1", s2.SessionsCompleted)
	}
	if s2.FailedByStatus["split_error"] != 2 {
		t.Errorf("s2.FailedByStatus[split_error] = %d, want 2", s2.FailedByStatus["split_error"])
	}
	if _, exists := s2.FailedByStatus["injected"]; exists {
		t.Error("collector should be isolated from snapshot mutation")
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.IncSessionStarted()
	c.IncSessionCompleted()
	c.IncSessionFailed("compression_error")
	c.IncSessionCancelled()
	c.AddSessionsExpired(1)
	c.IncSessionSuperseded()
	c.RecordFileStaged(1)
	c.RecordArchiveBuilt(1)
	c.IncPartDelivered()
	c.IncUnauthorized()
	c.IncLimitRejected()
	c.IncInvalidReply()
	c.IncMirrorWrite(true)
	c.IncNotify(false)

	s := c.Snapshot()
	if s.SessionsStarted != 0 {
		t.Errorf("nil collector snapshot SessionsStarted = %d, want 0", s.SessionsStarted)
	}
	if s.FailedByStatus != nil {
		t.Errorf("nil collector snapshot FailedByStatus should be nil, got %v", s.FailedByStatus)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("", "")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncSessionStarted()
				c.RecordFileStaged(2)
				c.IncSessionFailed("delivery_error")
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.SessionsStarted != want {
		t.Errorf("SessionsStarted = %d, want %d", s.SessionsStarted, want)
	}
	if s.BytesStaged != 2*want {
		t.Errorf("BytesStaged = %d, want %d", s.BytesStaged, 2*want)
	}
	if s.FailedByStatus["delivery_error"] != want {
		t.Errorf("FailedByStatus[delivery_error] = %d, want %d", s.FailedByStatus["delivery_error"], want)
	}
}

func TestSnapshot_Fields(t *testing.T) {
	c := NewCollector("fs", "")
	c.IncPartDelivered()
	f := c.Snapshot().Fields()
	if f["parts_delivered"] != int64(1) {
		t.Errorf("parts_delivered = %v, want 1", f["parts_delivered"])
	}
	if f["mirror_backend"] != "fs" {
		t.Errorf("mirror_backend = %v", f["mirror_backend"])
	}
}
