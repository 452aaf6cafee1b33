// Package metrics provides in-process counters for the bot's session pipeline.
//
// The Collector accumulates counters for the lifetime of the process and is
// logged on shutdown. It is a leaf package with no internal dependencies:
// outcome statuses arrive as plain strings.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted    int64
	SessionsCompleted  int64
	SessionsFailed     int64
	SessionsCancelled  int64
	SessionsExpired    int64
	SessionsSuperseded int64
	FailedByStatus     map[string]int64

	// Staging
	FilesStaged int64
	BytesStaged int64

	// Archive and delivery
	ArchivesBuilt  int64
	ArchiveBytes   int64
	PartsDelivered int64

	// Rejections
	Unauthorized   int64
	LimitRejected  int64
	InvalidReplies int64

	// Side channels
	MirrorWriteSuccess int64
	MirrorWriteFailure int64
	NotifySuccess      int64
	NotifyFailure      int64

	// Dimensions (informational, set at construction)
	MirrorBackend string
	Adapter       string
}

// Collector accumulates counters.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	sessionsStarted    int64
	sessionsCompleted  int64
	sessionsFailed     int64
	sessionsCancelled  int64
	sessionsExpired    int64
	sessionsSuperseded int64
	failedByStatus     map[string]int64

	filesStaged int64
	bytesStaged int64

	archivesBuilt  int64
	archiveBytes   int64
	partsDelivered int64

	unauthorized   int64
	limitRejected  int64
	invalidReplies int64

	mirrorWriteSuccess int64
	mirrorWriteFailure int64
	notifySuccess      int64
	notifyFailure      int64

	mirrorBackend string
	adapter       string
}

// NewCollector creates a Collector with dimension labels.
// Empty labels mean the side channel is disabled.
func NewCollector(mirrorBackend, adapter string) *Collector {
	return &Collector{
		failedByStatus: make(map[string]int64),
		mirrorBackend:  mirrorBackend,
		adapter:        adapter,
	}
}

func (c *Collector) add(counter *int64, n int64) {
	c.mu.Lock()
	*counter += n
	c.mu.Unlock()
}

// --- Session lifecycle ---

// IncSessionStarted records a new session.
func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.add(&c.sessionsStarted, 1)
}

// IncSessionCompleted records a delivered archive.
func (c *Collector) IncSessionCompleted() {
	if c == nil {
		return
	}
	c.add(&c.sessionsCompleted, 1)
}

// IncSessionFailed records a finalization that ended with status
// (compression_error, split_error, delivery_error).
func (c *Collector) IncSessionFailed(status string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsFailed++
	c.failedByStatus[status]++
	c.mu.Unlock()
}

// IncSessionCancelled records a session torn down by /cancel or a restart.
func (c *Collector) IncSessionCancelled() {
	if c == nil {
		return
	}
	c.add(&c.sessionsCancelled, 1)
}

// AddSessionsExpired records sessions removed by idle expiry.
func (c *Collector) AddSessionsExpired(n int) {
	if c == nil {
		return
	}
	c.add(&c.sessionsExpired, int64(n))
}

// IncSessionSuperseded records a finalization whose output was discarded.
func (c *Collector) IncSessionSuperseded() {
	if c == nil {
		return
	}
	c.add(&c.sessionsSuperseded, 1)
}

// --- Staging ---

// RecordFileStaged records one staged upload of size bytes.
func (c *Collector) RecordFileStaged(size int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesStaged++
	c.bytesStaged += size
	c.mu.Unlock()
}

// --- Archive and delivery ---

// RecordArchiveBuilt records one built archive of size bytes.
func (c *Collector) RecordArchiveBuilt(size int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archivesBuilt++
	c.archiveBytes += size
	c.mu.Unlock()
}

// IncPartDelivered records one delivered artifact or part.
func (c *Collector) IncPartDelivered() {
	if c == nil {
		return
	}
	c.add(&c.partsDelivered, 1)
}

// --- Rejections ---

// IncUnauthorized records an event from a user not on the allow-list.
func (c *Collector) IncUnauthorized() {
	if c == nil {
		return
	}
	c.add(&c.unauthorized, 1)
}

// IncLimitRejected records an operation refused by a resource cap.
func (c *Collector) IncLimitRejected() {
	if c == nil {
		return
	}
	c.add(&c.limitRejected, 1)
}

// IncInvalidReply records a reply the state machine rejected.
func (c *Collector) IncInvalidReply() {
	if c == nil {
		return
	}
	c.add(&c.invalidReplies, 1)
}

// --- Side channels ---

// IncMirrorWrite records a mirror write outcome.
func (c *Collector) IncMirrorWrite(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.add(&c.mirrorWriteSuccess, 1)
		return
	}
	c.add(&c.mirrorWriteFailure, 1)
}

// IncNotify records a notification publish outcome.
func (c *Collector) IncNotify(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.add(&c.notifySuccess, 1)
		return
	}
	c.add(&c.notifyFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	failed := make(map[string]int64, len(c.failedByStatus))
	for k, v := range c.failedByStatus {
		failed[k] = v
	}

	return Snapshot{
		SessionsStarted:    c.sessionsStarted,
		SessionsCompleted:  c.sessionsCompleted,
		SessionsFailed:     c.sessionsFailed,
		SessionsCancelled:  c.sessionsCancelled,
		SessionsExpired:    c.sessionsExpired,
		SessionsSuperseded: c.sessionsSuperseded,
		FailedByStatus:     failed,

		FilesStaged: c.filesStaged,
		BytesStaged: c.bytesStaged,

		ArchivesBuilt:  c.archivesBuilt,
		ArchiveBytes:   c.archiveBytes,
		PartsDelivered: c.partsDelivered,

		Unauthorized:   c.unauthorized,
		LimitRejected:  c.limitRejected,
		InvalidReplies: c.invalidReplies,

		MirrorWriteSuccess: c.mirrorWriteSuccess,
		MirrorWriteFailure: c.mirrorWriteFailure,
		NotifySuccess:      c.notifySuccess,
		NotifyFailure:      c.notifyFailure,

		MirrorBackend: c.mirrorBackend,
		Adapter:       c.adapter,
	}
}

// Fields flattens the snapshot for structured logging.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"sessions_started":     s.SessionsStarted,
		"sessions_completed":   s.SessionsCompleted,
		"sessions_failed":      s.SessionsFailed,
		"sessions_cancelled":   s.SessionsCancelled,
		"sessions_expired":     s.SessionsExpired,
		"sessions_superseded":  s.SessionsSuperseded,
		"failed_by_status":     s.FailedByStatus,
		"files_staged":         s.FilesStaged,
		"bytes_staged":         s.BytesStaged,
		"archives_built":       s.ArchivesBuilt,
		"archive_bytes":        s.ArchiveBytes,
		"parts_delivered":      s.PartsDelivered,
		"unauthorized":         s.Unauthorized,
		"limit_rejected":       s.LimitRejected,
		"invalid_replies":      s.InvalidReplies,
		"mirror_write_success": s.MirrorWriteSuccess,
		"mirror_write_failure": s.MirrorWriteFailure,
		"notify_success":       s.NotifySuccess,
		"notify_failure":       s.NotifyFailure,
		"mirror_backend":       s.MirrorBackend,
		"adapter":              s.Adapter,
	}
}
