package transport

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// Delivery is one recorded DeliverArtifact call.
type Delivery struct {
	UserID  int64
	Name    string
	Caption string
	Data    []byte
}

// Sent is one recorded SendText call.
type Sent struct {
	UserID int64
	Message
}

// Recorder is an in-memory Transport for tests. Delivered files are read
// at call time because callers delete them right after.
type Recorder struct {
	// FailDelivery, if set, is consulted before each delivery (1-based).
	FailDelivery func(n int) error
	// OnDeliver, if set, runs after a delivery is recorded.
	OnDeliver func(d Delivery)

	mu         sync.Mutex
	sent       []Sent
	deliveries []Delivery
	attempts   int
}

// SendText implements Transport.
func (r *Recorder) SendText(_ context.Context, userID int64, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{UserID: userID, Message: msg})
	return nil
}

// DeliverArtifact implements Transport.
func (r *Recorder) DeliverArtifact(_ context.Context, userID int64, path, caption string) error {
	r.mu.Lock()
	r.attempts++
	n := r.attempts
	r.mu.Unlock()

	if r.FailDelivery != nil {
		if err := r.FailDelivery(n); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	d := Delivery{UserID: userID, Name: filepath.Base(path), Caption: caption, Data: data}

	r.mu.Lock()
	r.deliveries = append(r.deliveries, d)
	r.mu.Unlock()

	if r.OnDeliver != nil {
		r.OnDeliver(d)
	}
	return nil
}

// Texts returns the recorded messages.
func (r *Recorder) Texts() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Deliveries returns the recorded deliveries in call order.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// Verify Recorder implements Transport.
var _ Transport = (*Recorder)(nil)
