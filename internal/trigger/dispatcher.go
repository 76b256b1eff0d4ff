package trigger

import (
	"context"
	"log"
	"sync"

	"github.com/formeye/internal/delivery"
	"github.com/formeye/internal/models"
	"github.com/formeye/internal/rule"
	"github.com/google/uuid"
)

// FieldUpdateEvent is one write-path notification: a submission was
// created or edited and these fields changed.
type FieldUpdateEvent struct {
	ID              string
	FormID          string
	SubFormID       string
	ChangedFieldIDs []string
	Submission      *models.Submission
}

// Dispatcher is the event path. Events are queued onto shards keyed by
// submission id, so events for the same submission process in write
// order while distinct submissions interleave freely, and a slow
// Messenger never blocks the caller's write.
type Dispatcher struct {
	rules *rule.Store
	coord *delivery.Coordinator

	shards  []chan FieldUpdateEvent
	workers sync.WaitGroup
	senders sync.WaitGroup
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
}

func NewDispatcher(rules *rule.Store, coord *delivery.Coordinator, shards, queueSize int) *Dispatcher {
	if shards < 1 {
		shards = 1
	}
	if queueSize < 1 {
		queueSize = 256
	}
	d := &Dispatcher{rules: rules, coord: coord, done: make(chan struct{})}
	for i := 0; i < shards; i++ {
		d.shards = append(d.shards, make(chan FieldUpdateEvent, queueSize))
	}
	return d
}

func (d *Dispatcher) Start() {
	for _, ch := range d.shards {
		d.workers.Add(1)
		go func(ch chan FieldUpdateEvent) {
			defer d.workers.Done()
			for ev := range ch {
				d.handle(ev)
			}
		}(ch)
	}
}

// Stop drains the queues and waits for in-flight events. Callers stuck
// on a full shard are released first; their events are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.done)
	d.senders.Wait()
	for _, ch := range d.shards {
		close(ch)
	}
	d.workers.Wait()
}

// OnFieldUpdate is the trigger contract the write path calls. It only
// enqueues; evaluation and delivery happen on the shard workers. The
// lock covers registration only, never the shard send, so a full shard
// backpressures its own submissions without stalling the rest.
func (d *Dispatcher) OnFieldUpdate(formID, subFormID string, changedFieldIDs []string, sub *models.Submission) {
	if sub == nil {
		return
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.senders.Add(1)
	d.mu.Unlock()
	defer d.senders.Done()

	ev := FieldUpdateEvent{
		ID:              uuid.NewString(),
		FormID:          formID,
		SubFormID:       subFormID,
		ChangedFieldIDs: changedFieldIDs,
		Submission:      sub,
	}
	shard := int(sub.ID) % len(d.shards)
	select {
	case d.shards[shard] <- ev:
	case <-d.done:
	}
}

func (d *Dispatcher) handle(ev FieldUpdateEvent) {
	rules, err := d.rules.Snapshot(models.TriggerFieldUpdate)
	if err != nil {
		log.Printf("event %s: failed to load rules: %v", ev.ID, err)
		return
	}

	var batch []delivery.Candidate
	for _, r := range rules {
		if !matches(r, ev) {
			continue
		}
		if cand, fire := evaluate(r, ev.Submission); fire {
			batch = append(batch, cand)
		}
	}
	if len(batch) == 0 {
		return
	}
	d.coord.Dispatch(context.Background(), batch)
}

func matches(r models.Rule, ev FieldUpdateEvent) bool {
	if r.FormID != ev.FormID {
		return false
	}
	if r.SubFormID != "" && r.SubFormID != ev.SubFormID {
		return false
	}
	if r.TargetFieldID != "" && !containsString(ev.ChangedFieldIDs, r.TargetFieldID) {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
