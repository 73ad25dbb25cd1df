// Package offline persists user mutations made without connectivity and
// replays them against the API once it is reachable again.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fresherjobs/internal/apiclient"
	"fresherjobs/internal/kv"
	"fresherjobs/internal/model"
)

// QueueKey is the store key holding the serialized queue.
const QueueKey = "fresherjobs_offline_actions"

// MaxRetryAttempts is the number of failed replays after which an entry is dropped.
const MaxRetryAttempts = 10

// API is the subset of the API client the queue replays against.
type API interface {
	ToggleSave(ctx context.Context, opportunityID string) (bool, error)
	TrackAction(ctx context.Context, opportunityID string, action model.ActionType) error
	RemoveAction(ctx context.Context, opportunityID string) error
}

// FlushResult summarizes one flush cycle.
type FlushResult struct {
	Synced       int  `json:"synced"`
	Failed       int  `json:"failed"`
	Remaining    int  `json:"remaining"`
	AuthRequired bool `json:"authRequired"`
}

// Queue is the persisted, owner-scoped log of pending mutations.
type Queue struct {
	store  kv.Store
	api    API
	online func(ctx context.Context) bool
	log    *slog.Logger
	now    func() time.Time

	// mu guards the stored queue and inFlight. flushMu serializes flushes.
	mu       sync.Mutex
	inFlight map[string]bool
	flushMu  sync.Mutex

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// New creates a Queue. online is consulted before every flush.
func New(store kv.Store, api API, online func(ctx context.Context) bool, log *slog.Logger) *Queue {
	return &Queue{
		store:    store,
		api:      api,
		online:   online,
		log:      log,
		now:      time.Now,
		inFlight: make(map[string]bool),
		subs:     make(map[int]func()),
	}
}

// EnqueueSaveToggle queues a save toggle. A pending toggle for the same
// owner and opportunity cancels out with the new one, unless it is being
// replayed right now.
func (q *Queue) EnqueueSaveToggle(ownerID, opportunityID string) {
	q.mu.Lock()
	actions := q.read()
	cancelled := false
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		if a.Type == model.OfflineSaveToggle && a.OpportunityID == opportunityID &&
			ownerMatches(a.OwnerID, ownerID) && !q.inFlight[a.ID] {
			actions = append(actions[:i], actions[i+1:]...)
			cancelled = true
			break
		}
	}
	if !cancelled {
		actions = append(actions, q.newAction(model.OfflineSaveToggle, ownerID, opportunityID, ""))
	}
	q.write(actions)
	q.mu.Unlock()

	q.notify()
}

// EnqueueActionTrack queues setting the tracked action, replacing any
// pending track or remove for the same slot.
func (q *Queue) EnqueueActionTrack(ownerID, opportunityID string, action model.ActionType) {
	q.replaceActionState(q.newAction(model.OfflineActionTrack, ownerID, opportunityID, action))
}

// EnqueueActionRemove queues clearing the tracked action, replacing any
// pending track or remove for the same slot.
func (q *Queue) EnqueueActionRemove(ownerID, opportunityID string) {
	q.replaceActionState(q.newAction(model.OfflineActionRemove, ownerID, opportunityID, ""))
}

func (q *Queue) replaceActionState(entry model.OfflineAction) {
	q.mu.Lock()
	actions := q.read()
	kept := actions[:0]
	for _, a := range actions {
		stateful := a.Type == model.OfflineActionTrack || a.Type == model.OfflineActionRemove
		if stateful && a.OpportunityID == entry.OpportunityID && ownerMatches(a.OwnerID, entry.OwnerID) {
			continue
		}
		kept = append(kept, a)
	}
	kept = append(kept, entry)
	q.write(kept)
	q.mu.Unlock()

	q.notify()
}

// Pending returns a copy of the queued entries visible to ownerID.
// An empty ownerID sees everything.
func (q *Queue) Pending(ownerID string) []model.OfflineAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.OfflineAction
	for _, a := range q.read() {
		if ownerMatches(a.OwnerID, ownerID) {
			out = append(out, a)
		}
	}
	return out
}

// PendingCount returns the number of queued entries visible to ownerID.
func (q *Queue) PendingCount(ownerID string) int {
	return len(q.Pending(ownerID))
}

// Subscribe registers fn to run after every change to the queue.
// The returned function removes the subscription.
func (q *Queue) Subscribe(fn func()) func() {
	q.subMu.Lock()
	defer q.subMu.Unlock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	return func() {
		q.subMu.Lock()
		defer q.subMu.Unlock()
		delete(q.subs, id)
	}
}

// Flush replays queued entries owned by ownerID in FIFO order.
// It makes no network calls when the queue is empty or the API is offline.
// An authentication failure keeps the failing entry and everything after
// it, and ends the cycle. Cancelling ctx ends the cycle the same way
// without counting a failure.
//
// Flushes run one at a time. Replays happen outside the queue lock, so
// enqueues made meanwhile are kept and merged with the outcome.
func (q *Queue) Flush(ctx context.Context, ownerID string) FlushResult {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	total := len(q.read())
	q.mu.Unlock()
	if total == 0 {
		return FlushResult{}
	}
	if !q.online(ctx) {
		return FlushResult{Remaining: total}
	}

	batch := q.claim(ownerID)
	if len(batch) == 0 {
		return FlushResult{Remaining: total}
	}
	outcomes, res := q.replayBatch(ctx, batch)

	q.mu.Lock()
	res.Remaining = q.settle(outcomes)
	q.mu.Unlock()

	q.log.Info("offline flush",
		"synced", res.Synced, "failed", res.Failed, "remaining", res.Remaining, "auth_required", res.AuthRequired)
	q.notify()
	return res
}

type outcome int

const (
	outcomeKept outcome = iota
	outcomeSynced
	outcomeRetry
	outcomeDropped
)

// claim returns the entries owned by ownerID and marks them in flight.
func (q *Queue) claim(ownerID string) []model.OfflineAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	var batch []model.OfflineAction
	for _, a := range q.read() {
		if ownerMatches(a.OwnerID, ownerID) {
			batch = append(batch, a)
			q.inFlight[a.ID] = true
		}
	}
	return batch
}

func (q *Queue) replayBatch(ctx context.Context, batch []model.OfflineAction) (map[string]outcome, FlushResult) {
	var res FlushResult
	outcomes := make(map[string]outcome, len(batch))
	for i, a := range batch {
		if ctx.Err() != nil {
			q.log.Info("offline flush interrupted", "pending", len(batch)-i)
			break
		}
		err := q.replay(ctx, a)
		if err == nil {
			outcomes[a.ID] = outcomeSynced
			res.Synced++
			continue
		}
		if ctx.Err() != nil {
			q.log.Info("offline flush interrupted", "pending", len(batch)-i)
			break
		}
		if errors.Is(err, apiclient.ErrUnauthorized) {
			q.log.Warn("offline replay halted, session expired",
				"action_id", a.ID, "pending", len(batch)-i)
			res.AuthRequired = true
			res.Failed++
			break
		}

		res.Failed++
		if a.Attempts+1 < MaxRetryAttempts {
			outcomes[a.ID] = outcomeRetry
			continue
		}
		outcomes[a.ID] = outcomeDropped
		q.log.Warn("offline action dropped after retries",
			"action_id", a.ID, "type", a.Type, "opportunity_id", a.OpportunityID, "error", err)
	}
	return outcomes, res
}

// settle applies replay outcomes to the current queue, which may have
// grown or collapsed since the batch was claimed, and returns its length.
func (q *Queue) settle(outcomes map[string]outcome) int {
	actions := q.read()
	kept := actions[:0]
	for _, a := range actions {
		switch outcomes[a.ID] {
		case outcomeSynced, outcomeDropped:
			continue
		case outcomeRetry:
			a.Attempts++
		}
		kept = append(kept, a)
	}
	q.write(kept)
	clear(q.inFlight)
	return len(kept)
}

func (q *Queue) replay(ctx context.Context, a model.OfflineAction) error {
	switch a.Type {
	case model.OfflineSaveToggle:
		_, err := q.api.ToggleSave(ctx, a.OpportunityID)
		return err
	case model.OfflineActionTrack:
		return q.api.TrackAction(ctx, a.OpportunityID, a.ActionType)
	case model.OfflineActionRemove:
		return q.api.RemoveAction(ctx, a.OpportunityID)
	default:
		return errors.New("unknown offline action type " + string(a.Type))
	}
}

func (q *Queue) newAction(kind model.OfflineActionKind, ownerID, opportunityID string, action model.ActionType) model.OfflineAction {
	return model.OfflineAction{
		ID:            uuid.NewString(),
		Type:          kind,
		OwnerID:       ownerID,
		OpportunityID: opportunityID,
		CreatedAt:     q.now().UnixMilli(),
		ActionType:    action,
	}
}

// read returns the persisted queue, or an empty one when the store is
// unavailable or holds malformed data.
func (q *Queue) read() []model.OfflineAction {
	data, err := q.store.Get(QueueKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			q.log.Warn("read offline queue", "error", err)
		}
		return nil
	}
	var actions []model.OfflineAction
	if err := json.Unmarshal(data, &actions); err != nil {
		q.log.Warn("decode offline queue", "error", err)
		return nil
	}
	return actions
}

func (q *Queue) write(actions []model.OfflineAction) {
	if actions == nil {
		actions = []model.OfflineAction{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		q.log.Warn("encode offline queue", "error", err)
		return
	}
	if err := q.store.Set(QueueKey, data); err != nil {
		q.log.Warn("write offline queue", "error", err)
	}
}

func (q *Queue) notify() {
	q.subMu.Lock()
	fns := make([]func(), 0, len(q.subs))
	for _, fn := range q.subs {
		fns = append(fns, fn)
	}
	q.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ownerMatches treats an empty owner on either side as a wildcard.
func ownerMatches(actionOwner, queryOwner string) bool {
	return actionOwner == "" || queryOwner == "" || actionOwner == queryOwner
}
