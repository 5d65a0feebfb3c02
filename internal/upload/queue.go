// Package upload is the client-side upload queue: it admits local files,
// drives them through the API concurrently, and tracks each one's progress
// until it succeeds (and is cleared after a short linger) or fails (and
// stays until dismissed).
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/cloudvault/internal/api"
	"github.com/tonimelisma/cloudvault/internal/events"
)

// Queue defaults.
const (
	DefaultParallel      = 3
	DefaultSuccessLinger = 3 * time.Second
)

// Uploader sends one file. *api.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, req api.UploadRequest, progress api.ProgressFunc) (*api.UploadResult, error)
}

// SpaceChecker answers the batch quota question. *quota.Tracker implements it.
type SpaceChecker interface {
	HasSpaceFor(bytes int64) bool
	Shortfall(bytes int64) string
}

// Observer receives upload outcomes for metrics.
type Observer interface {
	AdmissionRejected(reason string)
	UploadFinished(status string, bytes int64, elapsed time.Duration)
}

// Options tunes a Queue. Zero values select the defaults.
type Options struct {
	MaxFileSize   int64
	MaxBatchFiles int
	AllowedTypes  []string
	Parallel      int
	SuccessLinger time.Duration

	// OnSuccess runs after each successful upload, outside the queue lock.
	// Callers use it to refresh the folder listing and quota display.
	OnSuccess func(Item)

	Observer Observer

	// afterFunc schedules linger removal. Tests replace it.
	afterFunc func(time.Duration, func()) *time.Timer
}

func (o *Options) applyDefaults() {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}

	if o.MaxBatchFiles <= 0 {
		o.MaxBatchFiles = DefaultMaxBatchFiles
	}

	if o.Parallel <= 0 {
		o.Parallel = DefaultParallel
	}

	if o.SuccessLinger <= 0 {
		o.SuccessLinger = DefaultSuccessLinger
	}

	if o.afterFunc == nil {
		o.afterFunc = time.AfterFunc
	}
}

// entry is the queue's mutable record for one item.
type entry struct {
	item    Item
	src     Source
	claimed bool // picked up by a Run, possibly still waiting for a worker
	timer   *time.Timer
}

// Queue holds upload items in enqueue order. All methods are safe for
// concurrent use.
type Queue struct {
	uploader Uploader
	space    SpaceChecker
	opts     Options
	logger   *slog.Logger
	events   *events.Broadcaster[Event]

	mu      sync.Mutex
	order   []string
	entries map[string]*entry

	runs sync.WaitGroup
}

// NewQueue creates a queue that uploads through uploader. space may be nil,
// in which case the batch quota check is skipped.
func NewQueue(uploader Uploader, space SpaceChecker, opts Options, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	opts.applyDefaults()

	q := &Queue{
		uploader: uploader,
		space:    space,
		opts:     opts,
		logger:   logger,
		entries:  make(map[string]*entry),
	}

	q.events = events.NewBroadcaster[Event](func() {
		logger.Debug("upload event dropped for slow subscriber")
	})

	return q
}

// AddFiles admits files into the queue as pending items targeting
// targetPath. Each file is checked on its own; the accepted subset is then
// checked against the remaining quota as a whole, and a shortfall rejects
// the entire batch without enqueuing anything.
func (q *Queue) AddFiles(files []Source, targetPath string) AdmissionReport {
	var (
		report   AdmissionReport
		accepted []*entry
		total    int64
	)

	now := time.Now()

	for i, src := range files {
		name, rej := q.admit(src, i)
		if rej != nil {
			q.logger.Info("upload rejected",
				slog.String("name", src.Name),
				slog.String("reason", rej.Reason),
			)
			q.observeRejection(rej.Err)
			report.Rejected = append(report.Rejected, *rej)

			continue
		}

		accepted = append(accepted, &entry{
			src: src,
			item: Item{
				ID:         uuid.NewString(),
				Name:       name,
				Size:       src.Size,
				TargetPath: targetPath,
				Status:     Pending,
				AddedAt:    now,
			},
		})
		total += src.Size
	}

	if len(accepted) == 0 {
		return report
	}

	if q.space != nil && !q.space.HasSpaceFor(total) {
		msg := q.space.Shortfall(total)
		q.logger.Warn("upload batch exceeds remaining quota",
			slog.Int("files", len(accepted)),
			slog.Int64("bytes", total),
		)
		q.observeRejection(ErrQuotaShortfall)
		report.BatchErr = fmt.Errorf("%w: %s", ErrQuotaShortfall, msg)

		return report
	}

	q.mu.Lock()
	for _, e := range accepted {
		q.entries[e.item.ID] = e
		q.order = append(q.order, e.item.ID)
		report.Accepted = append(report.Accepted, e.item)
	}
	q.mu.Unlock()

	for _, it := range report.Accepted {
		q.events.Publish(Event{Kind: EventAdded, Item: it})
	}

	q.logger.Debug("upload batch admitted",
		slog.Int("accepted", len(report.Accepted)),
		slog.Int("rejected", len(report.Rejected)),
		slog.Int64("bytes", total),
	)

	return report
}

// Submit admits files and starts uploading them in the background.
func (q *Queue) Submit(ctx context.Context, files []Source, targetPath string) AdmissionReport {
	report := q.AddFiles(files, targetPath)
	if len(report.Accepted) > 0 {
		q.Start(ctx)
	}

	return report
}

// Start uploads every unclaimed pending item in the background. Use Wait
// to block until it finishes.
func (q *Queue) Start(ctx context.Context) {
	ids := q.claimPending()
	if len(ids) == 0 {
		return
	}

	q.runs.Add(1)

	go func() {
		defer q.runs.Done()
		q.drive(ctx, ids)
	}()
}

// Run uploads every unclaimed pending item and blocks until all of them
// reach a terminal state.
func (q *Queue) Run(ctx context.Context) Summary {
	ids := q.claimPending()
	if len(ids) == 0 {
		return Summary{}
	}

	q.runs.Add(1)
	defer q.runs.Done()

	return q.drive(ctx, ids)
}

// Wait blocks until every started run has finished.
func (q *Queue) Wait() {
	q.runs.Wait()
}

func (q *Queue) claimPending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string

	for _, id := range q.order {
		e := q.entries[id]
		if e.item.Status == Pending && !e.claimed {
			e.claimed = true
			ids = append(ids, id)
		}
	}

	return ids
}

// drive uploads ids with at most Parallel in flight. Items fail
// independently; one failure never stops the others.
func (q *Queue) drive(ctx context.Context, ids []string) Summary {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		summary Summary
	)

	g.SetLimit(q.opts.Parallel)

	for _, id := range ids {
		g.Go(func() error {
			ok, ran := q.uploadOne(ctx, id)
			if !ran {
				return nil
			}

			mu.Lock()
			if ok {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	q.logger.Info("upload run finished",
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
	)

	return summary
}

// uploadOne runs a single item. ran is false when the item was removed
// before a worker reached it.
func (q *Queue) uploadOne(ctx context.Context, id string) (ok, ran bool) {
	src, item, found := q.begin(id)
	if !found {
		return false, false
	}

	start := time.Now()

	if err := ctx.Err(); err != nil {
		q.fail(id, err)
		q.observeFinished(Error, item.Size, time.Since(start))

		return false, true
	}

	res, err := q.uploader.Upload(ctx, api.UploadRequest{
		Name:       item.Name,
		Size:       item.Size,
		FolderPath: item.TargetPath,
		Open:       src.Open,
	}, func(sent, total int64) {
		q.setProgress(id, sent, total)
	})
	if err != nil {
		q.logger.Warn("upload failed",
			slog.String("name", item.Name),
			slog.String("error", err.Error()),
		)
		q.fail(id, err)
		q.observeFinished(Error, item.Size, time.Since(start))

		return false, true
	}

	key := ""
	if res != nil {
		key = res.Key
	}

	done, stillQueued := q.succeed(id, key)
	q.observeFinished(Success, item.Size, time.Since(start))

	q.logger.Info("upload complete",
		slog.String("name", item.Name),
		slog.Int64("size", item.Size),
		slog.Duration("elapsed", time.Since(start)),
	)

	if stillQueued && q.opts.OnSuccess != nil {
		q.opts.OnSuccess(done)
	}

	return true, true
}

// begin moves a claimed item to Uploading.
func (q *Queue) begin(id string) (Source, Item, bool) {
	q.mu.Lock()

	e, ok := q.entries[id]
	if !ok || e.item.Status != Pending {
		q.mu.Unlock()
		return Source{}, Item{}, false
	}

	e.item.Status = Uploading
	e.item.Progress = 0
	snap := e.item
	q.mu.Unlock()

	q.events.Publish(Event{Kind: EventStatus, Item: snap})

	return e.src, snap, true
}

// setProgress records transfer progress. It never moves backwards and
// stops at 99 so that 100 always means success.
func (q *Queue) setProgress(id string, sent, total int64) {
	if total <= 0 {
		return
	}

	pct := min(int(sent*100/total), 99)

	q.mu.Lock()

	e, ok := q.entries[id]
	if !ok || e.item.Status != Uploading || pct <= e.item.Progress {
		q.mu.Unlock()
		return
	}

	e.item.Progress = pct
	snap := e.item
	q.mu.Unlock()

	q.events.Publish(Event{Kind: EventProgress, Item: snap})
}

func (q *Queue) succeed(id, key string) (Item, bool) {
	q.mu.Lock()

	e, ok := q.entries[id]
	if !ok || e.item.Status != Uploading {
		q.mu.Unlock()
		return Item{}, false
	}

	e.item.Status = Success
	e.item.Progress = 100
	e.item.Key = key
	e.timer = q.opts.afterFunc(q.opts.SuccessLinger, func() {
		q.expire(id)
	})
	snap := e.item
	q.mu.Unlock()

	q.events.Publish(Event{Kind: EventStatus, Item: snap})

	return snap, true
}

func (q *Queue) fail(id string, err error) {
	q.mu.Lock()

	e, ok := q.entries[id]
	if !ok || e.item.Status != Uploading {
		q.mu.Unlock()
		return
	}

	e.item.Status = Error
	e.item.Error = describe(err)
	snap := e.item
	q.mu.Unlock()

	q.events.Publish(Event{Kind: EventStatus, Item: snap})
}

// expire drops a success item once its linger has elapsed.
func (q *Queue) expire(id string) {
	q.mu.Lock()

	e, ok := q.entries[id]
	if !ok || e.item.Status != Success {
		q.mu.Unlock()
		return
	}

	snap := q.removeLocked(id)
	q.mu.Unlock()

	q.events.Publish(Event{Kind: EventRemoved, Item: snap})
}

// Remove drops a pending or failed item. Items being uploaded or already
// uploaded cannot be removed.
func (q *Queue) Remove(id string) error {
	return q.removeIf(id, func(s Status) bool { return s == Pending || s == Error })
}

// Dismiss drops a failed item.
func (q *Queue) Dismiss(id string) error {
	return q.removeIf(id, func(s Status) bool { return s == Error })
}

// DismissFailed drops every failed item and returns how many were removed.
func (q *Queue) DismissFailed() int {
	q.mu.Lock()

	var removed []Item

	for _, id := range slices.Clone(q.order) {
		if q.entries[id].item.Status == Error {
			removed = append(removed, q.removeLocked(id))
		}
	}
	q.mu.Unlock()

	for _, it := range removed {
		q.events.Publish(Event{Kind: EventRemoved, Item: it})
	}

	return len(removed)
}

func (q *Queue) removeIf(id string, allowed func(Status) bool) error {
	q.mu.Lock()

	e, ok := q.entries[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}

	if !allowed(e.item.Status) {
		status := e.item.Status
		q.mu.Unlock()

		return fmt.Errorf("%w: %s is %s", ErrItemNotRemovable, id, status)
	}

	snap := q.removeLocked(id)
	q.mu.Unlock()

	q.events.Publish(Event{Kind: EventRemoved, Item: snap})

	return nil
}

// removeLocked deletes id. Caller holds q.mu and has checked id exists.
func (q *Queue) removeLocked(id string) Item {
	e := q.entries[id]
	if e.timer != nil {
		e.timer.Stop()
	}

	delete(q.entries, id)
	q.order = slices.DeleteFunc(q.order, func(v string) bool { return v == id })

	return e.item
}

// Get returns the current snapshot of one item.
func (q *Queue) Get(id string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return Item{}, false
	}

	return e.item, true
}

// Snapshot returns all items in enqueue order.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.entries[id].item)
	}

	return out
}

// Summary counts the items currently visible in each terminal state.
func (q *Queue) Summary() Summary {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Summary

	for _, e := range q.entries {
		switch e.item.Status {
		case Success:
			s.Succeeded++
		case Error:
			s.Failed++
		}
	}

	return s
}

// Subscribe returns a channel of item events. Slow subscribers miss events
// rather than blocking uploads.
func (q *Queue) Subscribe() <-chan Event {
	return q.events.Subscribe()
}

// Unsubscribe stops delivery to ch and closes it.
func (q *Queue) Unsubscribe(ch <-chan Event) {
	q.events.Unsubscribe(ch)
}

// Close stops pending linger timers. Items stay readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
}

func (q *Queue) observeRejection(err error) {
	if q.opts.Observer == nil {
		return
	}

	q.opts.Observer.AdmissionRejected(rejectionReason(err))
}

func (q *Queue) observeFinished(status Status, bytes int64, elapsed time.Duration) {
	if q.opts.Observer == nil {
		return
	}

	q.opts.Observer.UploadFinished(status.String(), bytes, elapsed)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return "size"
	case errors.Is(err, ErrTooManyFiles):
		return "count"
	case errors.Is(err, ErrTypeNotAllowed):
		return "type"
	case errors.Is(err, ErrQuotaShortfall):
		return "quota"
	default:
		return "invalid"
	}
}

// describe turns an upload failure into the message shown on the item.
// A 413 gets its own wording because the server uses it both for oversized
// files and for exhausted quota.
func describe(err error) string {
	switch {
	case errors.Is(err, api.ErrPayloadTooLarge):
		return "File too large or insufficient storage quota"
	case errors.Is(err, context.Canceled):
		return "Upload cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Upload timed out"
	}

	return api.Describe(err)
}
