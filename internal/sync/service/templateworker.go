package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/biometric"
	"github.com/harborworks/fieldsync/internal/sync/blob"
	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
	"github.com/harborworks/fieldsync/pkg/metricsx"
)

// TemplateWorker is the background loop that turns approved photo sets
// into biometric templates. Each tick drains a batch of pending records
// that have photos, encodes a template per record, and conditionally
// flips the record to enrolled. A record is only ever worked on by one
// goroutine at a time; the in-flight set guards against a slow encode
// overlapping the next tick.
type TemplateWorker struct {
	Store    store.Store
	Blobs    blob.Store
	Encoder  biometric.Encoder
	Logger   *slog.Logger
	Interval time.Duration
	Batch    int

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewTemplateWorker creates the worker. If interval is 0 or negative it
// defaults to 8 seconds; if batch is 0 or negative it defaults to 16.
func NewTemplateWorker(st store.Store, blobs blob.Store, enc biometric.Encoder, logger *slog.Logger, interval time.Duration, batch int) *TemplateWorker {
	if interval <= 0 {
		interval = 8 * time.Second
	}
	if batch <= 0 {
		batch = 16
	}

	return &TemplateWorker{
		Store:    st,
		Blobs:    blobs,
		Encoder:  enc,
		Logger:   logger,
		Interval: interval,
		Batch:    batch,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		inFlight: make(map[string]struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() to
// gracefully shut it down.
func (w *TemplateWorker) Start() {
	go w.run()
	w.Logger.Info("template worker started", "interval", w.Interval, "batch", w.Batch)
}

// Stop gracefully shuts down the worker. Blocks until any in-progress
// tick has finished.
func (w *TemplateWorker) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.Logger.Info("template worker stopped")
}

// run is the main background worker loop.
func (w *TemplateWorker) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	// Drain any backlog immediately on startup.
	w.Tick(context.Background())

	for {
		select {
		case <-ticker.C:
			w.Tick(context.Background())
		case <-w.stopCh:
			return
		}
	}
}

// Tick processes one batch of pending records. Exported so tests and
// operational tooling can drive the worker synchronously. Failures are
// isolated per record: one bad photo set never blocks the rest of the
// batch, and the failing record stays pending for the next tick.
func (w *TemplateWorker) Tick(ctx context.Context) {
	metricsx.ObserveWorkerTick()

	records, err := w.Store.EnrollmentRecords().ListPendingWithPhotos(ctx, w.Batch)
	if err != nil {
		w.Logger.Error("template worker: queue read failed", "error", err)
		return
	}

	for _, rec := range records {
		if !w.claim(rec.ID) {
			continue
		}
		if err := w.process(ctx, rec); err != nil {
			w.Logger.Error("template worker: record failed",
				"record_id", rec.ID,
				"user_id", rec.UserID,
				"error", err,
			)
		}
		w.release(rec.ID)
	}
}

// process encodes one record's photo set and flips it to enrolled.
func (w *TemplateWorker) process(ctx context.Context, rec domain.EnrollmentRecord) error {
	// 1. Pull every photo for the record out of the durable namespace.
	images := make([][]byte, 0, len(rec.PhotoRefs))
	for _, ref := range rec.PhotoRefs {
		img, err := w.readPhoto(ctx, ref)
		if err != nil {
			return fmt.Errorf("read photo %s: %w", ref, err)
		}
		images = append(images, img)
	}

	// 2. Derive the template.
	tpl, err := w.Encoder.Encode(images)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	// 3. Conditional transition: only a still-pending record is flipped.
	// Losing the race to a concurrent reset just means the new photo set
	// gets encoded on a later tick.
	err = w.Store.EnrollmentRecords().MarkEnrolled(ctx, rec.TenantID, rec.ID, tpl, biometric.Version)
	if errors.Is(err, store.ErrNotFound) {
		w.Logger.Warn("template worker: record no longer pending, skipping",
			"record_id", rec.ID,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark enrolled: %w", err)
	}

	metricsx.ObserveTemplateGenerated()
	w.Logger.Info("template generated",
		"record_id", rec.ID,
		"user_id", rec.UserID,
		"version", biometric.Version,
	)

	// 4. Best-effort summary refresh; the record row is authoritative.
	err = w.Store.Users().UpdateBiometricSummary(ctx, rec.TenantID, rec.UserID, domain.BiometricSummary{
		Status:          domain.RecordEnrolled,
		TemplateVersion: biometric.Version,
		UpdatedAt:       time.Now().UTC(),
		PhotoRef:        firstRef(rec.PhotoRefs),
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		w.Logger.Error("template worker: summary refresh failed",
			"user_id", rec.UserID,
			"error", err,
		)
	}

	return nil
}

func (w *TemplateWorker) readPhoto(ctx context.Context, ref string) ([]byte, error) {
	rc, _, err := w.Blobs.Open(ctx, blob.NamespaceBiometrics, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// claim reserves a record id for this tick; returns false when another
// goroutine already holds it.
func (w *TemplateWorker) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, held := w.inFlight[id]; held {
		return false
	}
	w.inFlight[id] = struct{}{}
	return true
}

func (w *TemplateWorker) release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, id)
}
