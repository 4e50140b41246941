package invocation

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cos/gravyvalet/pkg/addon"
	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/logger"
	"github.com/cos/gravyvalet/pkg/queue"
	"github.com/cos/gravyvalet/pkg/storage"
)

// pollTimeout is how long a single BRPOP blocks waiting for a deferred
// invocation before looping to re-check ctx.
const pollTimeout = 5 * time.Second

// Worker drains the deferred-invocation queue with a bounded pool of
// goroutines, reconstructing each invocation's ConfiguredAddon, Service,
// and decrypted Credentials before running it through the same
// dispatchImmediate path Invoke uses for non-deferred operations.
type Worker struct {
	engine      *Engine
	queue       *queue.Queue
	invocations *storage.InvocationRepository
	addons      *storage.AddonRepository
	services    *storage.ServiceRepository
	ring        *crypto.Ring
	concurrency int
}

// NewWorker builds a Worker pool of concurrency goroutines, all reporting
// dibs under engine's single workerID; the dibs CAS on the invocation row
// is what keeps two of them from running the same invocation.
func NewWorker(
	engine *Engine,
	q *queue.Queue,
	invocations *storage.InvocationRepository,
	addons *storage.AddonRepository,
	services *storage.ServiceRepository,
	ring *crypto.Ring,
	concurrency int,
) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{engine: engine, queue: q, invocations: invocations, addons: addons, services: services, ring: ring, concurrency: concurrency}
}

// Run blocks draining the queue until ctx is canceled, at which point it
// waits for in-flight invocations to finish before returning.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		invocationID, ok, err := w.queue.Dequeue(ctx, pollTimeout)
		if err != nil {
			logger.Errorw("dequeueing deferred invocation", "err", err)
			continue
		}
		if !ok {
			continue
		}

		if err := w.process(ctx, invocationID); err != nil {
			logger.Errorw("processing deferred invocation", "invocation_id", invocationID, "err", err)
		}
	}
}

func (w *Worker) process(ctx context.Context, invocationID string) error {
	inv, err := w.invocations.Get(ctx, invocationID)
	if err != nil {
		return err
	}
	cfgAddon, err := w.addons.Get(ctx, inv.AddonID)
	if err != nil {
		return err
	}
	service, err := w.services.Get(ctx, cfgAddon.Account.ServiceID)
	if err != nil {
		return err
	}
	creds, err := credentials.Unseal(w.ring, credentials.Kind(cfgAddon.Account.Credentials.Kind), cfgAddon.Account.Credentials.Sealed)
	if err != nil {
		return err
	}
	decl, err := addon.OperationDeclarationFor(service.AddonImpKey, inv.OperationName)
	if err != nil {
		return err
	}

	// run (called from dispatchImmediate via runLeased) refreshes creds
	// itself before building the Imp, the same as the synchronous Invoke
	// path; deferred invocations don't need a separate refresh here.
	_, err = w.engine.dispatchImmediate(ctx, inv, cfgAddon, service, service.BaseURL, creds, decl)
	return err
}
