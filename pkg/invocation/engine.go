// Package invocation implements the Invocation Engine: the state machine
// that takes a (ConfiguredAddon, operation name, arguments) triple through
// capability/authorization checks, dibs acquisition, dispatch across the
// three execution modes, and result/error recording.
package invocation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cos/gravyvalet/pkg/addon"
	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/logger"
	"github.com/cos/gravyvalet/pkg/oauthflow"
	"github.com/cos/gravyvalet/pkg/queue"
	"github.com/cos/gravyvalet/pkg/storage"
)

// Authorizer is the capability/policy check the engine consults before
// dispatch. pkg/authz's Cedar-backed authorizer satisfies this.
type Authorizer interface {
	Authorize(ctx context.Context, addon domain.ConfiguredAddon, operation domain.OperationDeclaration) error
}

// Engine drives invocations end to end.
type Engine struct {
	invocations *storage.InvocationRepository
	factory     *addon.Factory
	authorizer  Authorizer
	queue       *queue.Queue
	workerID    string
	dibsLease   time.Duration
	coordinator *oauthflow.Coordinator
	accounts    *storage.AccountRepository
	ring        *crypto.Ring
}

// New builds an Engine. workerID identifies this process as a dibs
// holder; it should be stable per-process but unique across a deployment
// (e.g. hostname:pid). coordinator, accounts, and ring drive the
// refresh-before-dispatch step: before building a handler's Imp, the
// engine refreshes an expiring OAuth2 credential through coordinator
// (coalesced via its singleflight.Group) and persists the result through
// accounts/ring, the same as the Waterbutler credential-lookup surface.
func New(invocations *storage.InvocationRepository, factory *addon.Factory, authorizer Authorizer, q *queue.Queue, workerID string, coordinator *oauthflow.Coordinator, accounts *storage.AccountRepository, ring *crypto.Ring) *Engine {
	return &Engine{
		invocations: invocations,
		factory:     factory,
		authorizer:  authorizer,
		queue:       q,
		workerID:    workerID,
		dibsLease:   2 * time.Minute,
		coordinator: coordinator,
		accounts:    accounts,
		ring:        ring,
	}
}

// Outcome is what Invoke (or a deferred worker) returns once an
// invocation reaches a terminal or redirect state.
type Outcome struct {
	InvocationID string
	Status       domain.InvocationStatus
	Result       any
	RedirectURL  string
}

// Invoke runs operationName on cfgAddon with args, creating and persisting
// an OperationInvocation record and driving it through the state machine.
// For ModeImmediate operations this returns once the operation completes;
// for ModeDeferred it returns immediately after enqueueing, with
// Status == StatusStarting; ModeRedirect runs through the same dibs
// lease (IN_PROGRESS) as ModeImmediate and, once the record is SUCCESS,
// returns the URL to redirect the caller to in Outcome.RedirectURL.
func (e *Engine) Invoke(ctx context.Context, cfgAddon domain.ConfiguredAddon, service domain.ExternalService, serviceBaseURL string, creds credentials.Credentials, operationName string, args map[string]any) (Outcome, error) {
	decl, err := addon.OperationDeclarationFor(service.AddonImpKey, operationName)
	if err != nil {
		return Outcome{}, errors.NewInvalidArguments("no such operation", err)
	}
	if err := e.authorizer.Authorize(ctx, cfgAddon, decl); err != nil {
		return Outcome{}, err
	}
	args, err = addon.BindArguments(service.AddonImpKey, operationName, args)
	if err != nil {
		return Outcome{}, err
	}

	now := time.Now().UTC()
	inv := domain.OperationInvocation{
		ID:            uuid.NewString(),
		AddonID:       cfgAddon.ID,
		OperationName: operationName,
		Arguments:     args,
		Status:        domain.StatusStarting,
		CreatedAtUTC:  now,
		UpdatedAtUTC:  now,
	}
	if err := e.invocations.Create(ctx, inv); err != nil {
		return Outcome{}, err
	}

	switch decl.Mode {
	case domain.ModeRedirect:
		return e.dispatchRedirect(ctx, inv, cfgAddon, service, serviceBaseURL, creds, decl)
	case domain.ModeDeferred:
		return e.dispatchDeferred(ctx, inv)
	default:
		return e.dispatchImmediate(ctx, inv, cfgAddon, service, serviceBaseURL, creds, decl)
	}
}

func (e *Engine) dispatchDeferred(ctx context.Context, inv domain.OperationInvocation) (Outcome, error) {
	if err := e.queue.Enqueue(ctx, inv.ID); err != nil {
		return Outcome{}, err
	}
	return Outcome{InvocationID: inv.ID, Status: domain.StatusStarting}, nil
}

// dispatchRedirect runs a redirect-mode operation synchronously, the same
// as immediate, but shapes its result as a {url} the caller 302s to
// rather than data the caller consumes directly.
func (e *Engine) dispatchRedirect(ctx context.Context, inv domain.OperationInvocation, cfgAddon domain.ConfiguredAddon, service domain.ExternalService, serviceBaseURL string, creds credentials.Credentials, decl domain.OperationDeclaration) (Outcome, error) {
	result, outcome, done, err := e.runLeased(ctx, inv, cfgAddon, service, serviceBaseURL, creds, decl)
	if done {
		return outcome, err
	}
	completedAt := time.Now().UTC()

	url, ok := result.(string)
	if !ok {
		wrapErr := errors.NewUnexpectedAddonError("redirect-mode operation did not return a url string", nil)
		e.invocations.Complete(ctx, inv.ID, domain.StatusProblem, nil, string(errors.UnexpectedAddonError), wrapErr.Error(), completedAt)
		return Outcome{InvocationID: inv.ID, Status: domain.StatusProblem}, wrapErr
	}

	if err := e.invocations.Complete(ctx, inv.ID, domain.StatusSuccess, map[string]any{"url": url}, "", "", completedAt); err != nil {
		return Outcome{}, err
	}
	return Outcome{InvocationID: inv.ID, Status: domain.StatusSuccess, RedirectURL: url, Result: map[string]any{"url": url}}, nil
}

func (e *Engine) dispatchImmediate(ctx context.Context, inv domain.OperationInvocation, cfgAddon domain.ConfiguredAddon, service domain.ExternalService, serviceBaseURL string, creds credentials.Credentials, decl domain.OperationDeclaration) (Outcome, error) {
	result, outcome, done, err := e.runLeased(ctx, inv, cfgAddon, service, serviceBaseURL, creds, decl)
	if done {
		return outcome, err
	}
	completedAt := time.Now().UTC()

	if err := e.invocations.Complete(ctx, inv.ID, domain.StatusSuccess, result, "", "", completedAt); err != nil {
		return Outcome{}, err
	}
	return Outcome{InvocationID: inv.ID, Status: domain.StatusSuccess, Result: result}, nil
}

// runLeased acquires the invocation's dibs lease and runs decl's handler,
// recording a PROBLEM terminal state itself on failure. done reports
// whether the caller should return outcome/err as-is (lease denied, or
// the handler errored); when done is false, result holds the handler's
// raw return value for the caller to shape into a terminal SUCCESS.
func (e *Engine) runLeased(ctx context.Context, inv domain.OperationInvocation, cfgAddon domain.ConfiguredAddon, service domain.ExternalService, serviceBaseURL string, creds credentials.Credentials, decl domain.OperationDeclaration) (result any, outcome Outcome, done bool, err error) {
	now := time.Now().UTC()
	acquired, err := e.invocations.AcquireDibs(ctx, inv.ID, e.workerID, now.Add(e.dibsLease), now)
	if err != nil {
		return nil, Outcome{}, true, err
	}
	if !acquired {
		return nil, Outcome{InvocationID: inv.ID, Status: domain.StatusDibsDenied}, true, errors.NewDibsDenied("another worker already holds this invocation", nil)
	}

	result, runErr := e.run(ctx, cfgAddon, service, serviceBaseURL, creds, decl, inv.Arguments)
	if runErr != nil {
		completedAt := time.Now().UTC()
		errKind := "unexpected_addon_error"
		if gvErr, ok := asGVError(runErr); ok {
			errKind = string(gvErr.Type)
		}
		if err := e.invocations.Complete(ctx, inv.ID, domain.StatusProblem, nil, errKind, runErr.Error(), completedAt); err != nil {
			logger.Errorw("failed to record invocation failure", "invocation_id", inv.ID, "err", err)
		}
		return nil, Outcome{InvocationID: inv.ID, Status: domain.StatusProblem}, true, runErr
	}
	return result, Outcome{}, false, nil
}

// run refreshes creds if needed, then constructs the Imp for cfgAddon and
// invokes decl's registered Handler against args.
func (e *Engine) run(ctx context.Context, cfgAddon domain.ConfiguredAddon, service domain.ExternalService, serviceBaseURL string, creds credentials.Credentials, decl domain.OperationDeclaration, args map[string]any) (any, error) {
	creds, err := e.RefreshIfNeeded(ctx, cfgAddon, service, creds)
	if err != nil {
		return nil, err
	}
	imp, err := e.factory.Build(cfgAddon, service, serviceBaseURL, creds)
	if err != nil {
		return nil, err
	}
	handler, err := addon.OperationHandlerFor(service.AddonImpKey, decl.Name)
	if err != nil {
		return nil, errors.NewUnexpectedAddonError("operation has a declaration but no registered handler", err)
	}
	return handler(ctx, imp, args)
}

// RefreshIfNeeded refreshes an OAuth2 credential that is expired or close
// to it before dispatch, persisting the refreshed token so the next
// invocation does not need to refresh again. Concurrent invocations
// racing to refresh the same credential are coalesced by the
// Coordinator's singleflight.Group, so a burst of invocations against one
// expiring token results in exactly one upstream refresh call. A nil
// Coordinator (e.g. in tests that never exercise OAuth2) is a no-op.
func (e *Engine) RefreshIfNeeded(ctx context.Context, cfgAddon domain.ConfiguredAddon, service domain.ExternalService, creds credentials.Credentials) (credentials.Credentials, error) {
	if e.coordinator == nil {
		return creds, nil
	}
	return e.coordinator.RefreshAndPersist(ctx, e.ring, e.accounts, cfgAddon, service, creds)
}

// asGVError walks err's Unwrap chain looking for a classified *errors.Error.
func asGVError(err error) (*errors.Error, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*errors.Error); ok {
			return e, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
