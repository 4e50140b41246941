// Package authz layers Cedar policy evaluation over the capability bitset
// that is the gateway's ground truth for authorization. The bitset subset
// checks (account ⊇ addon, addon ⊇ operation.RequiredCapability) are the
// fast path and can never be widened by policy; Cedar is consulted only to
// further restrict an already-permitted operation, e.g. an operator adding
// a resource-level deny list without a code change.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cedar "github.com/cedar-policy/cedar-go"

	"github.com/cos/gravyvalet/pkg/domain"
	gverrors "github.com/cos/gravyvalet/pkg/errors"
)

// ErrNoPolicies is returned by NewAuthorizer when given an empty policy set.
var ErrNoPolicies = errors.New("authz: at least one policy is required")

// ConfigOptions configures a new Authorizer: the Cedar policy text to
// compile and, optionally, a JSON-encoded entity set (service/resource
// metadata a policy's `when` clause might reference, e.g. a resource's
// owning institution).
type ConfigOptions struct {
	Policies     []string
	EntitiesJSON string
}

// Authorizer evaluates SPEC_FULL.md's operation-level authorization
// decision: the bitset fast path, then a Cedar policy set that can only
// narrow it.
type Authorizer struct {
	policySet *cedar.PolicySet
	entities  cedar.EntityMap
}

// NewAuthorizer compiles opts.Policies into a PolicySet and decodes
// opts.EntitiesJSON into the entity map IsAuthorized evaluates against.
func NewAuthorizer(opts ConfigOptions) (*Authorizer, error) {
	if len(opts.Policies) == 0 {
		return nil, ErrNoPolicies
	}

	policySet, err := cedar.NewPolicySetFromBytes("gravyvalet.cedar", []byte(strings.Join(opts.Policies, "\n")))
	if err != nil {
		return nil, gverrors.NewInvalidArguments("compiling authorization policies", err)
	}

	entitiesJSON := opts.EntitiesJSON
	if entitiesJSON == "" {
		entitiesJSON = "[]"
	}
	var entities cedar.EntityMap
	if err := entities.UnmarshalJSON([]byte(entitiesJSON)); err != nil {
		return nil, gverrors.NewInvalidArguments("decoding authorization entities", err)
	}

	return &Authorizer{policySet: policySet, entities: entities}, nil
}

// Authorize implements invocation.Authorizer: it enforces the bitset
// ceiling first (an operation never runs if addon lacks the capability it
// requires, regardless of what policy says), then consults the Cedar
// policy set for a further-restricting Forbidden decision.
func (a *Authorizer) Authorize(ctx context.Context, cfgAddon domain.ConfiguredAddon, operation domain.OperationDeclaration) error {
	if !cfgAddon.Account.IsActive() {
		return gverrors.NewForbidden("backing account is deactivated", nil)
	}
	if !cfgAddon.Capabilities.Has(operation.RequiredCapability) {
		return gverrors.NewForbidden(
			fmt.Sprintf("configured addon lacks capability required by operation %q", operation.Name), nil)
	}

	request := cedar.Request{
		Principal: cedar.NewEntityUID("User", cedar.String(cfgAddon.Account.User.PlatformUserID)),
		Action:    cedar.NewEntityUID("Action", cedar.String(operation.Name)),
		Resource:  cedar.NewEntityUID("ConfiguredAddon", cedar.String(cfgAddon.ID)),
		Context: cedar.NewRecord(cedar.RecordMap(convertMapToCedarRecord(map[string]interface{}{
			"service_id":          cfgAddon.Account.ServiceID,
			"required_capability": capabilityName(operation.RequiredCapability),
			"resource_id":         cfgAddon.Resource.PlatformResourceID,
		}))),
	}

	decision, _ := a.policySet.IsAuthorized(a.entities, request)
	if decision != cedar.Allow {
		return gverrors.NewForbidden(
			fmt.Sprintf("policy denies operation %q on addon %q", operation.Name, cfgAddon.ID), nil)
	}
	return nil
}

func capabilityName(c domain.Capability) string {
	switch c {
	case domain.CapAccess:
		return "access"
	case domain.CapUpdate:
		return "update"
	case domain.CapPermissionDowngrade:
		return "permission_downgrade"
	case domain.CapPermissionUpgrade:
		return "permission_upgrade"
	default:
		return "unknown"
	}
}
