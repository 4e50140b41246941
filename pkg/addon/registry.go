package addon

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/gvhttp"
)

// Handler invokes a single operation against an already-constructed Imp.
// Each provider supplies one per declared operation, replacing the
// original's method-identity-based override detection with an explicit,
// compile-time-checked function reference.
type Handler func(ctx context.Context, imp Imp, args map[string]any) (any, error)

// OperationEntry pairs an operation's advertised shape (name, capability,
// execution mode) with the Handler that actually runs it.
type OperationEntry struct {
	Declaration domain.OperationDeclaration
	Invoke      Handler
}

// registration pairs a provider's Constructor with the operations it
// supports, as registered via Register.
type registration struct {
	key               string
	constructor       Constructor
	clientConstructor ClientConstructor
	operations        map[string]OperationEntry
	schemas           map[string][]byte
}

// buildSchemas generates and caches a JSON schema for every operation that
// declares an ArgsShape, once at registration time rather than per
// invocation. A shape that cannot be reflected into a schema is a
// programming error in the provider and panics at startup, the same as a
// duplicate imp key.
func buildSchemas(impKey string, ops map[string]OperationEntry) map[string][]byte {
	schemas := make(map[string][]byte, len(ops))
	for name, op := range ops {
		if op.Declaration.ArgsShape == nil {
			continue
		}
		schema, err := SchemaFor(op.Declaration.ArgsShape)
		if err != nil {
			panic(fmt.Sprintf("addon: %s.%s: generating argument schema: %v", impKey, name, err))
		}
		schemas[name] = schema
	}
	return schemas
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*registration{}
)

// Register binds an imp key to its Constructor and operation table. Each
// provider package calls this from an init func; a duplicate key is a
// programming error and panics at startup rather than silently shadowing.
func Register(impKey string, constructor Constructor, operations ...OperationEntry) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[impKey]; exists {
		panic(fmt.Sprintf("addon: imp key %q registered twice", impKey))
	}

	ops := make(map[string]OperationEntry, len(operations))
	for _, op := range operations {
		ops[op.Declaration.Name] = op
	}
	registry[impKey] = &registration{key: impKey, constructor: constructor, operations: ops, schemas: buildSchemas(impKey, ops)}
}

// RegisterClient binds an imp key to a ClientConstructor instead of a
// Requestor-based Constructor, for providers that build their own SDK
// client straight from decrypted credentials.
func RegisterClient(impKey string, constructor ClientConstructor, operations ...OperationEntry) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[impKey]; exists {
		panic(fmt.Sprintf("addon: imp key %q registered twice", impKey))
	}

	ops := make(map[string]OperationEntry, len(operations))
	for _, op := range operations {
		ops[op.Declaration.Name] = op
	}
	registry[impKey] = &registration{key: impKey, clientConstructor: constructor, operations: ops, schemas: buildSchemas(impKey, ops)}
}

// RegisterForeign registers an imp key whose implementation lives outside
// this module. It exists so a deployment can wire in a provider shipped
// as a separate Go module without this package needing to import it
// directly.
func RegisterForeign(impKey string, constructor Constructor, operations ...OperationEntry) {
	Register(impKey, constructor, operations...)
}

// Lookup returns the registration for impKey, or false if none exists.
func Lookup(impKey string) (constructor Constructor, operations map[string]OperationEntry, ok bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	r, ok := registry[impKey]
	if !ok {
		return nil, nil, false
	}
	return r.constructor, r.operations, true
}

// OperationDeclarationFor returns the declaration for a single named
// operation on impKey.
func OperationDeclarationFor(impKey, operationName string) (domain.OperationDeclaration, error) {
	entry, err := operationEntryFor(impKey, operationName)
	if err != nil {
		return domain.OperationDeclaration{}, err
	}
	return entry.Declaration, nil
}

// OperationHandlerFor returns the Handler for a single named operation on
// impKey, used by the Invocation Engine to actually run it.
func OperationHandlerFor(impKey, operationName string) (Handler, error) {
	entry, err := operationEntryFor(impKey, operationName)
	if err != nil {
		return nil, err
	}
	return entry.Invoke, nil
}

// BindArguments validates rawArgs against operationName's declared schema
// and binds it into the shape named by its ArgsShape, returning the
// bound result as a map a Handler can read with ordinary map indexing. An
// operation with no declared ArgsShape passes rawArgs through unchanged.
// A nil rawArgs is treated as an empty argument object, so an operation
// whose parameters are all optional can still be invoked with no
// arguments at all.
func BindArguments(impKey, operationName string, rawArgs map[string]any) (map[string]any, error) {
	entry, err := operationEntryFor(impKey, operationName)
	if err != nil {
		return nil, err
	}
	if entry.Declaration.ArgsShape == nil {
		return rawArgs, nil
	}
	if rawArgs == nil {
		rawArgs = map[string]any{}
	}

	registryMu.RLock()
	schema := registry[impKey].schemas[operationName]
	registryMu.RUnlock()

	rawJSON, err := json.Marshal(rawArgs)
	if err != nil {
		return nil, errors.NewInvalidArguments("arguments could not be encoded for validation", err)
	}
	if err := ValidateArguments(schema, rawJSON); err != nil {
		return nil, err
	}
	return Bind(entry.Declaration.ArgsShape, rawJSON)
}

func operationEntryFor(impKey, operationName string) (OperationEntry, error) {
	_, ops, ok := Lookup(impKey)
	if !ok {
		return OperationEntry{}, fmt.Errorf("addon: no imp registered for key %q", impKey)
	}
	entry, ok := ops[operationName]
	if !ok {
		return OperationEntry{}, fmt.Errorf("addon: imp %q has no operation %q", impKey, operationName)
	}
	return entry, nil
}

// build constructs the Imp for impKey using whichever constructor shape it
// was registered under: a NetworkRequestorProvider gets requestor, a
// ClientRequestorProvider gets creds directly and builds its own client.
func build(impKey string, addon domain.ConfiguredAddon, requestor *gvhttp.Requestor, creds credentials.Credentials) (Imp, error) {
	registryMu.RLock()
	r, ok := registry[impKey]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("addon: no imp registered for key %q", impKey)
	}
	if r.clientConstructor != nil {
		return r.clientConstructor(creds, addon), nil
	}
	return r.constructor(requestor, addon), nil
}

// RegisteredKeys returns every registered imp key, sorted, for diagnostics.
func RegisteredKeys() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
