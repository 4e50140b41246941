package addon

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/cos/gravyvalet/pkg/errors"
)

// SchemaFor generates a JSON Schema document for argsShape, the Go struct
// an operation's JSON arguments bind into. Generated once per operation
// type and cached by the caller; used both to advertise an operation's
// expected arguments to API consumers and to validate inbound requests
// before binding.
func SchemaFor(argsShape any) ([]byte, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: false,
	}
	schema := reflector.Reflect(argsShape)
	out, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.NewUnexpectedAddonError("marshaling generated schema", err)
	}
	return out, nil
}

// ValidateArguments checks rawArgs (a JSON object) against schema (as
// produced by SchemaFor), returning a single InvalidArguments error
// describing every violation found.
func ValidateArguments(schema []byte, rawArgs []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(rawArgs)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return errors.NewInvalidArguments("arguments could not be validated against the operation's schema", err)
	}
	if !result.Valid() {
		msg := "arguments do not satisfy the operation's schema:"
		for _, re := range result.Errors() {
			msg += " " + re.String() + ";"
		}
		return errors.NewInvalidArguments(msg, nil)
	}
	return nil
}

// Bind decodes rawJSON (already validated against shape's schema) into a
// fresh value of shape's type, rejecting any key the type does not
// declare, then re-encodes the bound value back to a map. The round trip
// converts each field to the Go type its operation declared, so a
// handler's map[string]any lookups see the keys and types its ArgsShape
// declares instead of whatever shape the caller happened to send. An
// optional field tagged omitempty that was missing (or sent at its zero
// value) stays absent from the map; only fields without omitempty appear
// at their zero value.
func Bind(shape any, rawJSON []byte) (map[string]any, error) {
	target := reflect.New(reflect.TypeOf(shape)).Interface()

	dec := json.NewDecoder(bytes.NewReader(rawJSON))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, errors.NewInvalidArguments("arguments do not match the operation's declared parameters", err)
	}

	bound, err := json.Marshal(target)
	if err != nil {
		return nil, errors.NewUnexpectedAddonError("marshaling bound arguments", err)
	}
	var out map[string]any
	if err := json.Unmarshal(bound, &out); err != nil {
		return nil, errors.NewUnexpectedAddonError("unmarshaling bound arguments", err)
	}
	return out, nil
}
