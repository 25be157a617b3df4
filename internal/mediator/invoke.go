package mediator

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// invoke calls method on worker with args JSON-decoded into the method's
// declared parameter types, then JSON-encodes its first return value (a
// second, error-typed return value is treated as the call's failure).
func invoke(worker any, method string, args []json.RawMessage) (json.RawMessage, error) {
	v := reflect.ValueOf(worker)
	m := v.MethodByName(method)
	if !m.IsValid() {
		return nil, fmt.Errorf("mediator: worker has no method %q", method)
	}
	mt := m.Type()
	if mt.NumIn() != len(args) {
		return nil, fmt.Errorf("mediator: %s expects %d args, got %d", method, mt.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, raw := range args {
		argPtr := reflect.New(mt.In(i))
		if err := json.Unmarshal(raw, argPtr.Interface()); err != nil {
			return nil, fmt.Errorf("mediator: decode arg %d for %s: %w", i, method, err)
		}
		in[i] = argPtr.Elem()
	}

	out := m.Call(in)
	return splitResult(method, out)
}

func splitResult(method string, out []reflect.Value) (json.RawMessage, error) {
	var result any
	var callErr error

	for _, o := range out {
		if o.Type().Implements(errType) {
			if !o.IsNil() {
				callErr = o.Interface().(error)
			}
			continue
		}
		result = o.Interface()
	}
	if callErr != nil {
		return nil, fmt.Errorf("mediator: %s: %w", method, callErr)
	}
	if result == nil {
		return json.RawMessage("null"), nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("mediator: encode result of %s: %w", method, err)
	}
	return data, nil
}

var errType = reflect.TypeOf((*error)(nil)).Elem()
