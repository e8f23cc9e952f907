package gemini

import (
	"reflect"
	"sync"
)

// ToolContext is a type-keyed store of shared resources handed to every tool
// handler. At most one value per type is held. Reads return copies: a value whose
// type implements Cloner is copied with Clone. Anything else is copied
// recursively through maps, slices, arrays, interfaces and exported struct
// fields; pointers, channels and funcs are handles and stay shared.
// A ToolContext is safe for concurrent use.
type ToolContext struct {
	mu        sync.RWMutex
	resources map[reflect.Type]any
}

// Cloner is implemented by resources that need a deep copy on read.
type Cloner[T any] interface {
	Clone() T
}

// NewToolContext returns an empty ToolContext.
func NewToolContext() *ToolContext {
	return &ToolContext{resources: make(map[reflect.Type]any)}
}

// SetResource stores v under its static type T, replacing any previous value of that type.
func SetResource[T any](tc *ToolContext, v T) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.resources == nil {
		tc.resources = make(map[reflect.Type]any)
	}
	tc.resources[reflect.TypeFor[T]()] = v
}

// Resource returns a copy of the value stored for T, or the zero value and false.
func Resource[T any](tc *ToolContext) (T, bool) {
	var zero T
	if tc == nil {
		return zero, false
	}
	tc.mu.RLock()
	raw, ok := tc.resources[reflect.TypeFor[T]()]
	tc.mu.RUnlock()
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone(), true
	}
	out, ok := copyValue(reflect.ValueOf(&v).Elem()).Interface().(T)
	if !ok {
		return zero, false
	}
	return out, true
}

// copyValue returns a copy of v that shares no map, slice or array storage with it.
func copyValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyValue(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			out.Index(i).Set(copyValue(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := range v.Len() {
			out.Index(i).Set(copyValue(v.Index(i)))
		}
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(copyValue(v.Elem()))
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := range v.NumField() {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			out.Field(i).Set(copyValue(v.Field(i)))
		}
		return out
	default:
		return v
	}
}

// DeleteResource removes the value stored for T, if any.
func DeleteResource[T any](tc *ToolContext) {
	if tc == nil {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	delete(tc.resources, reflect.TypeFor[T]())
}

// Len returns the number of stored resources.
func (tc *ToolContext) Len() int {
	if tc == nil {
		return 0
	}
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return len(tc.resources)
}
