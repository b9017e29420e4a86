package crucible

import (
	"reflect"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// In is a marker type embedded in structs to mark them as parameter objects.
// Fields of the struct are treated as dependencies to inject, with optional
// struct tags:
//
//	type ServiceParams struct {
//	    crucible.In
//
//	    DB     *Database
//	    Cache  *Cache  `name:"redis"`
//	    Tracer *Tracer `optional:"true"`
//	}
//
// A `name` tag selects a labeled binding; `optional:"true"` falls back to
// the zero value when the dependency is unresolved.
type In struct{}

var (
	inType    = reflect.TypeOf(In{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// injectMethodPrefix marks exported methods invoked by InjectAll.
const injectMethodPrefix = "Inject"

// introspectorCacheSize bounds the compiled metadata caches. Applications
// rarely resolve more distinct types than this; eviction only costs a
// re-analysis.
const introspectorCacheSize = 256

// typeIntrospector analyzes constructor functions and injectable members and
// caches the compiled metadata per type. One introspector is created with
// the root container and shared by the whole tree; its caches live exactly
// as long as the tree does.
type typeIntrospector struct {
	ctors *lru.Cache[reflect.Type, *ctorInfo]
	plans *lru.Cache[reflect.Type, *injectPlan]
}

func newTypeIntrospector() *typeIntrospector {
	ctors, _ := lru.New[reflect.Type, *ctorInfo](introspectorCacheSize)
	plans, _ := lru.New[reflect.Type, *injectPlan](introspectorCacheSize)

	return &typeIntrospector{ctors: ctors, plans: plans}
}

// =============================================================================
// CONSTRUCTOR ANALYSIS
// =============================================================================

// ctorInfo holds analyzed constructor metadata. It depends only on the
// function signature, so it is cached per function type.
type ctorInfo struct {
	fnType reflect.Type
	params []paramSpec
	result reflect.Type
	hasErr bool
}

// paramSpec describes one constructor or method parameter, or one field of
// an In parameter struct.
type paramSpec struct {
	typ      reflect.Type
	name     string
	label    string
	optional bool
	index    int
	isIn     bool
	fields   []paramSpec
}

// constructorFor returns the analyzed metadata for a constructor signature:
// any number of parameters, exactly one non-error result, and optionally a
// trailing error.
func (ti *typeIntrospector) constructorFor(fnType reflect.Type) (*ctorInfo, error) {
	if cached, ok := ti.ctors.Get(fnType); ok {
		return cached, nil
	}

	info := &ctorInfo{fnType: fnType}

	for i := 0; i < fnType.NumIn(); i++ {
		param, err := analyzeParam(fnType.In(i), i)
		if err != nil {
			return nil, err
		}

		info.params = append(info.params, param)
	}

	for i := 0; i < fnType.NumOut(); i++ {
		out := fnType.Out(i)

		if out == errorType {
			if i != fnType.NumOut()-1 {
				return nil, newRegistrationError(fnType, "error must be the last return value", nil)
			}

			info.hasErr = true

			continue
		}

		if info.result != nil {
			return nil, newRegistrationError(fnType, "constructor must return exactly one non-error value", nil)
		}

		info.result = out
	}

	if info.result == nil {
		return nil, newRegistrationError(fnType, "constructor must return a non-error value", nil)
	}

	ti.ctors.Add(fnType, info)

	return info, nil
}

func analyzeParam(t reflect.Type, index int) (paramSpec, error) {
	param := paramSpec{typ: t, index: index}

	if isInStruct(t) {
		param.isIn = true

		fields, err := expandInStruct(t)
		if err != nil {
			return param, err
		}

		param.fields = fields
	}

	return param, nil
}

// isInStruct checks if a type embeds crucible.In, directly or through
// another embedded parameter struct.
func isInStruct(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.Anonymous {
			continue
		}

		if field.Type == inType {
			return true
		}

		if isInStruct(field.Type) {
			return true
		}
	}

	return false
}

// expandInStruct expands an In struct into its field dependencies.
func expandInStruct(t reflect.Type) ([]paramSpec, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	var fields []paramSpec

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Skip the embedded In marker itself.
		if field.Anonymous && field.Type == inType {
			continue
		}

		if !field.IsExported() {
			continue
		}

		// An embedded parameter struct expands recursively, so promoted
		// fields keep their tags.
		if field.Anonymous && isInStruct(field.Type) {
			nested, err := expandInStruct(field.Type)
			if err != nil {
				return nil, err
			}

			fields = append(fields, paramSpec{
				typ:    field.Type,
				name:   field.Name,
				index:  i,
				isIn:   true,
				fields: nested,
			})

			continue
		}

		spec := paramSpec{
			typ:   field.Type,
			name:  field.Name,
			index: i,
		}

		if tag := field.Tag.Get("name"); tag != "" {
			spec.label = tag
		}

		if tag := field.Tag.Get("optional"); strings.EqualFold(tag, "true") {
			spec.optional = true
		}

		fields = append(fields, spec)
	}

	return fields, nil
}

// =============================================================================
// INJECTION PLANS
// =============================================================================

// injectPlan is the compiled member injection plan for one runtime type:
// the tagged fields to assign and the Inject methods to invoke.
type injectPlan struct {
	typ     reflect.Type
	fields  []fieldSpec
	methods []methodSpec
}

type fieldSpec struct {
	name     string
	index    int
	typ      reflect.Type
	label    string
	optional bool
}

type methodSpec struct {
	name   string
	index  int
	params []paramSpec
	hasErr bool
}

// planFor returns the injection plan for a runtime type: fields carrying an
// `inject` tag (labels through `name`, zero value fallback through
// `optional:"true"`) and exported methods whose name starts with Inject.
// An inject tag on an unexported field is an error: the member can never be
// assigned from outside the package.
func (ti *typeIntrospector) planFor(t reflect.Type) (*injectPlan, error) {
	if cached, ok := ti.plans.Get(t); ok {
		return cached, nil
	}

	plan := &injectPlan{typ: t}

	base := t
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}

	if base.Kind() == reflect.Struct {
		for i := 0; i < base.NumField(); i++ {
			field := base.Field(i)

			if _, tagged := field.Tag.Lookup("inject"); !tagged {
				continue
			}

			if !field.IsExported() {
				return nil, newInjectionError(t, field.Name, "inject tag on unexported field", nil)
			}

			if t.Kind() != reflect.Ptr {
				return nil, newInjectionError(t, field.Name, "field injection requires a pointer instance", nil)
			}

			spec := fieldSpec{
				name:  field.Name,
				index: i,
				typ:   field.Type,
			}

			if tag := field.Tag.Get("name"); tag != "" {
				spec.label = tag
			}

			if tag := field.Tag.Get("optional"); strings.EqualFold(tag, "true") {
				spec.optional = true
			}

			plan.fields = append(plan.fields, spec)
		}
	}

	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		if !method.IsExported() || !strings.HasPrefix(method.Name, injectMethodPrefix) {
			continue
		}

		spec := methodSpec{name: method.Name, index: i}

		mt := method.Type
		for p := 1; p < mt.NumIn(); p++ {
			param, err := analyzeParam(mt.In(p), p-1)
			if err != nil {
				return nil, err
			}

			spec.params = append(spec.params, param)
		}

		switch mt.NumOut() {
		case 0:
		case 1:
			if mt.Out(0) != errorType {
				return nil, newInjectionError(t, method.Name, "injectable method may only return error", nil)
			}

			spec.hasErr = true
		default:
			return nil, newInjectionError(t, method.Name, "injectable method may only return error", nil)
		}

		plan.methods = append(plan.methods, spec)
	}

	ti.plans.Add(t, plan)

	return plan, nil
}
