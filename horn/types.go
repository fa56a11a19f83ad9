package horn

import "fmt"

// TypeRef names a type: one of the built-ins or a declared ADT.
type TypeRef string

// Built-in types.
const (
	TypeInt    TypeRef = "Int"
	TypeString TypeRef = "String"
	TypeBool   TypeRef = "Bool"
)

// Field is one named, typed component of a product type or variant payload.
type Field struct {
	Name string
	Type TypeRef
}

// VariantDef is one alternative of a sum type. Fields may be empty for a
// nullary variant.
type VariantDef struct {
	Name   string
	Fields []Field
}

// TypeDef declares an algebraic data type. Exactly one of Fields (product)
// or Variants (sum) is populated. A layout is fixed once declared.
type TypeDef struct {
	Name     string
	Ctor     string       // product constructor name; "" for sum types
	Fields   []Field      // product fields
	Variants []VariantDef // sum variants
}

// IsSum reports whether the definition is a sum type.
func (d *TypeDef) IsSum() bool {
	return len(d.Variants) > 0
}

// Relation declares a named predicate and its fixed argument signature.
type Relation struct {
	Name      string
	Signature []TypeRef
}

// Arity returns the number of argument positions.
func (r *Relation) Arity() int {
	return len(r.Signature)
}

// CtorInfo describes a constructor usable in terms: either a product
// constructor or a sum variant.
type CtorInfo struct {
	Name      string
	Result    TypeRef
	Fields    []Field
	Variant   bool   // true when this is a sum variant
	TypeName  string // declaring type
}

// Registry holds declared types and relation signatures. It is the leaf
// dependency of every compilation stage; once program load completes it is
// read-only.
type Registry struct {
	types     map[string]*TypeDef
	relations map[string]*Relation
	ctors     map[string]*CtorInfo
	typeOrder []string
	relOrder  []string
}

// NewRegistry creates an empty registry. Int, String, and Bool need no
// declarations and are always recognized.
func NewRegistry() *Registry {
	return &Registry{
		types:     make(map[string]*TypeDef),
		relations: make(map[string]*Relation),
		ctors:     make(map[string]*CtorInfo),
	}
}

// AddType declares an ADT. The layout is fixed at this point; duplicate
// names, empty field names, and empty variant names are rejected.
func (r *Registry) AddType(def *TypeDef) error {
	if def.Name == "" {
		return fmt.Errorf("type name must not be empty")
	}
	if _, ok := r.types[def.Name]; ok {
		return fmt.Errorf("type %s already defined", def.Name)
	}
	if builtinType(TypeRef(def.Name)) {
		return fmt.Errorf("type %s shadows a built-in type", def.Name)
	}

	if def.IsSum() {
		for _, v := range def.Variants {
			if v.Name == "" {
				return fmt.Errorf("type %s has a variant with an empty name", def.Name)
			}
			for _, f := range v.Fields {
				if f.Name == "" {
					return fmt.Errorf("variant %s of %s has a field with an empty name", v.Name, def.Name)
				}
			}
			if _, ok := r.ctors[v.Name]; ok {
				return fmt.Errorf("constructor %s already defined", v.Name)
			}
		}
		r.types[def.Name] = def
		r.typeOrder = append(r.typeOrder, def.Name)
		for _, v := range def.Variants {
			r.ctors[InternSymbol(v.Name)] = &CtorInfo{
				Name:     v.Name,
				Result:   TypeRef(def.Name),
				Fields:   v.Fields,
				Variant:  true,
				TypeName: def.Name,
			}
		}
		return nil
	}

	if def.Ctor == "" {
		return fmt.Errorf("product type %s must declare a constructor name", def.Name)
	}
	for _, f := range def.Fields {
		if f.Name == "" {
			return fmt.Errorf("type %s has a field with an empty name", def.Name)
		}
	}
	if _, ok := r.ctors[def.Ctor]; ok {
		return fmt.Errorf("constructor %s already defined", def.Ctor)
	}
	r.types[def.Name] = def
	r.typeOrder = append(r.typeOrder, def.Name)
	r.ctors[InternSymbol(def.Ctor)] = &CtorInfo{
		Name:     def.Ctor,
		Result:   TypeRef(def.Name),
		Fields:   def.Fields,
		TypeName: def.Name,
	}
	return nil
}

// AddRelation declares a relation signature. Arity and argument types are
// fixed here and checked against every fact and rule head later.
func (r *Registry) AddRelation(rel *Relation) error {
	if rel.Name == "" {
		return fmt.Errorf("relation name must not be empty")
	}
	if _, ok := r.relations[rel.Name]; ok {
		return fmt.Errorf("relation %s already defined", rel.Name)
	}
	for i, t := range rel.Signature {
		if !r.KnownType(t) {
			return fmt.Errorf("relation %s argument %d has unknown type %s", rel.Name, i+1, t)
		}
	}
	r.relations[InternSymbol(rel.Name)] = rel
	r.relOrder = append(r.relOrder, rel.Name)
	return nil
}

// Type looks up a declared ADT.
func (r *Registry) Type(name string) (*TypeDef, bool) {
	d, ok := r.types[name]
	return d, ok
}

// RelationDecl looks up a declared relation.
func (r *Registry) RelationDecl(name string) (*Relation, bool) {
	rel, ok := r.relations[name]
	return rel, ok
}

// Ctor looks up constructor information by constructor or variant name.
func (r *Registry) Ctor(name string) (*CtorInfo, bool) {
	c, ok := r.ctors[name]
	return c, ok
}

// KnownType reports whether a type reference resolves.
func (r *Registry) KnownType(t TypeRef) bool {
	if builtinType(t) {
		return true
	}
	_, ok := r.types[string(t)]
	return ok
}

// RelationNames returns relation names in declaration order.
func (r *Registry) RelationNames() []string {
	out := make([]string, len(r.relOrder))
	copy(out, r.relOrder)
	return out
}

// TypeNames returns type names in declaration order.
func (r *Registry) TypeNames() []string {
	out := make([]string, len(r.typeOrder))
	copy(out, r.typeOrder)
	return out
}

func builtinType(t TypeRef) bool {
	return t == TypeInt || t == TypeString || t == TypeBool
}
