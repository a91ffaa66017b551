package schema

import (
	"fmt"
)

// Type is the declared kind of a class field.
type Type uint8

// Field types.
const (
	TypeInvalid Type = iota
	TypeString
	TypeNumber
	TypeBoolean
	TypeDate
	TypeObject
	TypeArray
	TypePointer
	TypeRelation
	TypeGeoPoint
	TypeFile
	TypeBytes
	TypePolygon
	endTypes
)

var typeNames = [...]string{
	TypeInvalid:  "invalid",
	TypeString:   "String",
	TypeNumber:   "Number",
	TypeBoolean:  "Boolean",
	TypeDate:     "Date",
	TypeObject:   "Object",
	TypeArray:    "Array",
	TypePointer:  "Pointer",
	TypeRelation: "Relation",
	TypeGeoPoint: "GeoPoint",
	TypeFile:     "File",
	TypeBytes:    "Bytes",
	TypePolygon:  "Polygon",
}

// String returns the type name as used in schema documents.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid reports if the type is one of the declared field types.
func (t Type) Valid() bool { return t > TypeInvalid && t < endTypes }

// Scalar reports if values of the type are stored in a plain column.
func (t Type) Scalar() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeDate, TypePointer, TypeFile:
		return true
	}
	return false
}

// ParseType returns the type with the given name.
func ParseType(name string) (Type, error) {
	for t := TypeString; t < endTypes; t++ {
		if typeNames[t] == name {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("schema: unknown field type %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("schema: invalid field type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	typ, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = typ
	return nil
}

// Field describes a class field.
type Field struct {
	Type Type `json:"type" yaml:"type"`
	// TargetClass is the class referenced by Pointer and Relation fields.
	TargetClass string `json:"targetClass,omitempty" yaml:"targetClass,omitempty"`
	// Contents is the declared element type of Array fields, if any.
	Contents *Field `json:"contents,omitempty" yaml:"contents,omitempty"`
}

// IsArray reports if f is an Array field.
func (f *Field) IsArray() bool { return f != nil && f.Type == TypeArray }

// IsArrayOf reports if f is an Array field whose elements are declared as t.
func (f *Field) IsArrayOf(t Type) bool {
	return f.IsArray() && f.Contents != nil && f.Contents.Type == t
}

// Is reports if f is declared with type t.
func (f *Field) Is(t Type) bool { return f != nil && f.Type == t }

func (f *Field) clone() *Field {
	if f == nil {
		return nil
	}
	c := *f
	c.Contents = f.Contents.clone()
	return &c
}
