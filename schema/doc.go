// Package schema describes class schemas and converts them between the
// external view returned to callers and the internal view used by the
// compilers.
//
// The internal view adds implicit storage fields:
//
//	cls := schema.ToInternal(&schema.Class{
//	    ClassName: "GameScore",
//	    Fields: map[string]*schema.Field{
//	        "score": {Type: schema.TypeNumber},
//	        "tags":  {Type: schema.TypeArray, Contents: &schema.Field{Type: schema.TypeString}},
//	    },
//	})
//	cls.Field("_rperm") // Array of String
//
// ToExternal removes them again and normalizes class-level permissions.
package schema
