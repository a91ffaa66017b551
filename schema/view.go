package schema

// ToInternal returns a copy of c with the implicit storage fields added:
// the read and write permission lists for every class, and the password,
// token and lockout bookkeeping fields for the user class. It is idempotent.
func ToInternal(c *Class) *Class {
	n := c.Clone()
	if n == nil {
		return nil
	}
	n.Fields[ReadPermissions] = &Field{Type: TypeArray, Contents: &Field{Type: TypeString}}
	n.Fields[WritePermissions] = &Field{Type: TypeArray, Contents: &Field{Type: TypeString}}
	if n.ClassName == UserClass {
		for name, typ := range userFields {
			n.Fields[name] = &Field{Type: typ}
		}
	}
	return n
}

// ToExternal returns a copy of c as visible to callers: the permission
// lists and the hashed password are removed, and class-level permissions
// are normalized per action.
//
// A class without permissions allows everything. Otherwise each action
// keeps the supplied permissions, or gets an empty (denied) set.
func ToExternal(c *Class) *Class {
	n := c.Clone()
	if n == nil {
		return nil
	}
	delete(n.Fields, ReadPermissions)
	delete(n.Fields, WritePermissions)
	if n.ClassName == UserClass {
		delete(n.Fields, HashedPassword)
	}
	n.ClassLevelPermissions = normalizePermissions(n.ClassLevelPermissions)
	return n
}

func normalizePermissions(clp ClassLevelPermissions) ClassLevelPermissions {
	out := make(ClassLevelPermissions, len(Actions))
	if clp == nil {
		for _, action := range Actions {
			out[action] = Permissions{"*": true}
		}
		return out
	}
	for _, action := range Actions {
		out[action] = Permissions{}
	}
	for action, p := range clp {
		if p == nil {
			p = Permissions{}
		}
		out[action] = p
	}
	return out
}
