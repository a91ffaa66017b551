package schema

// Reserved class and field names.
const (
	UserClass = "_User"

	ReadPermissions  = "_rperm"
	WritePermissions = "_wperm"
	HashedPassword   = "_hashed_password"
	PasswordHistory  = "_password_history"

	EmailVerifyToken          = "_email_verify_token"
	EmailVerifyTokenExpiresAt = "_email_verify_token_expires_at"
	FailedLoginCount          = "_failed_login_count"
	AccountLockoutExpiresAt   = "_account_lockout_expires_at"
	PerishableToken           = "_perishable_token"
	PerishableTokenExpiresAt  = "_perishable_token_expires_at"
	PasswordChangedAt         = "_password_changed_at"
)

// userFields are the bookkeeping fields stored with every user.
var userFields = map[string]Type{
	HashedPassword:            TypeString,
	PasswordHistory:           TypeArray,
	EmailVerifyToken:          TypeString,
	EmailVerifyTokenExpiresAt: TypeDate,
	FailedLoginCount:          TypeNumber,
	AccountLockoutExpiresAt:   TypeDate,
	PerishableToken:           TypeString,
	PerishableTokenExpiresAt:  TypeDate,
	PasswordChangedAt:         TypeDate,
}

// Actions are the class-level permission actions, in canonical order.
var Actions = []string{"find", "get", "create", "update", "delete", "addField"}

// Permissions maps a principal ("*", a user id or "role:<name>") to its
// grant, usually true.
type Permissions map[string]any

// ClassLevelPermissions maps an action to its permissions. A nil value
// means the class never had permissions set.
type ClassLevelPermissions map[string]Permissions

// Class is a class schema: a named collection of typed fields stored as
// one table.
type Class struct {
	ClassName             string                    `json:"className" yaml:"className"`
	Fields                map[string]*Field         `json:"fields" yaml:"fields"`
	ClassLevelPermissions ClassLevelPermissions     `json:"classLevelPermissions,omitempty" yaml:"classLevelPermissions,omitempty"`
	Indexes               map[string]map[string]any `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// Field returns the named field, or nil.
func (c *Class) Field(name string) *Field {
	if c == nil {
		return nil
	}
	return c.Fields[name]
}

// Clone returns a deep copy of the class. Permission and index values are
// copied one level deep.
func (c *Class) Clone() *Class {
	if c == nil {
		return nil
	}
	n := &Class{ClassName: c.ClassName, Fields: make(map[string]*Field, len(c.Fields))}
	for name, f := range c.Fields {
		n.Fields[name] = f.clone()
	}
	if c.ClassLevelPermissions != nil {
		n.ClassLevelPermissions = make(ClassLevelPermissions, len(c.ClassLevelPermissions))
		for action, p := range c.ClassLevelPermissions {
			n.ClassLevelPermissions[action] = p.clone()
		}
	}
	if c.Indexes != nil {
		n.Indexes = make(map[string]map[string]any, len(c.Indexes))
		for name, idx := range c.Indexes {
			m := make(map[string]any, len(idx))
			for k, v := range idx {
				m[k] = v
			}
			n.Indexes[name] = m
		}
	}
	return n
}

func (p Permissions) clone() Permissions {
	if p == nil {
		return nil
	}
	c := make(Permissions, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}
