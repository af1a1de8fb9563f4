package script

// Script is the immutable descriptor the host hands to the sandbox.
type Script struct {
	ID          int64
	DisplayName string
	Meta        Meta
}

// New parses code and returns a descriptor for it. The display name falls
// back to the metadata name.
func New(id int64, code string) Script {
	m := ParseMeta(code)
	return Script{ID: id, DisplayName: m.Name, Meta: m}
}

// EffectiveGrants returns the grant list with the lone "none" sentinel
// normalized to an empty list.
func (s Script) EffectiveGrants() []string {
	if len(s.Meta.Grant) == 1 && s.Meta.Grant[0] == GrantNone {
		return nil
	}
	return s.Meta.Grant
}
