package urlnorm

// Equiv reports whether u and other identify the same resource. Both
// operands are independently canonicalized (Canonical, Defrag,
// Abspath, Escape, applied to copies so neither argument changes) and
// then compared component by component. Ports match when both are absent,
// both are equal, or the one explicit port is the default for its own
// scheme.
func (u URL) Equiv(other URL) bool {
	a := u.Canonical().Defrag().Abspath().Escape()
	b := other.Canonical().Defrag().Abspath().Escape()

	if a.Scheme != b.Scheme ||
		a.Host != b.Host ||
		a.Path != b.Path ||
		a.Params != b.Params ||
		a.Query != b.Query {
		return false
	}

	switch {
	case a.Port != 0 && b.Port == 0:
		return a.Port == defaultPorts[a.Scheme]
	case b.Port != 0 && a.Port == 0:
		return b.Port == defaultPorts[b.Scheme]
	default:
		return a.Port == b.Port
	}
}
