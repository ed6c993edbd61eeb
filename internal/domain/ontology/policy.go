package ontology

// ExclusionPolicy decides which concepts take part in indexing and
// expansion.
type ExclusionPolicy struct {
	// IncludeNamespaces, when set, admits only concepts from these namespaces.
	IncludeNamespaces []string `json:"include_namespaces" yaml:"include_namespaces" mapstructure:"include_namespaces"`

	// ExcludeNamespaces is consulted only when IncludeNamespaces is empty.
	ExcludeNamespaces []string `json:"exclude_namespaces" yaml:"exclude_namespaces" mapstructure:"exclude_namespaces"`

	// IgnoreProperties excludes concepts having any of these properties set
	// to true.
	IgnoreProperties []string `json:"ignore_properties" yaml:"ignore_properties" mapstructure:"ignore_properties"`
}

// Exclude reports whether c is excluded.
func (p ExclusionPolicy) Exclude(c *Concept) bool {
	if c == nil || c.Anonymous {
		return true
	}
	if len(p.IncludeNamespaces) > 0 {
		if c.Namespace == "" || !contains(p.IncludeNamespaces, c.Namespace) {
			return true
		}
	} else if c.Namespace == "" || contains(p.ExcludeNamespaces, c.Namespace) {
		return true
	}
	for _, prop := range p.IgnoreProperties {
		if c.HasTrueProperty(prop) {
			return true
		}
	}
	return false
}

// Visible reports whether a caller may see c.  Ordinary callers see the
// concepts that are not excluded; privileged callers see exactly the
// excluded ones.
func (p ExclusionPolicy) Visible(c *Concept, privileged bool) bool {
	return p.Exclude(c) == privileged
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
