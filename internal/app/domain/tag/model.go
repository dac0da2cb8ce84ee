// Package tag defines skill/interest tags and the geographic hierarchy used
// by location matching.
package tag

// Tag kinds. Minor tags are leaf-level and assignable to users, content and
// opportunities; major tags only group minors and are never assigned
// directly.
const (
	KindMinor = "minor"
	KindMajor = "major"
)

// Tag is a skill or interest label.
type Tag struct {
	ID       string
	Name     string
	Kind     string
	ParentID string // owning major tag for minors, empty for majors
}

// IsMinor reports whether the tag is directly assignable.
func (t Tag) IsMinor() bool { return t.Kind == KindMinor }

// Country, Location and LGA form a three-level geographic hierarchy.
// Opportunities constrain at exactly one level; the most specific wins.
type Country struct {
	ID   string
	Name string
}

type Location struct {
	ID        string
	Name      string
	CountryID string
}

// LGA is a local government area within a location.
type LGA struct {
	ID         string
	Name       string
	LocationID string
}
