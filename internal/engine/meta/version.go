package meta

import (
	"sort"

	"github.com/hashicorp/go-version"
)

// CompareVersions orders two assembly version strings. Unparseable versions
// sort below parseable ones and compare lexically among themselves.
func CompareVersions(a, b string) int {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// IndexedType is a public type found in a dependency module.
type IndexedType struct {
	Type     *Type
	Assembly *Assembly
}

// TypeIndex maps type full names to the dependency assemblies defining them.
// Candidates for one name are kept highest version first.
type TypeIndex struct {
	byName map[string][]IndexedType
}

func NewTypeIndex() *TypeIndex {
	return &TypeIndex{byName: make(map[string][]IndexedType)}
}

// Add indexes every public type of asm, nested types included.
func (x *TypeIndex) Add(asm *Assembly) {
	for _, mod := range asm.Modules {
		for _, t := range AllTypes(mod) {
			if !t.IsPublic() {
				continue
			}
			name := t.FullName()
			list := append(x.byName[name], IndexedType{Type: t, Assembly: asm})
			sort.SliceStable(list, func(i, j int) bool {
				return CompareVersions(list[i].Assembly.Version, list[j].Assembly.Version) > 0
			})
			x.byName[name] = list
		}
	}
}

// Lookup returns the highest-version candidate for fullName accepted by keep.
func (x *TypeIndex) Lookup(fullName string, keep func(IndexedType) bool) (IndexedType, bool) {
	for _, c := range x.byName[fullName] {
		if keep == nil || keep(c) {
			return c, true
		}
	}
	return IndexedType{}, false
}

func (x *TypeIndex) Len() int { return len(x.byName) }
