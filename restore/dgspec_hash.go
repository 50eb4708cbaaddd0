package restore

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/willibrandon/gorestore/version"
)

// specHashFormat is bumped whenever the canonical form below changes.
const specHashFormat = 1

type specHashProject struct {
	ID       string           `json:"id"`
	Version  string           `json:"version"`
	Targets  []specHashTarget `json:"targets"`
	Sources  []string         `json:"sources"`
	LockMode string           `json:"lockMode"`
	Strict   bool             `json:"strict"`
}

type specHashTarget struct {
	Name         string               `json:"name"`
	Dependencies []specHashDependency `json:"dependencies"`
}

type specHashDependency struct {
	ID      string   `json:"id"`
	Range   string   `json:"range,omitempty"`
	Type    string   `json:"type"`
	Exclude []string `json:"exclude,omitempty"`
}

type specHashDocument struct {
	Format     int               `json:"format"`
	Project    specHashProject   `json:"project"`
	References []specHashProject `json:"references,omitempty"`
}

// CalculateSpecHash computes the no-op fingerprint of a project: FNV-1a 64
// over canonical JSON of its sorted direct dependencies per target, target
// environments, source identities, lock mode, strict flag, and the same
// inputs of every project it references.
func CalculateSpecHash(g *DependencyGraphSpec, p *ProjectRestoreSpec) (string, error) {
	doc := specHashDocument{
		Format:  specHashFormat,
		Project: canonicalProject(p),
	}

	if g != nil {
		closure := g.Closure(p.ID)
		if len(closure) > 1 {
			refs := closure[1:]
			doc.References = make([]specHashProject, 0, len(refs))
			for _, ref := range refs {
				doc.References = append(doc.References, canonicalProject(ref))
			}
			slices.SortFunc(doc.References, func(a, b specHashProject) int {
				return cmp.Compare(a.ID, b.ID)
			})
		}
	}

	h := NewFnvHash64()
	if err := json.NewEncoder(h).Encode(doc); err != nil {
		return "", fmt.Errorf("encode spec hash input: %w", err)
	}
	return h.GetHash(), nil
}

func canonicalProject(p *ProjectRestoreSpec) specHashProject {
	out := specHashProject{
		ID:       strings.ToLower(p.ID),
		Version:  p.Version.ToNormalizedString(),
		LockMode: p.LockMode.String(),
		Strict:   p.Strict,
	}

	targets := slices.Clone(p.TargetEnvironments)
	slices.SortFunc(targets, func(a, b string) int {
		return cmp.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	for _, t := range targets {
		st := specHashTarget{Name: strings.ToLower(t), Dependencies: []specHashDependency{}}
		for _, d := range p.DependenciesFor(t) {
			exclude := make([]string, 0, len(d.Exclude))
			for _, e := range d.Exclude {
				exclude = append(exclude, strings.ToLower(e))
			}
			slices.Sort(exclude)
			st.Dependencies = append(st.Dependencies, specHashDependency{
				ID:      strings.ToLower(d.ID),
				Range:   canonicalRange(d.VersionRange),
				Type:    d.Type.String(),
				Exclude: exclude,
			})
		}
		slices.SortFunc(st.Dependencies, func(a, b specHashDependency) int {
			return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Type, b.Type), cmp.Compare(a.Range, b.Range))
		})
		out.Targets = append(out.Targets, st)
	}

	// Source order decides which feed wins, so it is kept.
	out.Sources = make([]string, 0, len(p.Sources))
	for _, s := range p.Sources {
		out.Sources = append(out.Sources, s.Identity())
	}
	return out
}

// canonicalRange normalizes a declared range so equivalent spellings hash alike.
func canonicalRange(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, err := version.ParseVersionRange(s)
	if err != nil {
		return s
	}
	return r.String()
}
