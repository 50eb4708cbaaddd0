package resolver

import (
	"context"
	"slices"
	"strings"

	"github.com/willibrandon/gorestore/core"
	"github.com/willibrandon/gorestore/version"
)

// candidate is the version chosen for one request and the source offering it.
type candidate struct {
	version *version.NuGetVersion
	source  core.SourceRepository
}

// selectCandidate applies the source policy to one request:
//   - a lock pin that satisfies the range and is offered by a source wins;
//   - a floating range merges all sources and takes the highest match;
//   - any other range takes the lowest match of the first source that has one.
func selectCandidate(ctx context.Context, req *ResolveRequest, id string, r *version.Range) (candidate, error) {
	listed := make([][]*version.NuGetVersion, len(req.Sources))
	list := func(i int) ([]*version.NuGetVersion, error) {
		if listed[i] == nil {
			vs, err := req.Sources[i].ListVersions(ctx, id)
			if err != nil {
				return nil, err
			}
			if vs == nil {
				vs = []*version.NuGetVersion{}
			}
			listed[i] = vs
		}
		return listed[i], nil
	}

	if pin, ok := req.LockedVersions[strings.ToLower(id)]; ok && r.Satisfies(pin) {
		for i, src := range req.Sources {
			vs, err := list(i)
			if err != nil {
				return candidate{}, err
			}
			if slices.ContainsFunc(vs, pin.Equal) {
				return candidate{version: pin, source: src}, nil
			}
		}
	}

	if r.IsFloating() {
		var all []*version.NuGetVersion
		for i := range req.Sources {
			vs, err := list(i)
			if err != nil {
				return candidate{}, err
			}
			all = append(all, vs...)
		}
		if best := r.FindBestMatch(all); best != nil {
			for i, src := range req.Sources {
				if slices.ContainsFunc(listed[i], best.Equal) {
					return candidate{version: best, source: src}, nil
				}
			}
		}
	} else {
		for i, src := range req.Sources {
			vs, err := list(i)
			if err != nil {
				return candidate{}, err
			}
			if best := r.FindBestMatch(vs); best != nil {
				return candidate{version: best, source: src}, nil
			}
		}
	}

	// Sources that were never consulted still count toward the diagnostic.
	for i := range req.Sources {
		if _, err := list(i); err != nil {
			return candidate{}, err
		}
	}
	return candidate{}, notFound(req, id, r, listed)
}

func notFound(req *ResolveRequest, id string, r *version.Range, listed [][]*version.NuGetVersion) *PackageNotFoundError {
	e := &PackageNotFoundError{
		Code:              NU1101,
		PackageID:         id,
		VersionRange:      r.String(),
		TargetEnvironment: req.TargetEnvironment,
	}
	for _, src := range req.Sources {
		e.Sources = append(e.Sources, src.Source().String())
	}

	var all []*version.NuGetVersion
	for _, vs := range listed {
		all = append(all, vs...)
	}
	all = version.Dedupe(all)
	if len(all) == 0 {
		return e
	}

	e.Code = NU1102
	for _, v := range all {
		e.AvailableVersions = append(e.AvailableVersions, v.ToNormalizedString())
	}
	if !r.IsFloating() && !r.AllowsPrerelease() &&
		slices.ContainsFunc(all, func(v *version.NuGetVersion) bool { return v.IsPrerelease() && r.Satisfies(v) }) {
		e.Code = NU1103
	}

	nearest := all[len(all)-1]
	for _, v := range all {
		if !r.IsBelowMinimum(v) {
			nearest = v
			break
		}
	}
	e.NearestVersion = nearest.ToNormalizedString()
	return e
}
