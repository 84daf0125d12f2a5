// Package semver implements version selection against semver ranges and dist-tags.
package semver

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/zerr"
)

// LatestTag is the dist-tag preferred when it satisfies a range.
const LatestTag = "latest"

// Picker implements ports.VersionPicker.
type Picker struct{}

// NewPicker creates a Picker.
func NewPicker() *Picker {
	return &Picker{}
}

// Pick returns the version selected by rangeOrTag. A dist-tag selects its
// version directly. For ranges the "latest" tag wins when it satisfies the
// range, otherwise the highest satisfying version is returned.
func (p *Picker) Pick(versions []string, distTags map[string]string, rangeOrTag string) (string, error) {
	want := strings.TrimSpace(rangeOrTag)
	if want == "" {
		want = "*"
	}

	if tagged, ok := distTags[want]; ok {
		for _, v := range versions {
			if v == tagged {
				return v, nil
			}
		}
		return "", zerr.With(zerr.Wrap(domain.ErrResolution, "dist-tag points at an unpublished version"), "tag", want)
	}

	constraint, err := semver.NewConstraint(want)
	if err != nil {
		return "", zerr.With(zerr.Wrap(domain.ErrResolution, "invalid range or unknown dist-tag"), "range", want)
	}

	if latest, ok := distTags[LatestTag]; ok {
		if v, err := semver.StrictNewVersion(latest); err == nil && constraint.Check(v) && contains(versions, latest) {
			return latest, nil
		}
	}

	var best *semver.Version
	for _, raw := range versions {
		v, err := semver.StrictNewVersion(raw)
		if err != nil {
			continue
		}
		if !constraint.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return "", zerr.With(zerr.Wrap(domain.ErrResolution, "no version satisfies range"), "range", want)
	}
	return best.Original(), nil
}

// Satisfies reports whether version is within rng.
func (p *Picker) Satisfies(version, rng string) bool {
	if strings.TrimSpace(rng) == "" {
		rng = "*"
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	c, err := semver.NewConstraint(rng)
	if err != nil {
		return false
	}
	return c.Check(v)
}

func contains(versions []string, v string) bool {
	for _, candidate := range versions {
		if candidate == v {
			return true
		}
	}
	return false
}
