package ports

// VersionPicker selects versions against semver ranges and dist-tags.
//
//go:generate mockgen -source=picker.go -destination=mocks/mock_picker.go -package=mocks
type VersionPicker interface {
	// Pick returns the highest version satisfying rangeOrTag. A dist-tag
	// selects the tagged version. Prereleases only match ranges that name a
	// prerelease. An invalid range or no match yields domain.ErrResolution.
	Pick(versions []string, distTags map[string]string, rangeOrTag string) (string, error)

	// Satisfies reports whether version is within rng.
	Satisfies(version, rng string) bool
}
