package catalog

import (
	"context"
	"errors"
	"sort"
)

// ListLimit is the number of entries a listing shows before truncating.
const ListLimit = 10

// Source returns the raw build list, newest first.
type Source interface {
	Builds(ctx context.Context) ([]Build, error)
}

// Catalog is a per-invocation view of the published builds. The list is
// fetched from the Source on first use and kept in memory.
//
// Catalog is not safe for concurrent use; one update flow owns it.
type Catalog struct {
	source  Source
	builds  []Build
	fetched bool
}

// New creates a Catalog backed by source.
func New(source Source) *Catalog {
	if source == nil {
		panic("catalog source cannot be nil")
	}
	return &Catalog{source: source}
}

// Fetch returns the build list and whether the newest build differs from
// current. An empty current (bootloader device, forced update, listing)
// always reports an update as available.
//
// A fetch or parse failure is returned as *UnavailableError.
func (c *Catalog) Fetch(ctx context.Context, current string) ([]Build, bool, error) {
	builds, err := c.snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(builds) == 0 {
		return builds, false, nil
	}
	return builds, current == "" || !builds[0].Matches(current), nil
}

// Lookup finds the build named by URL, base name, or date tag. Firmware
// builds win over radio artifacts carrying the same tag.
func (c *Catalog) Lookup(ctx context.Context, name string) (Build, error) {
	builds, err := c.snapshot(ctx)
	if err != nil {
		return Build{}, err
	}

	var fallback *Build
	for i := range builds {
		if !builds[i].Matches(name) {
			continue
		}
		if builds[i].IsFirmware() {
			return builds[i], nil
		}
		if fallback == nil {
			fallback = &builds[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return Build{}, &BuildNotFoundError{Name: name}
}

// List returns the firmware builds a user can switch to.
func (c *Catalog) List(ctx context.Context) (Listing, error) {
	builds, err := c.snapshot(ctx)
	if err != nil {
		return Listing{}, err
	}
	return NewListing(builds, ListLimit), nil
}

func (c *Catalog) snapshot(ctx context.Context) ([]Build, error) {
	if c.fetched {
		return c.builds, nil
	}

	builds, err := c.source.Builds(ctx)
	if err != nil {
		var unavailable *UnavailableError
		if errors.As(err, &unavailable) {
			return nil, err
		}
		return nil, &UnavailableError{Err: err}
	}

	c.builds = builds
	c.fetched = true
	return builds, nil
}

// Listing is a truncated, newest-first view of the firmware builds.
type Listing struct {
	// Entries holds at most the requested limit of builds
	Entries []Build

	// Total is the number of firmware builds before truncation
	Total int

	// Truncated is set when Total exceeds len(Entries)
	Truncated bool
}

// NewListing filters builds down to firmware images, orders them newest
// first and keeps at most limit entries. URLs embed the release date, so
// a descending URL sort puts the newest dated build first and the undated
// current build ahead of all of them.
func NewListing(builds []Build, limit int) Listing {
	firmware := make([]Build, 0, len(builds))
	for _, b := range builds {
		if b.IsFirmware() {
			firmware = append(firmware, b)
		}
	}

	sort.SliceStable(firmware, func(i, j int) bool {
		return firmware[i].URL > firmware[j].URL
	})

	listing := Listing{
		Entries: firmware,
		Total:   len(firmware),
	}
	if limit > 0 && len(firmware) > limit {
		listing.Entries = firmware[:limit]
		listing.Truncated = true
	}
	return listing
}

// Label is what a listing shows for a build: its date tag, or "current"
// when the build is undated.
func Label(b Build) string {
	if tag := b.Tag(); tag != "" {
		return tag
	}
	return "current"
}
