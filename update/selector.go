package update

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/moffa90/go-fwupdate/catalog"
	"github.com/moffa90/go-fwupdate/device"
)

var (
	urlPattern       = regexp.MustCompile(`^(ftp|http|https)://`)
	localPathPattern = regexp.MustCompile(`^[./\\]`)
)

// IsURL reports whether target is an explicit download URL.
func IsURL(target string) bool {
	return urlPattern.MatchString(target)
}

// IsLocalPath reports whether target is a local file path. Only paths
// starting with '.', '/' or '\' qualify, so a bare build name is never
// mistaken for a file.
func IsLocalPath(target string) bool {
	return localPathPattern.MatchString(target)
}

// Intent is what the user asked for on the command line.
type Intent struct {
	// List shows the available builds
	List bool

	// Target is an explicit URL or local path
	Target string

	// Build names a catalog build
	Build string

	// Wifi names a radio patch version
	Wifi string

	// Force updates even when the device is already current
	Force bool

	// DFU targets a device in bootloader mode
	DFU bool
}

// Resolver turns catalog-relative paths into download URLs.
type Resolver interface {
	Resolve(rel string) string
}

// Selector turns an Intent and a probed device State into a Plan. All
// catalog and compatibility decisions are made here, before execution.
type Selector struct {
	catalog     *catalog.Catalog
	resolver    Resolver
	selfVersion string
	config      selectorConfig
}

// NewSelector creates a Selector. selfVersion is the running tool's
// version, compared against each build's min_cli/max_cli range.
func NewSelector(cat *catalog.Catalog, resolver Resolver, selfVersion string, opts ...SelectorOption) *Selector {
	if cat == nil {
		panic("catalog cannot be nil")
	}
	if resolver == nil {
		panic("resolver cannot be nil")
	}

	config := selectorConfig{radioTiming: DefaultRadioTiming()}
	for _, opt := range opts {
		opt(&config)
	}

	return &Selector{
		catalog:     cat,
		resolver:    resolver,
		selfVersion: selfVersion,
		config:      config,
	}
}

// Select resolves intent against the device state. Precedence: list,
// explicit URL, explicit local path, --build, --wifi (without --dfu),
// then the latest-build path.
func (s *Selector) Select(ctx context.Context, intent Intent, state device.State) (Plan, error) {
	switch {
	case intent.List:
		listing, err := s.catalog.List(ctx)
		if err != nil {
			return nil, err
		}
		return ListBuilds{Listing: listing}, nil

	case intent.Target != "" && IsURL(intent.Target):
		s.logDebug("explicit URL bypasses catalog", "url", intent.Target)
		return ApplyFirmware{
			Source: Source{Kind: SourceURL, Location: intent.Target},
		}, nil

	case intent.Target != "" && IsLocalPath(intent.Target):
		s.logDebug("explicit local path bypasses catalog", "path", intent.Target)
		return ApplyFirmware{
			Source: Source{Kind: SourceFile, Location: intent.Target},
		}, nil

	case intent.Target != "":
		return nil, &InvalidTargetError{Target: intent.Target}

	case intent.Build != "":
		return s.selectBuild(ctx, intent.Build)

	case intent.Wifi != "" && !intent.DFU:
		return ApplyRadioOnly{
			Radio: s.radioPatch(ctx, catalog.RadioVersion(intent.Wifi)),
		}, nil
	}

	return s.selectLatest(ctx, intent, state)
}

// selectBuild resolves an explicit --build. It never adds a radio patch.
func (s *Selector) selectBuild(ctx context.Context, name string) (Plan, error) {
	build, err := s.catalog.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := catalog.CheckCompatible(s.selfVersion, build); err != nil {
		return nil, err
	}
	return ApplyFirmware{
		Source: s.buildSource(build),
		Build:  &build,
	}, nil
}

func (s *Selector) selectLatest(ctx context.Context, intent Intent, state device.State) (Plan, error) {
	current := ""
	if !intent.Force && !intent.DFU && state.Mode == device.ModeNormal {
		current = state.FirmwareVersion
	}

	builds, available, err := s.catalog.Fetch(ctx, current)
	if err != nil {
		if errors.Is(err, catalog.ErrCatalogUnavailable) {
			return NoOp{Reason: NoOpCatalogUnavailable, Err: err}, nil
		}
		return nil, err
	}
	if len(builds) == 0 {
		return NoOp{Reason: NoOpNoBuilds}, nil
	}
	if !available {
		return NoOp{Reason: NoOpAlreadyLatest, Current: current}, nil
	}

	build := builds[0]
	if err := catalog.CheckCompatible(s.selfVersion, build); err != nil {
		return nil, err
	}

	plan := ApplyFirmware{
		Source: s.buildSource(build),
		Build:  &build,
	}

	switch {
	case intent.DFU && intent.Wifi != "":
		radio := s.radioPatch(ctx, catalog.RadioVersion(intent.Wifi))
		plan.Radio = &radio
	case radioOutdated(state.RadioVersion, build.Wifi):
		radio := s.radioPatch(ctx, build.Wifi)
		plan.Radio = &radio
	}

	s.logDebug("selected latest build", "build", build.URL, "radio", plan.Radio != nil)
	return plan, nil
}

func (s *Selector) buildSource(build catalog.Build) Source {
	return Source{
		Kind:     SourceURL,
		Location: s.resolver.Resolve(build.URL),
		Digest:   build.Digest,
	}
}

// radioPatch plans the radio image for version. A digest is attached when
// the catalog also lists the patch; its absence is not an error.
func (s *Selector) radioPatch(ctx context.Context, version catalog.RadioVersion) RadioPatch {
	rel := catalog.RadioPath(version)
	source := Source{Kind: SourceURL, Location: s.resolver.Resolve(rel)}

	if build, err := s.catalog.Lookup(ctx, rel); err == nil {
		source.Digest = build.Digest
	} else {
		s.logDebug("radio patch not listed in catalog", "path", rel, "error", err)
	}

	return RadioPatch{
		Source:      source,
		Version:     version,
		RadioTiming: s.config.radioTiming,
	}
}

// radioOutdated reports whether the device radio needs the build's patch.
// Versions compare numerically when both parse as numbers ("1.28" and
// "1.280" are the same patch), as strings otherwise. Unknown versions on
// either side never trigger a patch.
func radioOutdated(deviceVersion string, buildVersion catalog.RadioVersion) bool {
	if deviceVersion == "" || buildVersion == "" {
		return false
	}
	want := string(buildVersion)
	d, errD := strconv.ParseFloat(deviceVersion, 64)
	w, errW := strconv.ParseFloat(want, 64)
	if errD == nil && errW == nil {
		return d != w
	}
	return deviceVersion != want
}

func (s *Selector) logDebug(msg string, keysAndValues ...interface{}) {
	if s.config.logger != nil {
		s.config.logger.Debug(msg, keysAndValues...)
	}
}
