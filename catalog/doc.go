// Package catalog discovers published firmware and radio-patch builds and
// decides whether one applies to the running tool.
//
// # Catalog
//
// A Catalog wraps a Source (normally an HTTPSource pointed at the build
// server) and answers three questions for a single invocation:
//
//	cat := catalog.New(source)
//
//	// Is there something newer than what the device runs?
//	builds, updateAvailable, err := cat.Fetch(ctx, "2014-05-20")
//
//	// Which build does "-b 2014-04-30" mean?
//	build, err := cat.Lookup(ctx, "2014-04-30")
//
//	// What can the user switch to?
//	listing, err := cat.List(ctx)
//
// The snapshot is fetched at most once and held in memory only. The
// server is assumed to publish builds newest first.
//
// # Compatibility
//
// Every build declares the range of tool versions allowed to flash it.
// IsCompatible compares versions as plain strings, so "1.10.0" sorts
// before "1.9.0". Published ranges were written against that ordering.
//
// # Error Handling
//
//   - UnavailableError: the catalog could not be fetched or parsed
//   - BuildNotFoundError: no build matches an explicit name
//   - IncompatibleCLIError: the tool version is outside a build's range
package catalog
