package catalog

// Unbounded is the wildcard accepted for min_cli and max_cli.
const Unbounded = "*"

// IsCompatible reports whether self lies within the build's declared
// min_cli/max_cli range. Bounds that are empty or "*" are open.
//
// Versions are compared as plain strings. "1.10.0" < "1.9.0" under this
// ordering and published ranges depend on it.
//
// An empty self version is never compatible: a tool that cannot name its
// own version cannot be placed inside a range.
func IsCompatible(self string, b Build) bool {
	if self == "" {
		return false
	}
	if b.MinCLI != "" && b.MinCLI != Unbounded && b.MinCLI > self {
		return false
	}
	if b.MaxCLI != "" && b.MaxCLI != Unbounded && b.MaxCLI < self {
		return false
	}
	return true
}

// CheckCompatible is IsCompatible returning an *IncompatibleCLIError that
// carries the declared range.
func CheckCompatible(self string, b Build) error {
	if IsCompatible(self, b) {
		return nil
	}
	return &IncompatibleCLIError{
		Min:  b.MinCLI,
		Max:  b.MaxCLI,
		Self: self,
	}
}
