// Package buildinfo exposes the version stamped at link time. The
// health and debug endpoints report it so deployed solver instances
// can be told apart.
package buildinfo

// Set via -ldflags "-X fleetsolve/internal/buildinfo.Version=..." at
// release time; the zero build is "dev".
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
}

// String renders "version (commit)" for startup logs, omitting the
// commit when it was not stamped.
func String() string {
    if Commit == "" {
        return Version
    }
    return Version + " (" + Commit + ")"
}
