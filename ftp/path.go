package ftp

import (
	"path"
	"strings"
)

// Virtual paths are what the client sees: forward-slash separated,
// rooted at "/", independent of the host separator. The session keeps
// its working directory in this form and the storage layer maps it onto
// the sandbox root.

// NormalizeVirtual canonicalises a virtual path: forces a leading
// slash, collapses duplicate slashes, resolves "." and "..", and never
// climbs above the root. The result carries no trailing slash except
// for "/" itself.
func NormalizeVirtual(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// JoinVirtual resolves a client-supplied argument against the current
// virtual directory. An absolute argument replaces cwd; a relative one
// is appended. The result is normalised.
func JoinVirtual(cwd, arg string) string {
	if arg == "" {
		return NormalizeVirtual(cwd)
	}
	if strings.HasPrefix(arg, "/") {
		return NormalizeVirtual(arg)
	}
	return NormalizeVirtual(path.Join(cwd, arg))
}

// ParentVirtual returns the parent of a virtual path; "/" stays "/".
func ParentVirtual(p string) string {
	return NormalizeVirtual(path.Dir(NormalizeVirtual(p)))
}

// BaseVirtual returns the final element of a virtual path.
func BaseVirtual(p string) string {
	return path.Base(NormalizeVirtual(p))
}
