// Package libgit2 implements the vcs primitives on top of libgit2 through
// git2go. It needs cgo and a system libgit2, so the implementation is only
// compiled with the libgit2 build tag; without it the package is empty and
// importing it registers nothing.
package libgit2
