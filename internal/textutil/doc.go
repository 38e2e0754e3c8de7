// Package textutil sanitizes user-supplied names for safe use as
// filenames, directory segments, and remote path components.
package textutil
