// Package language normalizes language codes and validates translation
// pairs. Backends declare the pair they serve; the registry compares
// normalized forms so "EN"/"eng"/"en-US" all resolve to the same backend.
package language
