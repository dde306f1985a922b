// Package contextengine implements ContextEngine: a filtered directory
// walk, keyword ranking, token-budgeted chunk assembly, and
// snapshot/delta computation over a project tree.
//
// Glob matching is hand-rolled rather than imported, grounded on
// bureau-foundation-bureau's lib/principal/match.go (its own doublestar-style
// path matcher for ACL rules) — no pack repo imports a third-party glob
// library, so this is the documented stdlib-adjacent fallback (see
// DESIGN.md).
package contextengine
