// Package dedupe provides a bounded, time-windowed claim cache used to avoid
// issuing the same side-effecting write twice within a short window.
package dedupe
