// Package reversediff implements the reverse-diff algorithm at the core of
// the backup store: turning a self-contained base object into a patch that
// refers to a newer delta object, so the delta becomes self-contained and
// the base depends on it instead.
//
// [ReverseDiff] is the package's only entry point. It streams its output in
// strict order (header, filename, attributes, data area, index) and never
// buffers the whole object in memory — only a single reusable block buffer
// grown to the largest block seen so far.
package reversediff
