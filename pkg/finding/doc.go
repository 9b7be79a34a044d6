// Package finding provides the shared data model for detection results:
// severities, rule categories, extracted data and the result record that
// is handed to sinks.
//
// Every other package in the engine speaks in these types so that the
// matcher, analyzer, risk assessor and output layers never need to import
// each other.
package finding
