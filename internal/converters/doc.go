// Package converters provides implementations of the Converter
// interface for the supported document formats, plus the registry
// that dispatches raw documents to them by declared type.
//
// Converters are registered with the Registry at startup.
package converters
