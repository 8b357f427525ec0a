// Package connectors provides implementations of the Connector
// interface for document sources. The filesystem connector is the
// primary implementation; connectors are handed to the ingestion
// service through a ConnectorFactory.
package connectors
