// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Connector: Discovers and reads raw documents from a data source
//   - Converter: Transforms raw document bytes into structured form
//   - ConverterRegistry: Selects the appropriate converter by document type
//   - EmbeddingClient: Generates vector embeddings in batches
//   - PersistenceStore: Source/chunk persistence and the three search passes
//   - ConfigStore: Application configuration
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or converter package
package driven
