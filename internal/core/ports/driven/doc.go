// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - TaskRepository: task record and audio clip persistence. Three
//     interchangeable adapters exist (memory, sqlite, postgres); exactly one
//     is live for writes at a time, selected by the storage factory.
//   - ConfigStore: application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - AnalysisService: extracts structured task content from page photos.
//     Without it, only simulated imports work.
//   - SpeechService: synthesizes spoken explanations. Without it, audio
//     generation is disabled; persisted clips remain playable.
//   - MediaStore: remote blob storage for previews and audio. Only the
//     postgres adapter uses one; embedded adapters store media inline.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
