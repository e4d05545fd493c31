// Package domain contains the core domain entities and value objects for sensorrelay.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (HTTP, file system, logging) and
// contains only pure business logic.
//
// # Entities
//
//   - [TrialName]: Parsed name of a recorded trial file (sensor prefix and start time)
//   - [Batch]: One fixed-size chunk of tri-axial samples with its sequence index
//   - [Envelope]: A relay command (action + payload) exchanged with the device
//   - [Listing]: A file announced by the device along with its batch count
//   - [RecordingState]: Whether a sensor group is currently capturing
//   - [Endpoint]: Address of a live host receiver
//
// # Design Principles
//
// Domain entities are:
//   - Free of infrastructure dependencies
//   - Focused on business rules and invariants
//   - Testable without mocks or external systems
package domain
