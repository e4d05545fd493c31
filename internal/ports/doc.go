// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// In Clean Architecture / Hexagonal Architecture, ports are the boundaries
// between the application core and the outside world. They define what the
// application needs from external systems without specifying how those needs
// are fulfilled.
//
// # Port Interfaces
//
//   - [PeerChannel]: Message-framed duplex channel between device and bridge
//   - [TrialStore]: Trial file storage on the device
//   - [SensorSource]: Raw sensor capture on the device
//   - [SettingsStore]: Reactive key-value store shared with the UI
//   - [HostClient]: Client side of the host receiver contract
//   - [EndpointSource]: Current live host endpoint
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The device, bridge and discovery packages depend only on these interfaces.
// Infrastructure adapters (internal/adapters) implement these interfaces
// with concrete implementations (file system, HTTP, WebSocket, etc.).
package ports
