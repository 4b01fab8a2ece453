// Package app composes the wallet layer into a running application.
//
// # Architecture Role
//
// The app package sits above the domain services and is responsible for
// wiring them to their stores and the approval authority client, and for
// managing background component lifecycles. It holds no business logic;
// that belongs in internal/app/services/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/wallet/      # Domain models and validation
//	├── storage/            # Store interfaces
//	│   ├── memory/         # In-memory implementation for tests and dev
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── services/           # Business logic (ledger, journal, withdrawal)
//	├── httpapi/            # HTTP handlers and routing
//	├── system/             # Lifecycle management
//	└── metrics/            # Prometheus instrumentation
//
// # Adding a New Domain
//
//  1. Create models in internal/app/domain/
//  2. Add a store interface to internal/app/storage/interfaces.go
//  3. Implement it in storage/memory/ and storage/postgres/
//  4. Create the service in internal/app/services/
//  5. Wire it in application.go and expose it in httpapi/
package app
