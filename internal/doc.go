// Package internal holds the parts of handson that are not public API.
//
//   - api: HTTP handlers for registration, login, user lookup and health
//   - audit: async audit event dispatch and sinks
//   - config: server configuration from YAML, .env and the environment
//   - flows: login and registration orchestration behind the Engine
//   - logging: slog construction from level and format strings
//   - rate: the in-memory fixed-window request tracker
//   - storage: memory and postgres user stores
package internal
