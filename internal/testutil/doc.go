// Package testutil provides testing utilities and test fixtures for the
// engine. It includes helpers for creating test data, assertions, and mock
// time providers for deterministic testing.
package testutil
