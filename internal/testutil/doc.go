// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing messages, intents and workflows and
// asserting on log output. It also ships testify based handler doubles.
// These helpers are not intended for production usage.
package testutil
