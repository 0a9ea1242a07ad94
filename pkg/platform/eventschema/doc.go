// Package eventschema validates event payloads against versioned JSON
// Schemas, classifies compatibility between two versions of the same
// event type, and carries migration functions the replay engine uses
// to upgrade old payloads before redispatch.
package eventschema
