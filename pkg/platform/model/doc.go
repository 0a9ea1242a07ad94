// Package model implements schema composition and migration planning
// (C9): plugins contribute Models and field extensions, Compose merges
// them against the core schema, and Diff emits a topologically ordered
// migration op list between two composed schemas. DDL rendering is
// delegated to a SqlDialect.
package model
