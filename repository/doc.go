// Package repository provides a generic Bun repository for models that were
// registered from a struct and published in a registry.
package repository
