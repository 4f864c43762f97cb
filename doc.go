// Package modelboot bootstraps named database connections for a host
// application: each connection is opened, its model definitions are loaded
// and associated, and the resulting registries are returned or published
// into the host, one connection at a time.
package modelboot
