// Package watch keeps a site current: it rebuilds when sources or the
// config file change, and optionally on a fixed interval.
package watch
