// Package availability defines the core types shared across subsystems: sources,
// snapshots, date keys, the adapter and page contracts, and the scrape error taxonomy.
package availability
