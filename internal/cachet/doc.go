// Package cachet reads component state from a Cachet status page and turns
// the full listing into a stream of status changes.
//
// # Listing
//
// Client issues authenticated GET requests (X-Cachet-Token) against
// {api_url}/components and walks the paginated collection page by page.
//
// # Feed
//
// Feed compares every listed component against a Snapshot of the last
// observed records:
//   - first sight stores the record and emits nothing
//   - a different status replaces the stored record and is emitted
//   - an unchanged status leaves the snapshot untouched
//
// The feed is a cursor: Next yields the next change and Watermark reports the
// created_at of the last component visited. Snapshot writes made before the
// caller stops iterating are kept.
package cachet
