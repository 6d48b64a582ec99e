// Package notice defines the domain types and collaborator interfaces shared by
// the publisher and consumer daemons.
//
// A Notice is one housing-lottery announcement pulled from the upstream
// disclosure API. The publisher claims each notice exactly once through a
// DedupStore, persists the raw record, and emits a compact NoticeEvent on the
// message channel. The consumer turns each event into a CoordinateRecord
// (address resolution) and, when an attachment exists, an EnrichmentRecord
// (document extraction).
package notice
