// Package table implements the data-table view engine behind the user browser.
//
// A ViewState holds everything the table shows: a record Store snapshot, the
// column definitions, the free-text filter query, an optional sort directive,
// pagination and the row selection. Every visible row is derived from it by the
// pure pipeline
//
//	Store -> Filter -> Sort -> Paginate -> Derive
//
// and user actions move it forward through Reduce(state, event). Nothing derived
// is cached as separate mutable state.
//
// The Controller owns one ViewState and adds the only asynchronous piece,
// record refresh. Refreshes are numbered; a completion is applied only when it
// belongs to the most recently issued refresh, so overlapping refreshes resolve
// latest-wins. Superseded refreshes are left to finish and then ignored.
//
// Record values are assumed display-safe: sanitization of user-authored text
// happens before records enter a Store.
package table
