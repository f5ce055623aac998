// Package filter compiles grid filter input into store predicates.
//
// Two inputs are supported. A filter expression is a small boolean language
// typed into a column header:
//
//	defect && !closed
//	(bug || defect)
//	!(done || wontfix)
//
// Terms are case-insensitive regular expression matches on the column.
// && and || may not be mixed at one nesting level without parentheses.
//
// Structured filters are (field, operator, value) triples sent by the grid.
// Assemble combines them with sort keys into a Predicate and a SortSpec that
// the storage layer turns into SQL.
package filter
