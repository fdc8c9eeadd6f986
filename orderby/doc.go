// Package orderby reorders slices in memory, either by a registered field
// name or by an explicit comparer. Sorting is advisory: an unknown field, a
// nil comparer or a panicking accessor leaves the input order untouched.
package orderby
