// Package interp manages the long-lived interpreter processes behind the
// engine modules.
//
// Each Process runs in its own process group inside a private working
// directory. Replies come back on a dedicated pipe, either the child's stdout
// or fd 3. Stray output from user code goes to a side log instead. Kill
// takes down the whole group without coordinating with readers, which is
// what lets a timed-out execution be stopped from the outside.
package interp
