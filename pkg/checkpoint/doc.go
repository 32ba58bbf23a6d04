// Package checkpoint persists extraction progress so an interrupted run can
// resume.
//
// The checkpoint lives next to the output as "<output>.checkpoint" and holds
// the last durably written record id, the running count and the save time.
// It is written after every flushed batch, replaced atomically, and removed
// once the output file is published.
package checkpoint
