// Package announce turns a submitted data block into per-lab channel
// announcements.
//
// A data block holds one entry per line, "<lab>-<group> - <tasks>". Entries are
// grouped by their lower-cased lab token (ParseGroups), each group is sent to
// the text channel of the same name inside one category (Dispatcher), and the
// per-channel outcome is rendered for the invoking user (Summarize).
//
// Lines without a leading "<letters/digits>-" token are not errors; they are
// dropped.
package announce
