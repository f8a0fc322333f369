package mcpserver

// ReviewGuide describes the queues and the feedback each one accepts, so
// that LLM consumers can drive a review session without guessing tokens.
const ReviewGuide = `# Lectern Review Guide

Every note in a library sits in exactly one queue. Call ` + "`" + `due_today` + "`" + ` to get
the notes to review, then ` + "`" + `record_feedback` + "`" + ` once per note.

## Queues and feedback

| Queue            | Accepted feedback                 | Effect                                   |
|------------------|-----------------------------------|------------------------------------------|
| new              | skip, viewed, again, good         | skip waits a day, anything else starts processing |
| processing       | skip, viewed, again               | rotates every few days, again keeps it due |
| intermediate     | decrease, maintain, increase      | grows or shrinks the review interval     |
| spaced-casual    | again, hard, good, easy           | SM-2 scheduling, lenient                 |
| spaced-standard  | again, hard, good, easy           | SM-2 scheduling                          |
| spaced-strict    | again, hard, good, easy           | SM-2 scheduling, strict                  |
| archived         | none                              | never due                                |

Feedback that the note's queue does not accept is rejected and changes nothing.

## Excerpts

- ` + "`" + `extract` + "`" + ` copies a range of a parent note into a child file and queues it.
- Ranges are 1-based and inclusive. ` + "`" + `text-lines` + "`" + ` counts lines, ` + "`" + `flashcard` + "`" + `
  counts characters, ` + "`" + `pdf-page` + "`" + ` counts pages, ` + "`" + `pdf-text` + "`" + ` takes a page and a
  line for each end.
- Extracting the same range twice fails with a duplicate error.
- After editing a parent, call ` + "`" + `validate_range` + "`" + ` on its children to re-anchor
  ranges that moved.
`
