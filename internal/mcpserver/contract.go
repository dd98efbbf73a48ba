package mcpserver

// NoteRules describes how notes are addressed and validated so that LLM
// consumers address the right note when updating or deleting.
const NoteRules = `# Chainpad Note Rules

Notes are records owned by the connected account on the notepad ledger.

## Fields

- ` + "`" + `index` + "`" + ` is the note's position in the account's list. It is NOT a stable id.
- ` + "`" + `content` + "`" + ` is free text and must not be empty.
- ` + "`" + `tag` + "`" + ` is an optional free-text label. It is dropped when the deployment
  does not support tags.
- ` + "`" + `timestamp` + "`" + ` is assigned by the ledger when the note is written (Unix seconds).

## Rules

1. **Read before you write.** Call ` + "`" + `list_notes` + "`" + ` (or ` + "`" + `search_notes` + "`" + `) and use the
   ` + "`" + `index` + "`" + ` values from that result. Indices from an older result may point at a
   different note.
2. **Deleting shifts indices.** After deleting index N, every note above N moves
   down by one. List again before the next update or delete.
3. **One write at a time.** A second write while one is confirming fails with
   ` + "`" + `busy` + "`" + `. Wait for the first to finish and retry.
4. **Writes are final once confirmed.** A failed write changes nothing and may be
   retried as is.
5. **Stale list.** When the list could not be reloaded after a write, updates and
   deletes are refused until ` + "`" + `refresh` + "`" + ` succeeds.
`
