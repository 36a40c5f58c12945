package mcpserver

// EntryFormatContract describes the canonical journal entry format that
// LLM consumers should follow when creating or updating entries.
const EntryFormatContract = `# Driftmark Entry Format Contract

Every journal entry stored in Driftmark MUST follow this structure.

## Structure

Entries are plain Markdown files in a flat namespace. There is no
frontmatter and no directory hierarchy.

` + "```" + `markdown
# Optional heading

Body text in standard Markdown.
` + "```" + `

## Rules

1. **File names end with ` + "`" + `.md` + "`" + `** and contain no path separators.
2. **A ` + "`" + `YYYY-MM-DD` + "`" + ` name prefix sets the entry's creation date**
   (e.g. ` + "`" + `2026-08-31-morning.md` + "`" + `). Without a prefix the creation
   date is the time the file was first seen.
3. **Encoding** is UTF-8.
4. **Names are the identity.** Renaming an entry is a delete plus a
   create; the new file starts with fresh sync history.
5. **Keep one thought per entry.** Entries are listed newest first, so
   short, dated files work best.

## Sync behavior

- Entries live under ` + "`" + `entries/` + "`" + ` in the connected repository.
- ` + "`" + `write_entry` + "`" + ` saves locally and pushes in the background when a
  repository is connected.
- ` + "`" + `sync_now` + "`" + ` reconciles both sides. When the same entry changed in
  both places it is reported as a conflict and nothing is overwritten.

## Example

` + "```" + `markdown
# Monday, August 31

Slept badly. The harbor was loud all night.

Things to remember:
- call the landlord about the radiator
- the ferry schedule changes next week
` + "```" + `
`
