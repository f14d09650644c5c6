package mcpserver

// NoteFormatContract describes how note text is interpreted when a note is
// created, so LLM consumers can control the derived title and tags.
const NoteFormatContract = `# Glide Note Format

A note's transcript is plain Markdown. Title and tags are derived from it
when they are not given explicitly.

## Title

1. A ` + "`title`" + ` argument always wins.
2. Otherwise the ` + "`title`" + ` key of leading YAML front matter is used.
3. Otherwise the first Markdown heading.
4. Otherwise the first non-empty line, cut to 80 characters.

## Tags

- Inline hashtags in the body (` + "`#project-x`" + `) become tags.
- Front matter ` + "`tags`" + ` may be a YAML list or a comma-separated string.
- Tags passed as arguments are kept first; derived tags are appended
  without duplicates.

## Folders

- Notes may be filed into any user folder by id. Use ` + "`folder_tree`" + ` to
  discover folder ids.
- The "All Notes" folder is a system view and cannot hold notes.

## Example

` + "```" + `markdown
---
title: Weekly standup
tags: [meeting-notes]
---

Discussed the #roadmap and next steps for #project-x.
` + "```" + `
`
