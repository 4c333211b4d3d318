package mcpserver

// RecordFormatContract describes the record format accepted by the batch
// ingestion endpoints and the spool inbox.
const RecordFormatContract = `# Fennec Record Format Contract

Published notes reach fennec as batches of records. A batch is a JSON array.

## Upsert record

` + "```" + `json
{
  "frontmatter": {
    "id": "go-channels",
    "title": "Channels",
    "description": "Typed pipes between goroutines",
    "order": 2,
    "category": "go",
    "tags": ["concurrency", "runtime"]
  },
  "html": "<h1>Channels</h1>..."
}
` + "```" + `

## Rules

1. **` + "`" + `id` + "`" + ` is required** and stays stable across republishes. It is the note's identity.
2. **` + "`" + `category` + "`" + ` is required.** Categories are created on first use and removed when
   their last note is deleted.
3. **` + "`" + `tags` + "`" + `** is the full tag set of the note. Tags missing from a republish are
   unlinked from the note; the tag itself is never deleted. Blank names are ignored.
4. **A note keeps its first category.** Republishing a note with another category updates its
   content but does not move it.
5. **` + "`" + `order` + "`" + `** sorts notes inside a category; ties break on title.
6. Ids must be unique within one batch.

## Delete request

` + "```" + `json
[{"category": "go", "note_id": "go-channels"}]
` + "```" + `

` + "`" + `note_id` + "`" + ` is required. Deleting a note that does not exist is reported as skipped.

## Authoring frontmatter

Markdown sources carry the same fields as a YAML block and can be checked offline with
` + "`" + `fennec validate <files>` + "`" + `:

` + "```" + `markdown
---
id: go-channels
title: Channels
description: Typed pipes between goroutines
order: 2
category: go
tags:
  - concurrency
---
` + "```" + `
`
