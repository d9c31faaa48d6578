package mcpserver

import (
	"strings"

	"github.com/dustin/go-humanize"
)

const guideURI = "nocel://guide"

const guideTemplate = `# Nocel Guide

Nocel keeps short-lived sessions of notes and files. No accounts exist.

## Sessions

- A session has a name and a type: ` + "`public`" + ` or ` + "`private`" + `.
- Names are sanitized: unsafe characters become ` + "`_`" + ` (e.g. "Trip Notes" is stored as ` + "`Trip_Notes`" + `).
- The same name may exist once per type.
- Public sessions are listed by ` + "`list_sessions`" + `; searching ignores case, spaces and punctuation.

## Private sessions

- Private sessions are never listed.
- They open with a combined code: the session name followed by 4 digits (e.g. ` + "`Diary4821`" + `).
- Pass the combined code as ` + "`code`" + ` to any tool instead of ` + "`name`" + `.

## Files

- Upload with ` + "`upload_file`" + ` from an http(s) URL or a base64 data URI.
- Stored names get a random suffix: ` + "`report.pdf`" + ` becomes ` + "`report_1a2b3c4d.pdf`" + `.
- Each session may hold at most {{quota}} of files. Uploads beyond the cap are rejected and leave usage unchanged.

## Expiry

Sessions and everything in them are deleted once they outlive the configured lifetime.
`

// Guide renders the usage guide for the given quota (0 = unlimited).
func Guide(quota int64) string {
	limit := "an unlimited amount"
	if quota > 0 {
		limit = humanize.IBytes(uint64(quota))
	}
	return strings.Replace(guideTemplate, "{{quota}}", limit, 1)
}
