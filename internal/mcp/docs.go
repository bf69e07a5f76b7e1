package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `entityhub stores JSON records in named collections.

- Call list_collections first; every other tool takes a collection.
- create_record assigns id, created_at and updated_at and defaults status to "active".
- update_record merges: only the fields you pass change.
- delete_record is permanent. To retire a record instead, update its status.
- Every tool answers with {success, data, message, error}. Read entityhub://docs/envelope for the shapes of data.
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "entityhub://docs/envelope",
		Name:        "envelope",
		Title:       "Result envelope",
		Description: "What each tool returns on success and on failure.",
		Content: `# Result envelope

Every tool returns:

` + "```json" + `
{"success": true, "data": ..., "message": "optional", "error": "on failure only"}
` + "```" + `

## data by tool

| tool | data |
|---|---|
| list_collections | {"collections": ["..."]} |
| create_record, get_record, update_record | the record |
| list_records | {"items": [...], "total": N, "limit": L, "offset": O} |
| delete_record | {"id": "..."} |
| get_stats | {"total_count": N, "active_count": A} |

## Records

Reserved fields: id (UUID), created_at and updated_at (RFC 3339 UTC),
status (defaults to "active"), user_id (owner, optional). Everything else is yours.

## Failures

A failed call sets isError and carries {code, message, recovery_hint} as text.
Codes: NOT_FOUND, INVALID_INPUT, STORAGE_UNAVAILABLE, STORAGE_ERROR.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
