package mcp

type ListCollectionsParams struct{}

type CreateRecordParams struct {
	Collection string         `json:"collection" jsonschema:"collection to write to (see list_collections)"`
	Payload    map[string]any `json:"payload" jsonschema:"record fields; id, created_at and updated_at are assigned by the server"`
}

type GetRecordParams struct {
	Collection string `json:"collection" jsonschema:"collection to read from"`
	ID         string `json:"id" jsonschema:"record id"`
}

type ListRecordsParams struct {
	Collection string `json:"collection" jsonschema:"collection to read from"`
	UserID     string `json:"user_id,omitempty" jsonschema:"only records owned by this user"`
	Limit      int    `json:"limit,omitempty" jsonschema:"page size, default 50, max 100"`
	Offset     int    `json:"offset,omitempty" jsonschema:"number of matching records to skip"`
}

type UpdateRecordParams struct {
	Collection string         `json:"collection" jsonschema:"collection to write to"`
	ID         string         `json:"id" jsonschema:"record id"`
	Patch      map[string]any `json:"patch" jsonschema:"fields to overwrite; fields not listed are left unchanged"`
}

type DeleteRecordParams struct {
	Collection string `json:"collection" jsonschema:"collection to delete from"`
	ID         string `json:"id" jsonschema:"record id"`
}

type GetStatsParams struct {
	Collection string `json:"collection" jsonschema:"collection to count"`
	UserID     string `json:"user_id,omitempty" jsonschema:"only count records owned by this user"`
}
