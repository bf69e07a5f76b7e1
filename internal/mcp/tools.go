package mcp

import (
	"context"
	"encoding/json"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/entityhub/internal/entity"
)

type tools struct {
	registry Registry
}

func registerTools(server *sdkmcp.Server, registry Registry) {
	t := &tools{registry: registry}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_collections",
		Description: "List the collections this server stores records in",
	}, t.listCollections)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_record",
		Description: "Create a record in a collection; returns the stored record including its generated id",
	}, t.createRecord)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_record",
		Description: "Get one record by id",
	}, t.getRecord)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_records",
		Description: "List a page of records with the total count of matches",
	}, t.listRecords)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_record",
		Description: "Merge fields into an existing record; unspecified fields are left unchanged",
	}, t.updateRecord)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_record",
		Description: "Permanently delete a record",
	}, t.deleteRecord)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_stats",
		Description: "Count records and active records in a collection",
	}, t.getStats)
}

func (t *tools) listCollections(_ context.Context, _ *sdkmcp.CallToolRequest, _ ListCollectionsParams) (*sdkmcp.CallToolResult, entity.Result, error) {
	return respond(entity.Result{
		Success: true,
		Data:    map[string]any{"collections": t.registry.Names()},
		Kind:    entity.KindOK,
	})
}

func (t *tools) createRecord(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateRecordParams) (*sdkmcp.CallToolResult, entity.Result, error) {
	store, failed := t.store(in.Collection)
	if store == nil {
		return respond(failed)
	}
	return respond(store.Create(ctx, callerFrom(ctx).Stamp(in.Payload)))
}

func (t *tools) getRecord(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetRecordParams) (*sdkmcp.CallToolResult, entity.Result, error) {
	store, failed := t.store(in.Collection)
	if store == nil {
		return respond(failed)
	}
	return respond(store.Get(ctx, in.ID))
}

func (t *tools) listRecords(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListRecordsParams) (*sdkmcp.CallToolResult, entity.Result, error) {
	store, failed := t.store(in.Collection)
	if store == nil {
		return respond(failed)
	}
	return respond(store.List(ctx, entity.ListOptions{
		UserID: callerFrom(ctx).Owner(in.UserID),
		Limit:  in.Limit,
		Offset: in.Offset,
	}))
}

func (t *tools) updateRecord(ctx context.Context, _ *sdkmcp.CallToolRequest, in UpdateRecordParams) (*sdkmcp.CallToolResult, entity.Result, error) {
	store, failed := t.store(in.Collection)
	if store == nil {
		return respond(failed)
	}
	return respond(store.Update(ctx, in.ID, in.Patch))
}

func (t *tools) deleteRecord(ctx context.Context, _ *sdkmcp.CallToolRequest, in DeleteRecordParams) (*sdkmcp.CallToolResult, entity.Result, error) {
	store, failed := t.store(in.Collection)
	if store == nil {
		return respond(failed)
	}
	return respond(store.Delete(ctx, in.ID))
}

func (t *tools) getStats(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetStatsParams) (*sdkmcp.CallToolResult, entity.Result, error) {
	store, failed := t.store(in.Collection)
	if store == nil {
		return respond(failed)
	}
	return respond(store.Stats(ctx, callerFrom(ctx).Owner(in.UserID)))
}

// store resolves a collection, or returns the not-found Result to send back.
func (t *tools) store(name string) (*entity.Store, entity.Result) {
	store, err := t.registry.Store(name)
	if err != nil {
		return nil, entity.Result{Success: false, Error: err.Error(), Kind: entity.KindNotFound}
	}
	return store, entity.Result{}
}

// respond sends res as structured content. Failures are tool errors whose
// text is the mapped APIError, so the model sees a recovery hint.
func respond(res entity.Result) (*sdkmcp.CallToolResult, entity.Result, error) {
	apiErr := MapResult(res)
	if apiErr == nil {
		return nil, res, nil
	}
	text, err := json.Marshal(apiErr)
	if err != nil {
		text = []byte(apiErr.Error())
	}
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(text)}},
	}, res, nil
}
