package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc *ops.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *ops.Service) *Handlers {
	return &Handlers{svc: svc}
}

// Request types for each tool

// CreateRequest represents the arguments for record_create.
type CreateRequest struct {
	PhotoRef string   `json:"photo_ref"`
	Tags     string   `json:"tags,omitempty"`
	TagList  []string `json:"tag_list,omitempty"`
	Comment  string   `json:"comment,omitempty"`
}

// IDRequest represents the arguments for tools addressing one record.
type IDRequest struct {
	ID string `json:"id"`
}

// PageRequest represents limit/offset arguments.
type PageRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// UpdateRequest represents the arguments for record_update.
type UpdateRequest struct {
	ID      string    `json:"id"`
	Tags    *string   `json:"tags,omitempty"`
	TagList *[]string `json:"tag_list,omitempty"`
	Comment *string   `json:"comment,omitempty"`
}

// SearchRequest represents the arguments for record_search.
type SearchRequest struct {
	Tag    string `json:"tag"`
	Prefix bool   `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SuggestRequest represents the arguments for record_suggest.
type SuggestRequest struct {
	Term  string `json:"term"`
	Limit int    `json:"limit,omitempty"`
}

// ExportRequest represents the arguments for record_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// ImportRequest represents the arguments for record_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// ScheduleRequest represents the arguments for alarm_schedule.
type ScheduleRequest struct {
	RecordID string `json:"record_id"`
	At       string `json:"at,omitempty"`
	In       string `json:"in,omitempty"`
}

// AlarmIDRequest represents the arguments for tools addressing one alarm.
type AlarmIDRequest struct {
	AlarmID string `json:"alarm_id"`
}

// ListAlarmsRequest represents the arguments for alarm_list.
type ListAlarmsRequest struct {
	RecordID string `json:"record_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// TapRequest represents the arguments for notification_tap.
type TapRequest struct {
	NotificationID string `json:"notification_id"`
}

// Handler implementations

// HandleCreate handles the record_create tool call.
func (h *Handlers) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CreateRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.CreateTaggedRecord(ctx, ops.CreateInput{
		PhotoRef: input.PhotoRef,
		RawTags:  input.Tags,
		Tags:     input.TagList,
		Comment:  input.Comment,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFetch handles the record_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Fetch(ctx, ops.FetchInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the record_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PageRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.List(ctx, ops.ListInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleUpdate handles the record_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Update(ctx, ops.UpdateInput{
		ID:      input.ID,
		RawTags: input.Tags,
		Tags:    input.TagList,
		Comment: input.Comment,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDelete handles the record_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.DeleteRecord(ctx, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSearch handles the record_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.SearchByTag(ctx, ops.SearchInput{
		Tag:    input.Tag,
		Prefix: input.Prefix,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSuggest handles the record_suggest tool call.
func (h *Handlers) HandleSuggest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SuggestRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Suggest(ctx, ops.SuggestInput{Term: input.Term, Limit: input.Limit})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleTags handles the record_tags tool call.
func (h *Handlers) HandleTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.svc.Tags(ctx))
}

// HandleExport handles the record_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Export(ctx, ops.ExportInput{Path: input.Path, Tag: input.Tag})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleImport handles the record_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Import(ctx, ops.ImportInput{Path: input.Path, Mode: ops.ImportMode(input.Mode)})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSchedule handles the alarm_schedule tool call. A platform rejection
// still stores the reminder, so it is reported as a success with a warning.
func (h *Handlers) HandleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScheduleRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.ScheduleAlarm(ctx, ops.ScheduleInput{
		RecordID: input.RecordID,
		At:       input.At,
		In:       input.In,
	})
	if err != nil && result == nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCancel handles the alarm_cancel tool call.
func (h *Handlers) HandleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AlarmIDRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.CancelAlarm(ctx, ops.CancelInput{AlarmID: input.AlarmID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleListAlarms handles the alarm_list tool call.
func (h *Handlers) HandleListAlarms(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListAlarmsRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.ListAlarms(ctx, ops.ListAlarmsInput{
		RecordID: input.RecordID,
		Status:   input.Status,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFire handles the alarm_fire tool call.
func (h *Handlers) HandleFire(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AlarmIDRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Fire(ctx, ops.FireInput{AlarmID: input.AlarmID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleReconcile handles the alarm_reconcile tool call.
func (h *Handlers) HandleReconcile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.svc.Reconcile(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleTap handles the notification_tap tool call.
func (h *Handlers) HandleTap(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TapRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.OnNotificationTapped(ctx, ops.TapInput{NotificationID: input.NotificationID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Storage and internal error details are not exposed to avoid leaking
// file paths or SQL.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if pErr := errors.As(err); pErr != nil {
		msg := pErr.Message
		// Keep wrapper context such as "line 3: ..."
		if prefix := strings.TrimSuffix(err.Error(), pErr.Error()); prefix != err.Error() {
			msg = prefix + msg
		}
		errorObj := map[string]any{
			"code":    pErr.Code,
			"message": msg,
			"status":  pErr.Status,
		}
		if pErr.Code == errors.ErrInternal || pErr.Code == errors.ErrStorage {
			errorObj["message"] = "an internal error occurred"
		} else if pErr.Details != nil {
			errorObj["details"] = pErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
