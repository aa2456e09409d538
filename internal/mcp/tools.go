package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions. Argument names match the json tags of the request
// structs in handlers.go.

var recordCreateToolDef = mcp.NewTool("record_create",
	mcp.WithDescription("Tag a photo: store a record with comma-separated tags and an optional comment. Tags are trimmed, empty entries dropped and duplicates removed, keeping first-seen order."),
	mcp.WithTitleAnnotation("Create Tagged Record"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithIdempotentHintAnnotation(false),
	mcp.WithOpenWorldHintAnnotation(false),
	mcp.WithString("photo_ref",
		mcp.Required(),
		mcp.Description("Opaque reference to the photo (URI or asset id)"),
	),
	mcp.WithString("tags",
		mcp.Description("Comma-separated tags, e.g. \"cat, dog\""),
	),
	mcp.WithArray("tag_list",
		mcp.Description("Tags as a list, appended after tags"),
		mcp.WithStringItems(),
	),
	mcp.WithString("comment",
		mcp.Description("Free-text note shown with the reminder"),
	),
)

var recordFetchToolDef = mcp.NewTool("record_fetch",
	mcp.WithDescription("Fetch a record by id together with its alarm history."),
	mcp.WithTitleAnnotation("Fetch Record"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Record id"),
	),
)

var recordListToolDef = mcp.NewTool("record_list",
	mcp.WithDescription("List records, newest first."),
	mcp.WithTitleAnnotation("List Records"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithNumber("limit",
		mcp.Description("Max results (default: 20, max: 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Results to skip"),
	),
)

var recordUpdateToolDef = mcp.NewTool("record_update",
	mcp.WithDescription("Replace the tags and/or comment of a record. Omitted fields are unchanged. A pending reminder keeps its time."),
	mcp.WithTitleAnnotation("Update Record"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Record id"),
	),
	mcp.WithString("tags",
		mcp.Description("New comma-separated tags; an empty string clears them"),
	),
	mcp.WithArray("tag_list",
		mcp.Description("New tags as a list"),
		mcp.WithStringItems(),
	),
	mcp.WithString("comment",
		mcp.Description("New comment"),
	),
)

var recordDeleteToolDef = mcp.NewTool("record_delete",
	mcp.WithDescription("Delete a record. Its alarms are removed and any pending reminder is cancelled."),
	mcp.WithTitleAnnotation("Delete Record"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithIdempotentHintAnnotation(false),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Record id"),
	),
)

var recordSearchToolDef = mcp.NewTool("record_search",
	mcp.WithDescription("Find records carrying a tag. Matching is exact and case-sensitive unless prefix is set."),
	mcp.WithTitleAnnotation("Search By Tag"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithString("tag",
		mcp.Required(),
		mcp.Description("Tag to look up"),
	),
	mcp.WithBoolean("prefix",
		mcp.Description("Match every tag starting with tag"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Max results (default: 20, max: 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Results to skip"),
	),
)

var recordSuggestToolDef = mcp.NewTool("record_suggest",
	mcp.WithDescription("Fuzzy-match a partial term against known tags, best match first."),
	mcp.WithTitleAnnotation("Suggest Tags"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithString("term",
		mcp.Required(),
		mcp.Description("Partial tag, e.g. \"bday\""),
	),
	mcp.WithNumber("limit",
		mcp.Description("Max suggestions (default: 10, max: 50)"),
	),
)

var recordTagsToolDef = mcp.NewTool("record_tags",
	mcp.WithDescription("List every tag in use with its record count."),
	mcp.WithTitleAnnotation("List Tags"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithIdempotentHintAnnotation(true),
)

var recordExportToolDef = mcp.NewTool("record_export",
	mcp.WithDescription("Export records and their alarms to a JSONL file."),
	mcp.WithTitleAnnotation("Export Records"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithString("path",
		mcp.Description("Output path (default: ~/.phototag/exports/<tag|all>-<timestamp>.jsonl)"),
	),
	mcp.WithString("tag",
		mcp.Description("Only export records carrying this tag"),
	),
)

var recordImportToolDef = mcp.NewTool("record_import",
	mcp.WithDescription("Import records and alarms from a JSONL export. Pending alarms are re-armed."),
	mcp.WithTitleAnnotation("Import Records"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("JSONL file to import"),
	),
	mcp.WithString("mode",
		mcp.Description("Collision handling: error (default, atomic), replace or rename"),
		mcp.Enum("error", "replace", "rename"),
	),
)

var alarmScheduleToolDef = mcp.NewTool("alarm_schedule",
	mcp.WithDescription("Schedule a one-shot reminder for a record. Replaces the record's pending reminder, if any. Times in the past fire as soon as possible."),
	mcp.WithTitleAnnotation("Schedule Reminder"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithIdempotentHintAnnotation(false),
	mcp.WithString("record_id",
		mcp.Required(),
		mcp.Description("Record id"),
	),
	mcp.WithString("at",
		mcp.Description("Absolute time: RFC 3339 or Unix seconds"),
	),
	mcp.WithString("in",
		mcp.Description("Relative time as a duration, e.g. \"90m\" or \"24h\""),
	),
)

var alarmCancelToolDef = mcp.NewTool("alarm_cancel",
	mcp.WithDescription("Cancel a pending reminder. Cancelling one that already fired or was cancelled is a no-op."),
	mcp.WithTitleAnnotation("Cancel Reminder"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithString("alarm_id",
		mcp.Required(),
		mcp.Description("Alarm id"),
	),
)

var alarmListToolDef = mcp.NewTool("alarm_list",
	mcp.WithDescription("List alarms, newest first."),
	mcp.WithTitleAnnotation("List Reminders"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithString("record_id",
		mcp.Description("Only alarms of this record"),
	),
	mcp.WithString("status",
		mcp.Description("Only alarms in this status"),
		mcp.Enum("pending", "fired", "cancelled"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Max results (default: 20, max: 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Results to skip"),
	),
)

var alarmFireToolDef = mcp.NewTool("alarm_fire",
	mcp.WithDescription("Deliver a pending reminder now, as if its time had come."),
	mcp.WithTitleAnnotation("Fire Reminder"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithString("alarm_id",
		mcp.Required(),
		mcp.Description("Alarm id"),
	),
)

var alarmReconcileToolDef = mcp.NewTool("alarm_reconcile",
	mcp.WithDescription("Re-request timers for every pending reminder, retrying ones the timer service rejected."),
	mcp.WithTitleAnnotation("Reconcile Reminders"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithIdempotentHintAnnotation(true),
)

var notificationTapToolDef = mcp.NewTool("notification_tap",
	mcp.WithDescription("Resolve a tapped reminder notification to its record."),
	mcp.WithTitleAnnotation("Open Notification"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithString("notification_id",
		mcp.Required(),
		mcp.Description("Notification id (the alarm id)"),
	),
)
