package web

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/phototag/internal/correlator"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/ops"
	"github.com/hpungsan/phototag/internal/record"
)

// datetimeLocal is the value format of an <input type="datetime-local">.
const datetimeLocal = "2006-01-02T15:04"

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	svc      *ops.Service
	feed     *correlator.Feed
	renderer *Renderer
	log      zerolog.Logger
}

// HandleList handles GET /records: newest records plus the tag cloud.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.List(r.Context(), ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: PageData{
			Title:   "Records",
			Version: h.renderer.version,
			Nav:     "records",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		Tags:       h.svc.Tags(r.Context()).Tags,
	})
}

// HandleCreate handles POST /records from the tagging form.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewValidation("invalid form data"))
		return
	}

	rec, err := h.svc.CreateTaggedRecord(r.Context(), ops.CreateInput{
		PhotoRef: r.FormValue("photo_ref"),
		RawTags:  r.FormValue("tags"),
		Comment:  r.FormValue("comment"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusCreated, rec)
		return
	}
	h.redirect(w, r, "/records/"+rec.ID)
}

// HandleSearch handles GET /records/search: lookup by tag, with fuzzy
// suggestions when nothing matches exactly.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	tag := strings.TrimSpace(r.URL.Query().Get("tag"))
	data := SearchPageData{
		PageData: PageData{
			Title:   "Search",
			Version: h.renderer.version,
			Nav:     "search",
		},
		Tag:      tag,
		Prefix:   parseBoolParam(r, "prefix"),
		HasQuery: tag != "",
	}

	if tag != "" {
		result, err := h.svc.SearchByTag(r.Context(), ops.SearchInput{
			Tag:    tag,
			Prefix: data.Prefix,
			Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
			Offset: parseIntParam(r, "offset", 0),
		})
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		data.Items = result.Items
		data.Pagination = result.Pagination

		if len(result.Items) == 0 {
			if sugg, err := h.svc.Suggest(r.Context(), ops.SuggestInput{Term: tag, Limit: 5}); err == nil {
				data.Suggestions = sugg.Suggestions
			}
		}
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, data)
		return
	}

	// If htmx targets #results, render only the results fragment
	if r.Header.Get("HX-Target") == "results" {
		h.renderer.renderBlock(w, http.StatusOK, "search", "search-results", data)
		return
	}
	h.renderer.renderPage(w, r, "search", data)
}

// HandleSuggest handles GET /tags/suggest. It always answers JSON.
func (h *Handlers) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Suggest(r.Context(), ops.SuggestInput{
		Term:  r.URL.Query().Get("term"),
		Limit: parseIntParam(r, "limit", ops.DefaultSuggestLimit),
	})
	if err != nil {
		r.Header.Set("Accept", "application/json")
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleDetail handles GET /records/{id}: the record, its alarm history
// and the reminder form.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Fetch(r.Context(), ops.FetchInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "detail", h.detailData(result, r.URL.Query().Get("warning")))
}

func (h *Handlers) detailData(result *ops.FetchOutput, warning string) DetailPageData {
	data := DetailPageData{
		PageData: PageData{
			Title:   shortID(result.Record.ID),
			Version: h.renderer.version,
			Nav:     "records",
		},
		Record:      result.Record,
		Alarms:      result.Alarms,
		CommentHTML: renderMarkdown(result.Record.Comment),
		Warning:     warning,
	}
	for i := range result.Alarms {
		if result.Alarms[i].Status == record.StatusPending {
			data.Pending = &result.Alarms[i]
			break
		}
	}
	return data
}

// HandleUpdate handles POST /records/{id} from the edit form.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewValidation("invalid form data"))
		return
	}

	input := ops.UpdateInput{ID: r.PathValue("id")}
	if _, ok := r.PostForm["tags"]; ok {
		v := r.PostFormValue("tags")
		input.RawTags = &v
	}
	if _, ok := r.PostForm["comment"]; ok {
		v := r.PostFormValue("comment")
		input.Comment = &v
	}

	rec, err := h.svc.Update(r.Context(), input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, rec)
		return
	}
	h.redirect(w, r, "/records/"+rec.ID)
}

// HandleDelete handles DELETE /records/{id} and the form fallback
// POST /records/{id}/delete.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.DeleteRecord(r.Context(), ops.DeleteInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.redirect(w, r, "/records")
}

// HandleSchedule handles POST /records/{id}/alarms. The form sends either
// "in" (a duration) or "at" (datetime-local, RFC 3339 or Unix seconds).
func (h *Handlers) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewValidation("invalid form data"))
		return
	}

	id := r.PathValue("id")
	at := strings.TrimSpace(r.FormValue("at"))
	if t, err := time.ParseInLocation(datetimeLocal, at, time.Local); err == nil {
		at = strconv.FormatInt(t.Unix(), 10)
	}

	result, err := h.svc.ScheduleAlarm(r.Context(), ops.ScheduleInput{
		RecordID: id,
		At:       at,
		In:       r.FormValue("in"),
	})
	if err != nil && result == nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusCreated, result)
		return
	}
	target := "/records/" + id
	if result.Warning != "" {
		h.log.Warn().Str("alarm_id", result.Alarm.ID).Msg(result.Warning)
		target += "?warning=" + url.QueryEscape(result.Warning)
	}
	h.redirect(w, r, target)
}

// HandleCancel handles POST /alarms/{id}/cancel.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CancelAlarm(r.Context(), ops.CancelInput{AlarmID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.redirect(w, r, "/records/"+result.Alarm.RecordID)
}

// HandleNotification handles GET /notifications/{id}: what the user sees
// after tapping a delivered reminder.
func (h *Handlers) HandleNotification(w http.ResponseWriter, r *http.Request) {
	tap, err := h.svc.OnNotificationTapped(r.Context(), ops.TapInput{NotificationID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, tap)
		return
	}

	data := NotificationPageData{
		PageData: PageData{
			Title:   "Reminder",
			Version: h.renderer.version,
			Nav:     "reminders",
		},
		Tap: tap,
	}
	if tap.Record != nil {
		data.CommentHTML = renderMarkdown(tap.Record.Comment)
	}
	h.renderer.renderPage(w, r, "notification", data)
}

// HandleReminders handles GET /reminders: recently delivered reminders and
// everything still pending.
func (h *Handlers) HandleReminders(w http.ResponseWriter, r *http.Request) {
	pending, err := h.svc.ListAlarms(r.Context(), ops.ListAlarmsInput{
		Status: string(record.StatusPending),
		Limit:  ops.MaxListLimit,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	var events []correlator.Event
	if h.feed != nil {
		events = h.feed.Recent()
	}

	data := RemindersPageData{
		PageData: PageData{
			Title:   "Reminders",
			Version: h.renderer.version,
			Nav:     "reminders",
		},
		Events:  events,
		Pending: pending.Items,
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, data)
		return
	}
	// Polled by htmx every few seconds
	if r.Header.Get("HX-Target") == "feed" {
		h.renderer.renderBlock(w, http.StatusOK, "reminders", "feed", data)
		return
	}
	h.renderer.renderPage(w, r, "reminders", data)
}

// redirect sends the browser to target, via HX-Redirect for htmx requests.
func (h *Handlers) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1" || s == "on"
}
