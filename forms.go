package trackbridge

import (
	"sync"
	"time"
)

// Form event types sent to the collector.
const (
	FormEventStart      = "start"
	FormEventFieldFocus = "field_focus"
	FormEventFieldBlur  = "field_blur"
	FormEventFieldError = "field_error"
	FormEventSubmit     = "submit"
	FormEventAbandon    = "abandon"
)

// FormElement describes one control of a form, in document order.
type FormElement struct {
	Tag  string // input, select, textarea, button
	Name string
	ID   string
	Type string // e.g. email, password; empty for non-input controls
}

// fieldName returns the name used in reports: name, then id.
func (e FormElement) fieldName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

func (e FormElement) fieldType() string {
	if e.Type != "" {
		return e.Type
	}
	return e.Tag
}

// formRequest is the body of POST {host}/api/collect/forms.
type formRequest struct {
	Website        string `json:"website"`
	FormID         string `json:"formId"`
	FormName       string `json:"formName,omitempty"`
	URLPath        string `json:"urlPath"`
	EventType      string `json:"eventType"`
	FieldName      string `json:"fieldName,omitempty"`
	FieldType      string `json:"fieldType,omitempty"`
	FieldIndex     *int   `json:"fieldIndex,omitempty"`
	TimeOnField    *int64 `json:"timeOnField,omitempty"`
	TimeSinceStart *int64 `json:"timeSinceStart,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	Success        *bool  `json:"success,omitempty"`
}

// FormTracker records how a visitor interacts with one form and posts each
// step straight to the collector.
//
// A session starts at the first field focus, which sends a start event
// before the field_focus event. Submit ends the session and resets it.
// Abandon reports an unfinished session when the page goes away and leaves
// state untouched.
//
// Timings are in milliseconds. FormTracker is safe for concurrent use.
type FormTracker struct {
	poster   *poster
	now      func() time.Time
	formID   string
	formName string
	urlPath  string
	elements []FormElement

	mu         sync.Mutex
	startedAt  time.Time
	focusedAt  map[string]time.Time
	interacted bool
	lastField  string
}

func newFormTracker(p *poster, now func() time.Time, formID, formName, urlPath string, elements []FormElement) *FormTracker {
	if urlPath == "" {
		urlPath = "/"
	}
	return &FormTracker{
		poster:    p,
		now:       now,
		formID:    formID,
		formName:  formName,
		urlPath:   urlPath,
		elements:  append([]FormElement(nil), elements...),
		focusedAt: make(map[string]time.Time),
	}
}

// FieldFocus records focus on a field. A negative index leaves fieldIndex
// out of the report.
func (f *FormTracker) FieldFocus(name, fieldType string, index int) {
	if f == nil || name == "" {
		return
	}

	f.mu.Lock()
	now := f.now()
	first := f.startedAt.IsZero()
	if first {
		f.startedAt = now
	}
	f.interacted = true
	f.lastField = name
	f.focusedAt[name] = now
	f.mu.Unlock()

	focus := formRequest{
		EventType:  FormEventFieldFocus,
		FieldName:  name,
		FieldType:  fieldType,
		FieldIndex: indexPtr(index),
	}
	if first {
		f.send(formRequest{EventType: FormEventStart}, focus)
		return
	}
	f.send(focus)
}

// FieldBlur records leaving a field along with the time spent on it. A blur
// without a matching focus reports no timeOnField.
func (f *FormTracker) FieldBlur(name, fieldType string, index int) {
	if f == nil || name == "" {
		return
	}

	f.mu.Lock()
	var onField *int64
	if at, ok := f.focusedAt[name]; ok {
		ms := f.now().Sub(at).Milliseconds()
		onField = &ms
		delete(f.focusedAt, name)
	}
	f.mu.Unlock()

	f.send(formRequest{
		EventType:   FormEventFieldBlur,
		FieldName:   name,
		FieldType:   fieldType,
		FieldIndex:  indexPtr(index),
		TimeOnField: onField,
	})
}

// FieldError records a validation error shown on a field.
func (f *FormTracker) FieldError(name, message string) {
	if f == nil || name == "" {
		return
	}
	f.send(formRequest{
		EventType:    FormEventFieldError,
		FieldName:    name,
		ErrorMessage: message,
	})
}

// Submit records a submission and resets the session unconditionally.
func (f *FormTracker) Submit(success bool) {
	f.submit(success, "")
}

// SubmitFailed records a failed submission with its error message and resets
// the session.
func (f *FormTracker) SubmitFailed(message string) {
	f.submit(false, message)
}

func (f *FormTracker) submit(success bool, message string) {
	if f == nil {
		return
	}

	f.mu.Lock()
	since := f.sinceStartLocked()
	f.startedAt = time.Time{}
	f.focusedAt = make(map[string]time.Time)
	f.interacted = false
	f.lastField = ""
	f.mu.Unlock()

	f.send(formRequest{
		EventType:      FormEventSubmit,
		TimeSinceStart: since,
		ErrorMessage:   message,
		Success:        &success,
	})
}

// Abandon reports an unfinished session, naming the last focused field. It
// sends nothing unless the visitor interacted with the form and a start
// time was recorded, and it does not reset state. Reports whether an event
// was sent.
func (f *FormTracker) Abandon() bool {
	if f == nil {
		return false
	}

	f.mu.Lock()
	if !f.interacted || f.startedAt.IsZero() {
		f.mu.Unlock()
		return false
	}
	since := f.sinceStartLocked()
	last := f.lastField
	f.mu.Unlock()

	f.send(formRequest{
		EventType:      FormEventAbandon,
		FieldName:      last,
		TimeSinceStart: since,
	})
	return true
}

// HandleFocusEvent is the auto-track entry point for a focus event whose
// target is one of the form's elements. The field index is the target's
// position among the form's elements. Targets with neither name nor id, or
// not part of the form, are skipped; the return value reports whether the
// event was tracked.
func (f *FormTracker) HandleFocusEvent(target FormElement) bool {
	index, ok := f.position(target)
	if !ok {
		return false
	}
	f.FieldFocus(target.fieldName(), target.fieldType(), index)
	return true
}

// HandleBlurEvent is the auto-track counterpart of [FormTracker.HandleFocusEvent].
func (f *FormTracker) HandleBlurEvent(target FormElement) bool {
	index, ok := f.position(target)
	if !ok {
		return false
	}
	f.FieldBlur(target.fieldName(), target.fieldType(), index)
	return true
}

func (f *FormTracker) position(target FormElement) (int, bool) {
	if f == nil || target.fieldName() == "" {
		return 0, false
	}
	for i, el := range f.elements {
		if el == target {
			return i, true
		}
	}
	return 0, false
}

// Interacted reports whether the current session has seen a field focus.
func (f *FormTracker) Interacted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interacted
}

func (f *FormTracker) sinceStartLocked() *int64 {
	if f.startedAt.IsZero() {
		return nil
	}
	ms := f.now().Sub(f.startedAt).Milliseconds()
	return &ms
}

// send posts reqs in order on a single background request chain.
func (f *FormTracker) send(reqs ...formRequest) {
	website := f.poster.config().WebsiteID()
	if website == "" {
		return
	}
	bodies := make([]any, len(reqs))
	for i, req := range reqs {
		req.Website = website
		req.FormID = f.formID
		req.FormName = f.formName
		req.URLPath = f.urlPath
		bodies[i] = req
	}
	f.poster.post(FormsPath, bodies...)
}

func indexPtr(i int) *int {
	if i < 0 {
		return nil
	}
	return &i
}
