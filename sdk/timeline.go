package sdk

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EntryState is the delivery state of a timeline entry
type EntryState int

const (
	StatePending EntryState = iota
	StateConfirmed
	StateFailed
)

func (s EntryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is one message in the local view of a conversation
type Entry struct {
	CorrelationId string
	Message       *MessageInfo
	State         EntryState
	Err           error
}

func (e *Entry) snapshot() Entry {
	out := *e
	if e.Message != nil {
		msg := *e.Message
		out.Message = &msg
	}
	return out
}

func confirmedEntry(msg *MessageInfo) *Entry {
	return &Entry{CorrelationId: msg.ClientMsgId, Message: msg, State: StateConfirmed}
}

// MessageAPI is the server surface a Timeline talks to. *Client implements it.
type MessageAPI interface {
	SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageInfo, error)
	ListMessages(ctx context.Context, conversationId string, limit int, beforeSeq int64) (*ListMessagesResponse, error)
}

// Draft is a message composed locally
type Draft struct {
	Content     string
	Kind        int32
	Attachments []*AttachmentInfo
}

// Timeline keeps the ordered local view of one conversation. Locally sent
// messages show up immediately as pending and are reconciled with the
// server copy by correlation id, whichever of the send response and the
// realtime push arrives first.
type Timeline struct {
	api            MessageAPI
	conversationId string
	selfId         string

	sendTimeout   time.Duration
	pageSize      int
	loadThreshold float64
	onChange      func()

	mu            sync.Mutex
	entries       []*Entry
	loaded        bool
	hasMore       bool
	nextBeforeSeq int64

	loading atomic.Bool
}

// TimelineOption configures a Timeline
type TimelineOption func(*Timeline)

// WithSendTimeout bounds each send request. A send that runs out of time is
// marked failed even if the server later commits it.
func WithSendTimeout(d time.Duration) TimelineOption {
	return func(t *Timeline) {
		t.sendTimeout = d
	}
}

// WithPageSize sets how many messages each history page requests
func WithPageSize(n int) TimelineOption {
	return func(t *Timeline) {
		t.pageSize = n
	}
}

// WithLoadThreshold sets how close to the top OnScroll starts loading
func WithLoadThreshold(px float64) TimelineOption {
	return func(t *Timeline) {
		t.loadThreshold = px
	}
}

// WithOnChange registers a render callback. It runs after every change to
// the entries, outside the timeline lock.
func WithOnChange(fn func()) TimelineOption {
	return func(t *Timeline) {
		t.onChange = fn
	}
}

// NewTimeline creates the view of conversationId as seen by selfId
func NewTimeline(api MessageAPI, conversationId, selfId string, opts ...TimelineOption) *Timeline {
	t := &Timeline{
		api:            api,
		conversationId: conversationId,
		selfId:         selfId,
		sendTimeout:    10 * time.Second,
		pageSize:       50,
		loadThreshold:  48,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ConversationId returns the conversation this timeline shows
func (t *Timeline) ConversationId() string {
	return t.conversationId
}

// Entries returns a copy of the view, oldest first
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.snapshot())
	}
	return out
}

// HasMore reports whether older history remains on the server
func (t *Timeline) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

// Send appends a pending entry and delivers it. The returned entry is
// confirmed or failed; failures are never retried automatically.
func (t *Timeline) Send(ctx context.Context, draft Draft) Entry {
	correlationId := uuid.NewString()
	e := &Entry{
		CorrelationId: correlationId,
		State:         StatePending,
		Message: &MessageInfo{
			ConversationId: t.conversationId,
			ClientMsgId:    correlationId,
			SenderId:       t.selfId,
			Kind:           draft.Kind,
			Content:        draft.Content,
			Attachments:    draft.Attachments,
			SendAt:         time.Now().UnixMilli(),
			IsRead:         true,
		},
	}

	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
	t.notify()

	req := &SendMessageRequest{
		ConversationId: t.conversationId,
		Content:        draft.Content,
		Kind:           draft.Kind,
		Attachments:    draft.Attachments,
		ClientMsgId:    correlationId,
	}
	return t.deliver(ctx, e, req)
}

func (t *Timeline) deliver(ctx context.Context, e *Entry, req *SendMessageRequest) Entry {
	sendCtx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	defer cancel()

	msg, err := t.api.SendMessage(sendCtx, req)

	t.mu.Lock()
	switch {
	case err != nil:
		// A push may already have confirmed it
		if e.State == StatePending {
			e.State = StateFailed
			e.Err = err
		}
	default:
		confirm(e, msg)
	}
	out := e.snapshot()
	t.mu.Unlock()

	t.notify()
	return out
}

// ApplyPush merges a realtime message. A push matching a pending entry
// replaces it in place; one matching a confirmed or failed entry is ignored;
// anything else not yet shown is appended. It reports whether the view
// changed.
func (t *Timeline) ApplyPush(msg *MessageInfo) bool {
	if msg == nil || msg.ConversationId != t.conversationId {
		return false
	}

	t.mu.Lock()
	changed := t.applyLocked(msg)
	t.mu.Unlock()

	if changed {
		t.notify()
	}
	return changed
}

func (t *Timeline) applyLocked(msg *MessageInfo) bool {
	if i := t.indexByCorrelationLocked(msg.ClientMsgId); i >= 0 {
		e := t.entries[i]
		if e.State != StatePending {
			return false
		}
		confirm(e, msg)
		return true
	}
	if t.indexByIdLocked(msg.Id) >= 0 {
		return false
	}
	t.entries = append(t.entries, confirmedEntry(msg))
	return true
}

// Attach feeds a realtime stream into ApplyPush until the stream closes or
// ctx is done
func (t *Timeline) Attach(ctx context.Context, stream <-chan *MessageInfo) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-stream:
			if !ok {
				return nil
			}
			t.ApplyPush(msg)
		}
	}
}

// Resend removes a failed entry and sends its content again under a new
// correlation id
func (t *Timeline) Resend(ctx context.Context, correlationId string) (Entry, error) {
	t.mu.Lock()
	i, err := t.failedIndexLocked(correlationId)
	if err != nil {
		t.mu.Unlock()
		return Entry{}, err
	}
	old := t.entries[i].Message
	t.entries = slices.Delete(t.entries, i, i+1)
	t.mu.Unlock()

	return t.Send(ctx, Draft{
		Content:     old.Content,
		Kind:        old.Kind,
		Attachments: old.Attachments,
	}), nil
}

// Discard drops a failed entry from the view
func (t *Timeline) Discard(correlationId string) error {
	t.mu.Lock()
	i, err := t.failedIndexLocked(correlationId)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.entries = slices.Delete(t.entries, i, i+1)
	t.mu.Unlock()

	t.notify()
	return nil
}

// Load fetches the newest page, replacing confirmed history. Pending and
// failed entries and confirmed ones newer than the page are kept after it.
func (t *Timeline) Load(ctx context.Context) error {
	if !t.loading.CompareAndSwap(false, true) {
		return ErrLoadInProgress
	}
	defer t.loading.Store(false)

	page, err := t.api.ListMessages(ctx, t.conversationId, t.pageSize, 0)
	if err != nil {
		return err
	}

	t.mu.Lock()
	var maxSeq int64
	previous := t.entries
	t.entries = make([]*Entry, 0, len(page.Messages)+len(previous))
	for _, msg := range page.Messages {
		if msg.Seq > maxSeq {
			maxSeq = msg.Seq
		}
		t.entries = append(t.entries, confirmedEntry(msg))
	}
	for _, e := range previous {
		switch e.State {
		case StatePending:
			if t.indexByCorrelationLocked(e.CorrelationId) >= 0 {
				continue
			}
		case StateConfirmed:
			if e.Message.Seq <= maxSeq || t.indexByIdLocked(e.Message.Id) >= 0 {
				continue
			}
		}
		t.entries = append(t.entries, e)
	}
	t.loaded = true
	t.hasMore = page.HasMore
	t.nextBeforeSeq = page.NextBeforeSeq
	t.mu.Unlock()

	t.notify()
	return nil
}

// LoadOlder prepends the page before the oldest loaded message. When a
// viewport is given its anchor is captured right before the prepend, so
// pushes rendered while the page was in flight are part of it, and restored
// after the change callback has re-rendered.
func (t *Timeline) LoadOlder(ctx context.Context, vp Viewport) (int, error) {
	if !t.loading.CompareAndSwap(false, true) {
		return 0, ErrLoadInProgress
	}
	defer t.loading.Store(false)
	return t.loadOlder(ctx, vp)
}

// OnScroll loads older history when the viewport is near the top. It
// reports whether a load ran; scrolls during an in-flight load are ignored.
func (t *Timeline) OnScroll(ctx context.Context, vp Viewport) (bool, error) {
	if vp.ScrollTop() > t.loadThreshold {
		return false, nil
	}

	t.mu.Lock()
	ready := t.loaded && t.hasMore
	t.mu.Unlock()
	if !ready {
		return false, nil
	}

	if !t.loading.CompareAndSwap(false, true) {
		return false, nil
	}
	defer t.loading.Store(false)

	_, err := t.loadOlder(ctx, vp)
	return true, err
}

func (t *Timeline) loadOlder(ctx context.Context, vp Viewport) (int, error) {
	t.mu.Lock()
	loaded, hasMore, before := t.loaded, t.hasMore, t.nextBeforeSeq
	t.mu.Unlock()

	if !loaded {
		return 0, ErrNotLoaded
	}
	if !hasMore {
		return 0, nil
	}

	page, err := t.api.ListMessages(ctx, t.conversationId, t.pageSize, before)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	var anchor ScrollAnchor
	if vp != nil {
		anchor = CaptureAnchor(vp)
	}
	older := make([]*Entry, 0, len(page.Messages)+len(t.entries))
	for _, msg := range page.Messages {
		if t.indexByIdLocked(msg.Id) >= 0 {
			continue
		}
		older = append(older, confirmedEntry(msg))
	}
	added := len(older)
	t.entries = append(older, t.entries...)
	t.hasMore = page.HasMore
	t.nextBeforeSeq = page.NextBeforeSeq
	t.mu.Unlock()

	t.notify()
	if vp != nil {
		anchor.Restore(vp)
	}
	return added, nil
}

func (t *Timeline) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}

// indexByCorrelationLocked returns the newest entry carrying correlationId
func (t *Timeline) indexByCorrelationLocked(correlationId string) int {
	if correlationId == "" {
		return -1
	}
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].CorrelationId == correlationId {
			return i
		}
	}
	return -1
}

func (t *Timeline) indexByIdLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if e.State == StateConfirmed && e.Message.Id == id {
			return i
		}
	}
	return -1
}

func (t *Timeline) failedIndexLocked(correlationId string) (int, error) {
	i := t.indexByCorrelationLocked(correlationId)
	if i < 0 {
		return -1, ErrEntryNotFound
	}
	if t.entries[i].State != StateFailed {
		return -1, ErrEntryNotFailed
	}
	return i, nil
}

func confirm(e *Entry, msg *MessageInfo) {
	e.Message = msg
	e.State = StateConfirmed
	e.Err = nil
}
