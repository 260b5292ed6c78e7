// Package mediagroup collects the photos of a Telegram album into one group.
// Telegram delivers every album item as a separate update with no end marker,
// so a group is flushed once no new item has arrived within the debounce.
package mediagroup

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type Item struct {
	ChatID       int64
	UserID       int64
	MessageID    int
	MediaGroupID string
	Caption      string
	FileID       string
}

// Group holds the album files ordered by message id, so FileIDs[0] is the
// first photo the user picked.
type Group struct {
	ChatID  int64
	UserID  int64
	Caption string
	FileIDs []string
}

type Options struct {
	Debounce time.Duration
	OnFlush  func(Group)
}

type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	onFlush  func(Group)
	groups   map[string]*pendingGroup
	stopped  bool
}

type pendingGroup struct {
	chatID  int64
	userID  int64
	caption string
	items   []Item
	timer   *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		onFlush:  opts.OnFlush,
		groups:   make(map[string]*pendingGroup),
	}
}

func (a *Aggregator) Add(item Item) {
	if item.MediaGroupID == "" || item.FileID == "" {
		return
	}

	key := makeKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	pg, ok := a.groups[key]
	if !ok {
		pg = &pendingGroup{chatID: item.ChatID, userID: item.UserID}
		a.groups[key] = pg
	}
	pg.items = append(pg.items, item)
	if item.Caption != "" {
		pg.caption = item.Caption
	}

	if pg.timer != nil {
		pg.timer.Stop()
	}
	pg.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
}

// Pending reports how many albums are still collecting items.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// Stop drops every pending album without flushing it.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for key, pg := range a.groups {
		if pg.timer != nil {
			pg.timer.Stop()
		}
		delete(a.groups, key)
	}
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pg, ok := a.groups[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(pg.group())
	}
}

func (pg *pendingGroup) group() Group {
	items := append([]Item(nil), pg.items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].MessageID < items[j].MessageID })

	g := Group{
		ChatID:  pg.chatID,
		UserID:  pg.userID,
		Caption: pg.caption,
		FileIDs: make([]string, 0, len(items)),
	}
	for _, it := range items {
		g.FileIDs = append(g.FileIDs, it.FileID)
	}
	return g
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
