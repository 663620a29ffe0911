// Package directory builds a participant's conversation listing: every
// conversation they belong to plus a placeholder for each friend they have
// not talked to yet.
package directory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"fuwachat/internal/logger"
	"fuwachat/internal/model"
	"fuwachat/internal/profile"
	"fuwachat/internal/store"
)

// Directory caches the participant's conversations, keeping the highest
// revision seen per id. It implements session.Catalog.
type Directory struct {
	self     string
	store    store.Adapter
	profiles profile.Lookup

	mu        sync.Mutex
	ctx       context.Context
	convs     map[string]model.Conversation
	unsub     store.Cancel
	observers map[uint64]func([]model.DirectoryEntry)
	nextObs   uint64
}

// New returns an empty directory for self.
func New(self string, st store.Adapter, profiles profile.Lookup) *Directory {
	return &Directory{
		self:      self,
		store:     st,
		profiles:  profiles,
		ctx:       context.Background(),
		convs:     make(map[string]model.Conversation),
		observers: make(map[uint64]func([]model.DirectoryEntry)),
	}
}

// List returns the current listing. Without an active Watch it queries the
// store once.
func (d *Directory) List(ctx context.Context) ([]model.DirectoryEntry, error) {
	d.mu.Lock()
	watching := d.unsub != nil
	d.mu.Unlock()

	if !watching {
		cancel, err := d.store.SubscribeConversationsOf(ctx, d.self, func(cs []model.Conversation) {
			d.mu.Lock()
			d.mergeLocked(cs)
			d.mu.Unlock()
		})
		if err != nil {
			return nil, err
		}
		cancel()
	}
	return d.entries(ctx), nil
}

// Watch calls fn with the rebuilt listing on every store push and local
// adoption. The first call subscribes to the store.
func (d *Directory) Watch(ctx context.Context, fn func([]model.DirectoryEntry)) (func(), error) {
	d.mu.Lock()
	d.nextObs++
	key := d.nextObs
	d.observers[key] = fn
	subscribe := d.unsub == nil
	if subscribe {
		d.ctx = context.WithoutCancel(ctx)
	}
	d.mu.Unlock()

	stop := func() {
		d.mu.Lock()
		delete(d.observers, key)
		d.mu.Unlock()
	}

	if subscribe {
		unsub, err := d.store.SubscribeConversationsOf(ctx, d.self, d.onPush)
		if err != nil {
			stop()
			return nil, err
		}
		d.mu.Lock()
		if d.unsub != nil {
			// lost a race with a concurrent Watch
			d.mu.Unlock()
			unsub()
		} else {
			d.unsub = unsub
			d.mu.Unlock()
		}
	} else {
		fn(d.entries(ctx))
	}

	var once sync.Once
	return func() { once.Do(stop) }, nil
}

func (d *Directory) onPush(cs []model.Conversation) {
	d.mu.Lock()
	d.mergeLocked(cs)
	ctx := d.ctx
	d.mu.Unlock()
	d.publish(ctx)
}

// Adopt records a conversation created locally so it shows up before the
// store echoes it.
func (d *Directory) Adopt(conv model.Conversation) {
	if !conv.Has(d.self) {
		return
	}
	d.mu.Lock()
	changed := d.mergeLocked([]model.Conversation{conv})
	ctx := d.ctx
	d.mu.Unlock()
	if changed {
		d.publish(ctx)
	}
}

// Conversation returns the cached document for id.
func (d *Directory) Conversation(id string) (model.Conversation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.convs[id]
	if !ok {
		return model.Conversation{}, false
	}
	return c.Clone(), true
}

// Close stops the store subscription and drops all observers.
func (d *Directory) Close() {
	d.mu.Lock()
	unsub := d.unsub
	d.unsub = nil
	d.observers = make(map[uint64]func([]model.DirectoryEntry))
	d.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// mergeLocked keeps the highest revision per id and reports whether
// anything changed.
func (d *Directory) mergeLocked(cs []model.Conversation) bool {
	changed := false
	for _, c := range cs {
		if !c.Has(d.self) {
			continue
		}
		if cur, ok := d.convs[c.ID]; ok && cur.Revision >= c.Revision {
			continue
		}
		d.convs[c.ID] = c.Clone()
		changed = true
	}
	return changed
}

func (d *Directory) publish(ctx context.Context) {
	d.mu.Lock()
	fns := make([]func([]model.DirectoryEntry), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	if len(fns) == 0 {
		return
	}
	entries := d.entries(ctx)
	for _, fn := range fns {
		fn(entries)
	}
}

func (d *Directory) entries(ctx context.Context) []model.DirectoryEntry {
	d.mu.Lock()
	convs := make([]model.Conversation, 0, len(d.convs))
	for _, c := range d.convs {
		convs = append(convs, c.Clone())
	}
	d.mu.Unlock()

	return Build(ctx, d.self, convs, d.friends(ctx), d.profiles)
}

func (d *Directory) friends(ctx context.Context) []string {
	if d.profiles == nil {
		return nil
	}
	fs, err := d.profiles.Friends(ctx, d.self)
	if err != nil {
		if !errors.Is(err, profile.ErrUnknownProfile) {
			logger.Warn("directory_friends_failed", "participant", d.self, "error", err)
		}
		return nil
	}
	return fs
}

// Build merges conversations with friends so every friend appears exactly
// once. Conversations come first, newest activity first; placeholders
// follow sorted by title.
func Build(ctx context.Context, self string, convs []model.Conversation, friends []string, profiles profile.Lookup) []model.DirectoryEntry {
	lookup := func(id string) *model.Profile {
		if profiles == nil || id == "" {
			return nil
		}
		p, err := profiles.Profile(ctx, id)
		if err != nil {
			return nil
		}
		return &p
	}

	sort.Slice(convs, func(i, j int) bool {
		ai, aj := convs[i].LastActivity(), convs[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return convs[i].ID < convs[j].ID
	})

	out := make([]model.DirectoryEntry, 0, len(convs)+len(friends))
	covered := make(map[string]bool)
	for i := range convs {
		c := convs[i]
		other := c.Other(self)
		if len(c.Participants) == 2 {
			covered[other] = true
		}
		p := lookup(other)
		e := model.DirectoryEntry{Conversation: &c, OtherParticipant: other, Profile: p}
		e.Title, e.Icon = c.DisplayName, c.Icon
		if e.Title == "" {
			e.Title = title(other, p)
		}
		if e.Icon == "" && p != nil {
			e.Icon = p.Icon
		}
		out = append(out, e)
	}

	placeholders := make([]model.DirectoryEntry, 0, len(friends))
	for _, f := range friends {
		if f == self || covered[f] {
			continue
		}
		covered[f] = true
		p := lookup(f)
		e := model.DirectoryEntry{OtherParticipant: f, Profile: p, Title: title(f, p)}
		if p != nil {
			e.Icon = p.Icon
		}
		placeholders = append(placeholders, e)
	}
	sort.Slice(placeholders, func(i, j int) bool {
		if placeholders[i].Title != placeholders[j].Title {
			return placeholders[i].Title < placeholders[j].Title
		}
		return placeholders[i].OtherParticipant < placeholders[j].OtherParticipant
	})
	return append(out, placeholders...)
}

func title(id string, p *model.Profile) string {
	if p != nil && p.Name != "" {
		return p.Name
	}
	return id
}
