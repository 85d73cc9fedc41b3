// Package fleet holds the namespace topology: the hubs that make up the
// fleet and the saved groups shipped with it.
package fleet

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"fleetjobs/internal/clock"
	"fleetjobs/internal/logging"
	"fleetjobs/internal/model"
)

//go:embed fleet.yaml
var defaultFleet []byte

// File is the on-disk fleet description.
type File struct {
	Namespace string             `yaml:"namespace"`
	Hubs      []model.Hub        `yaml:"hubs"`
	Groups    []model.SavedGroup `yaml:"groups"`
}

// LoadFile parses a fleet file. An empty path loads the built-in
// namespace.
func LoadFile(path string) (File, error) {
	data := defaultFleet
	p := strings.TrimSpace(path)
	if p != "" {
		raw, err := os.ReadFile(p)
		if err != nil {
			return File{}, fmt.Errorf("read fleet file %s: %w", p, err)
		}
		data = raw
	}
	f, err := ParseFile(data)
	if err != nil {
		if p == "" {
			p = "(built-in)"
		}
		return File{}, fmt.Errorf("fleet file %s: %w", p, err)
	}
	return f, nil
}

func ParseFile(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse YAML: %w", err)
	}
	f.Namespace = strings.TrimSpace(f.Namespace)
	if f.Namespace == "" {
		f.Namespace = "default"
	}
	seen := make(map[string]bool, len(f.Hubs))
	for i := range f.Hubs {
		h, err := normalizeHub(f.Hubs[i])
		if err != nil {
			return File{}, err
		}
		key := strings.ToLower(h.Name)
		if seen[key] {
			return File{}, fmt.Errorf("duplicate hub %q", h.Name)
		}
		seen[key] = true
		f.Hubs[i] = h
	}
	for i, g := range f.Groups {
		if strings.TrimSpace(g.ID) == "" || strings.TrimSpace(g.Name) == "" {
			return File{}, fmt.Errorf("group %d: id and name are required", i)
		}
		if g.DeviceCount < 0 {
			return File{}, fmt.Errorf("group %q: device_count must be >= 0", g.Name)
		}
	}
	return f, nil
}

func normalizeHub(h model.Hub) (model.Hub, error) {
	h.Name = strings.TrimSpace(h.Name)
	h.Region = strings.TrimSpace(h.Region)
	if h.Name == "" {
		return model.Hub{}, fmt.Errorf("hub name is required")
	}
	if h.DeviceCount < 0 || h.AssetCount < 0 {
		return model.Hub{}, fmt.Errorf("hub %q: counts must be >= 0", h.Name)
	}
	switch h.Status {
	case "":
		h.Status = model.HubHealthy
	case model.HubHealthy, model.HubDegraded, model.HubOffline, model.HubAdding:
	default:
		return model.Hub{}, fmt.Errorf("hub %q: unknown status %q", h.Name, h.Status)
	}
	return h, nil
}

// Topology is the live hub list. Newly linked hubs stay in the adding
// state until the link delay elapses.
type Topology struct {
	mu        sync.RWMutex
	namespace string
	hubs      []model.Hub
	pending   map[string]pendingLink
	linkSeq   uint64

	clock     clock.Clock
	linkDelay time.Duration
	log       logrus.FieldLogger
}

type pendingLink struct {
	seq   uint64
	timer *clock.Timer
}

type Options struct {
	Clock     clock.Clock
	LinkDelay time.Duration
	Logger    logrus.FieldLogger
}

func NewTopology(f File, opts Options) *Topology {
	c := opts.Clock
	if c == nil {
		c = clock.Real()
	}
	return &Topology{
		namespace: f.Namespace,
		hubs:      append([]model.Hub(nil), f.Hubs...),
		pending:   make(map[string]pendingLink),
		clock:     c,
		linkDelay: opts.LinkDelay,
		log:       logging.OrDiscard(opts.Logger),
	}
}

func (t *Topology) Namespace() string {
	return t.namespace
}

// Hubs returns a snapshot of every hub, including ones still linking.
func (t *Topology) Hubs() []model.Hub {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.Hub(nil), t.hubs...)
}

// LinkedHubs returns the hubs that can take part in a job.
func (t *Topology) LinkedHubs() []model.Hub {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Hub, 0, len(t.hubs))
	for _, h := range t.hubs {
		if h.Linked() {
			out = append(out, h)
		}
	}
	return out
}

func (t *Topology) Totals() model.FleetTotals {
	return model.TotalsOf(t.LinkedHubs())
}

func (t *Topology) FindHub(name string) (model.Hub, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.indexLocked(name)
	if i < 0 {
		return model.Hub{}, false
	}
	return t.hubs[i], true
}

// LinkHub adds a hub in the adding state and schedules its move to
// healthy.
func (t *Topology) LinkHub(h model.Hub) (model.Hub, error) {
	h.Status = model.HubAdding
	h, err := normalizeHub(h)
	if err != nil {
		return model.Hub{}, err
	}

	t.mu.Lock()
	if t.indexLocked(h.Name) >= 0 {
		t.mu.Unlock()
		return model.Hub{}, fmt.Errorf("hub %q already linked", h.Name)
	}
	t.hubs = append(t.hubs, h)
	t.linkSeq++
	seq := t.linkSeq
	key := strings.ToLower(h.Name)
	t.pending[key] = pendingLink{seq: seq}
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{"hub": h.Name, "delay": t.linkDelay}).Info("hub linking")
	timer := t.clock.AfterFunc(t.linkDelay, func() { t.finishLink(key, seq) })

	t.mu.Lock()
	if p, ok := t.pending[key]; ok && p.seq == seq {
		p.timer = timer
		t.pending[key] = p
	}
	t.mu.Unlock()
	return h, nil
}

func (t *Topology) finishLink(key string, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[key]
	if !ok || p.seq != seq {
		return
	}
	delete(t.pending, key)
	i := t.indexLocked(key)
	if i < 0 || t.hubs[i].Status != model.HubAdding {
		return
	}
	t.hubs[i].Status = model.HubHealthy
	t.log.WithField("hub", t.hubs[i].Name).Info("hub linked")
}

// UnlinkHub removes a hub. A pending link transition for it becomes a
// no-op. Returns false if the hub was unknown.
func (t *Topology) UnlinkHub(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(name)
	if i < 0 {
		return false
	}
	key := strings.ToLower(t.hubs[i].Name)
	if p, ok := t.pending[key]; ok {
		p.timer.Stop()
		delete(t.pending, key)
	}
	t.hubs = append(t.hubs[:i:i], t.hubs[i+1:]...)
	t.log.WithField("hub", name).Info("hub unlinked")
	return true
}

func (t *Topology) indexLocked(name string) int {
	target := strings.TrimSpace(name)
	for i, h := range t.hubs {
		if strings.EqualFold(h.Name, target) {
			return i
		}
	}
	return -1
}
