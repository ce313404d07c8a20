package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"everdeep.ai/internal/nav"
	persistlog "everdeep.ai/internal/persistence/log"
	"everdeep.ai/internal/world"
	"everdeep.ai/internal/worldgen"
)

var (
	// ErrUnknownPlayer reports an operation for a player id that never
	// joined or already left.
	ErrUnknownPlayer = errors.New("unknown player")

	// ErrPersistence marks a durable-write failure. The in-memory
	// world stays authoritative; the write retries at the next save
	// point.
	ErrPersistence = errors.New("persistence failure")
)

type Config struct {
	// SaveEveryMoves is the autosave cadence: every Nth move persists
	// the spaces the move touched. Explicit mutations (flags, entities)
	// save immediately regardless.
	SaveEveryMoves int

	// DefaultPerception applies to players that join without a score.
	DefaultPerception int
}

func (c *Config) applyDefaults() {
	if c.SaveEveryMoves <= 0 {
		c.SaveEveryMoves = 10
	}
	if c.DefaultPerception <= 0 {
		c.DefaultPerception = 10
	}
}

// EventSink receives one entry per player-visible action.
type EventSink interface {
	WriteEvent(e persistlog.EventEntry) error
}

// SinkFunc adapts a function to EventSink, the usual way to tee one
// event stream into several consumers.
type SinkFunc func(e persistlog.EventEntry) error

func (f SinkFunc) WriteEvent(e persistlog.EventEntry) error { return f(e) }

type player struct {
	id         string
	spaceID    world.ChunkID
	perception int
	skills     map[string]int
	items      map[string]bool
	moves      int
}

// Service is the facade transports call. It owns player positions and
// drives generation, content fill, resolution and traversal; every
// failure comes back as an error result, never a panic.
type Service struct {
	cfg      Config
	store    *world.Store
	gen      *worldgen.Generator
	repo     worldgen.Repository
	resolver *nav.Resolver
	events   EventSink
	logger   *log.Logger

	mu       sync.Mutex
	players  map[string]*player
	lastSeen map[string]world.ChunkID
}

func NewService(cfg Config, store *world.Store, gen *worldgen.Generator, repo worldgen.Repository, resolver *nav.Resolver, events EventSink, logger *log.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:      cfg,
		store:    store,
		gen:      gen,
		repo:     repo,
		resolver: resolver,
		events:   events,
		logger:   logger,
		players:  map[string]*player{},
		lastSeen: map[string]world.ChunkID{},
	}
}

// WorldInfo identifies the running world for handshakes.
func (s *Service) WorldInfo() (id world.ChunkID, lore string) {
	seed := s.store.Seed()
	return world.WorldID(seed), seed.Lore
}

// PlayerCount reports how many players are currently tracked.
func (s *Service) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// ExitView is one exit the player can currently see. Hidden marks a
// concealed exit the player's perception uncovered.
type ExitView struct {
	Label    string `json:"label"`
	Hidden   bool   `json:"hidden,omitempty"`
	Resolved bool   `json:"resolved"`
}

// View is the player-facing rendering of a space.
type View struct {
	SpaceID     world.ChunkID `json:"space_id"`
	Description string        `json:"description"`
	Brightness  int           `json:"brightness"`
	Terrain     string        `json:"terrain"`
	SafeZone    bool          `json:"safe_zone,omitempty"`
	Exits       []ExitView    `json:"exits"`
	Hazards     []string      `json:"hazards,omitempty"`
	Occupants   []string      `json:"occupants,omitempty"`
	Items       []string      `json:"items,omitempty"`
}

type MoveResult struct {
	From world.ChunkID `json:"from"`
	To   world.ChunkID `json:"to"`
	Exit string        `json:"exit"`
	View *View         `json:"view"`
}

type JoinOptions struct {
	Perception int
	Skills     map[string]int
	Items      map[string]bool
}

// Join places a fresh player at the world's entry space. An id seen
// before, live or departed, resumes where it last stood; only
// perception, skills and items are taken from opts.
func (s *Service) Join(ctx context.Context, playerID string, opts JoinOptions) (*View, error) {
	s.mu.Lock()
	var target world.ChunkID
	var moves int
	if prev, ok := s.players[playerID]; ok {
		target = prev.spaceID
		moves = prev.moves
	} else if last, ok := s.lastSeen[playerID]; ok {
		target = last
	}
	s.mu.Unlock()

	if target == "" {
		entry, err := s.entrySpace(ctx)
		if err != nil {
			return nil, err
		}
		target = entry
	}
	props, err := s.gen.FillSpace(ctx, target)
	if err != nil {
		if props == nil {
			return nil, err
		}
		s.logf("join fill save for %s: %v", playerID, err)
	}

	p := &player{
		id:         playerID,
		spaceID:    target,
		moves:      moves,
		perception: opts.Perception,
		skills:     opts.Skills,
		items:      opts.Items,
	}
	if p.perception <= 0 {
		p.perception = s.cfg.DefaultPerception
	}
	s.mu.Lock()
	s.players[playerID] = p
	s.mu.Unlock()

	s.addOccupant(target, occupantTag(playerID))
	s.logEvent(persistlog.EventEntry{Player: playerID, Kind: "join", SpaceID: string(target)})
	return s.buildView(props, p.perception, occupantTag(playerID)), nil
}

// Leave drops the player and removes it from its space. The position
// is remembered so the same id can resume there.
func (s *Service) Leave(playerID string) {
	s.mu.Lock()
	p, ok := s.players[playerID]
	if ok {
		delete(s.players, playerID)
		s.lastSeen[playerID] = p.spaceID
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.removeOccupant(p.spaceID, occupantTag(playerID))
	s.logEvent(persistlog.EventEntry{Player: playerID, Kind: "leave", SpaceID: string(p.spaceID)})
}

// Look fills the player's current space on first entry and returns
// its view.
func (s *Service) Look(ctx context.Context, playerID string) (*View, error) {
	p, err := s.playerState(playerID)
	if err != nil {
		return nil, err
	}
	props, err := s.gen.FillSpace(ctx, p.spaceID)
	if err != nil {
		if props == nil {
			return nil, err
		}
		s.logf("look save for %s: %v", playerID, err)
	}
	s.logEvent(persistlog.EventEntry{Player: playerID, Kind: "look", SpaceID: string(p.spaceID)})
	return s.buildView(props, p.perception, occupantTag(playerID)), nil
}

// Resolve maps free-form intent to an exit label without moving.
func (s *Service) Resolve(ctx context.Context, playerID, intent string) (string, error) {
	p, err := s.playerState(playerID)
	if err != nil {
		return "", err
	}
	props, err := s.gen.EnsureSpace(ctx, p.spaceID)
	if err != nil {
		return "", err
	}
	res, err := s.resolver.Resolve(ctx, intent, props.Exits, nav.Options{Perception: p.perception})
	if err != nil {
		return "", err
	}
	return res.Label, nil
}

// Move resolves intent against the player's current exits, checks
// traversal conditions, expands across frontier placeholders, and
// relocates the player. Save failures downgrade to a log line; the
// move itself never rolls back once the position updates.
func (s *Service) Move(ctx context.Context, playerID, intent string) (*MoveResult, error) {
	p, err := s.playerState(playerID)
	if err != nil {
		return nil, err
	}
	from := p.spaceID

	origin, err := s.gen.FillSpace(ctx, from)
	if err != nil {
		if origin == nil {
			return nil, err
		}
		s.logf("move fill save for %s: %v", playerID, err)
	}

	res, err := s.resolver.Resolve(ctx, intent, origin.Exits, nav.Options{Perception: p.perception})
	if err != nil {
		return nil, err
	}
	actor := nav.Actor{Skills: p.skills, Items: p.items}
	if err := nav.CheckTraversal(res.Target, actor); err != nil {
		return nil, err
	}

	arrival := res.Target.Chunk
	if !res.Target.Resolved() {
		arrival, err = s.gen.ResolvePlaceholder(ctx, from, res.Label)
		if err != nil {
			return nil, fmt.Errorf("expand frontier at %s: %w", res.Label, err)
		}
	}

	dest, err := s.gen.FillSpace(ctx, arrival)
	if err != nil {
		if dest == nil {
			return nil, err
		}
		s.logf("move fill save for %s: %v", playerID, err)
	}
	if err := nav.CheckEntry(dest); err != nil {
		return nil, err
	}

	moves := s.relocate(playerID, arrival)
	if moves < 0 {
		return nil, ErrUnknownPlayer
	}
	s.removeOccupant(from, occupantTag(playerID))
	s.addOccupant(arrival, occupantTag(playerID))

	if moves%s.cfg.SaveEveryMoves == 0 {
		s.autosave(ctx, from, arrival)
	}
	s.logEvent(persistlog.EventEntry{Player: playerID, Kind: "move", SpaceID: string(arrival), Exit: res.Label})

	// Re-read so the view reflects occupants as of this move.
	current, _ := s.store.Space(arrival)
	if current == nil {
		current = dest
	}
	return &MoveResult{From: from, To: arrival, Exit: res.Label, View: s.buildView(current, p.perception, occupantTag(playerID))}, nil
}

// GetSpace returns the current record for any space id, generating it
// if it never existed.
func (s *Service) GetSpace(ctx context.Context, id world.ChunkID) (*world.SpaceProperties, error) {
	return s.gen.EnsureSpace(ctx, id)
}

// SetFlag writes one named state flag on a space and persists the
// change immediately.
func (s *Service) SetFlag(ctx context.Context, id world.ChunkID, key string, value bool) error {
	if key == "" {
		return fmt.Errorf("empty flag key")
	}
	if _, err := s.gen.EnsureSpace(ctx, id); err != nil {
		return err
	}
	updated, ok := s.store.UpdateSpace(id, func(p *world.SpaceProperties) {
		if p.Flags == nil {
			p.Flags = map[string]bool{}
		}
		p.Flags[key] = value
	})
	if !ok {
		return fmt.Errorf("space %s: %w", id, world.ErrNotFound)
	}
	return s.persistSpace(ctx, updated)
}

// AddEntity appends a named occupant to a space and persists it.
func (s *Service) AddEntity(ctx context.Context, id world.ChunkID, name string) error {
	if name == "" {
		return fmt.Errorf("empty entity name")
	}
	if _, err := s.gen.EnsureSpace(ctx, id); err != nil {
		return err
	}
	updated, ok := s.store.UpdateSpace(id, func(p *world.SpaceProperties) {
		p.Occupants = append(p.Occupants, name)
	})
	if !ok {
		return fmt.Errorf("space %s: %w", id, world.ErrNotFound)
	}
	return s.persistSpace(ctx, updated)
}

// RemoveEntity removes the first occupant matching name. Removing an
// absent entity is not an error.
func (s *Service) RemoveEntity(ctx context.Context, id world.ChunkID, name string) error {
	if _, err := s.gen.EnsureSpace(ctx, id); err != nil {
		return err
	}
	updated, ok := s.store.UpdateSpace(id, func(p *world.SpaceProperties) {
		for i, o := range p.Occupants {
			if o == name {
				p.Occupants = append(p.Occupants[:i], p.Occupants[i+1:]...)
				return
			}
		}
	})
	if !ok {
		return fmt.Errorf("space %s: %w", id, world.ErrNotFound)
	}
	return s.persistSpace(ctx, updated)
}

// Position reports where a player currently stands.
func (s *Service) Position(playerID string) (world.ChunkID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return "", false
	}
	return p.spaceID, true
}

// Positions copies every live player's location, keyed by player id.
func (s *Service) Positions() map[string]world.ChunkID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]world.ChunkID, len(s.players))
	for id, p := range s.players {
		out[id] = p.spaceID
	}
	return out
}

func (s *Service) playerState(playerID string) (player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return player{}, fmt.Errorf("player %q: %w", playerID, ErrUnknownPlayer)
	}
	return *p, nil
}

// relocate moves the player and returns its move count, or -1 when
// the player left mid-move.
func (s *Service) relocate(playerID string, to world.ChunkID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return -1
	}
	p.spaceID = to
	p.moves++
	return p.moves
}

// entrySpace walks the fixed descent to the world's first space: the
// origin region, zone and subzone, then the subzone's entry node.
func (s *Service) entrySpace(ctx context.Context) (world.ChunkID, error) {
	root, err := s.gen.Bootstrap(ctx)
	if err != nil {
		return "", err
	}
	id := root.ID
	for i := 0; i < 3; i++ {
		next, ok := id.ChildAt(0, 0)
		if !ok {
			return "", fmt.Errorf("no child under %s", id)
		}
		id = next
	}
	sub, err := s.gen.EnsureChunk(ctx, id, "")
	if err != nil {
		return "", err
	}
	if len(sub.Children) == 0 {
		return "", fmt.Errorf("subzone %s has no spaces", sub.ID)
	}
	return sub.Children[0], nil
}

// buildView renders a space for one viewer: hidden exits gated by
// perception, the viewer's own occupant tag omitted.
func (s *Service) buildView(p *world.SpaceProperties, perception int, viewerTag string) *View {
	v := &View{
		SpaceID:     p.ChunkID,
		Description: p.Description,
		Brightness:  p.Brightness,
		Terrain:     p.Terrain.String(),
		SafeZone:    p.SafeZone,
		Hazards:     append([]string(nil), p.Hazards...),
		Items:       append([]string(nil), p.DroppedItems...),
	}
	for _, o := range p.Occupants {
		if o == viewerTag {
			continue
		}
		v.Occupants = append(v.Occupants, o)
	}
	for label, t := range p.Exits {
		if t.Hidden && perception < t.HiddenDC {
			continue
		}
		v.Exits = append(v.Exits, ExitView{Label: label, Hidden: t.Hidden, Resolved: t.Resolved()})
	}
	sort.Slice(v.Exits, func(i, j int) bool { return v.Exits[i].Label < v.Exits[j].Label })
	return v
}

func (s *Service) addOccupant(id world.ChunkID, name string) {
	s.store.UpdateSpace(id, func(p *world.SpaceProperties) {
		for _, o := range p.Occupants {
			if o == name {
				return
			}
		}
		p.Occupants = append(p.Occupants, name)
	})
}

func (s *Service) removeOccupant(id world.ChunkID, name string) {
	s.store.UpdateSpace(id, func(p *world.SpaceProperties) {
		for i, o := range p.Occupants {
			if o == name {
				p.Occupants = append(p.Occupants[:i], p.Occupants[i+1:]...)
				return
			}
		}
	})
}

func (s *Service) autosave(ctx context.Context, ids ...world.ChunkID) {
	var batch []*world.SpaceProperties
	for _, id := range ids {
		if p, ok := s.store.Space(id); ok {
			batch = append(batch, p)
		}
	}
	if len(batch) == 0 {
		return
	}
	if err := s.repo.SaveSpaces(ctx, batch); err != nil {
		s.logf("autosave: %v", err)
	}
}

func (s *Service) persistSpace(ctx context.Context, p *world.SpaceProperties) error {
	if err := s.repo.SaveSpaces(ctx, []*world.SpaceProperties{p}); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *Service) logEvent(e persistlog.EventEntry) {
	if s.events == nil {
		return
	}
	e.TimeUnix = time.Now().Unix()
	if err := s.events.WriteEvent(e); err != nil {
		s.logf("event log: %v", err)
	}
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// OccupantPrefix marks player presence in a space's occupant list,
// separating it from generated creatures and placed entities.
const OccupantPrefix = "player:"

func occupantTag(playerID string) string {
	return OccupantPrefix + playerID
}
