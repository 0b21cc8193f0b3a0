package guide

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

type Rect struct {
	X, Y, Width, Height float64
}

// Element is a piece of UI a screen offers for spoken "where is" questions.
type Element struct {
	ID       string
	Keywords []string
	// Measure reports the current on-screen bounds; false when the element
	// is not laid out.
	Measure func() (Rect, bool)
}

// Spotlight is the active highlight.
type Spotlight struct {
	ElementID   string
	Instruction string
	Bounds      Rect
}

// Coordinator keeps the per-screen element registry and the spotlight. Screens
// register and unregister their own elements as they mount and unmount.
type Coordinator struct {
	mu       sync.RWMutex
	screens  map[string]map[string]Element
	active   string
	current  *Spotlight
	onChange func(Spotlight, bool)
}

func NewCoordinator() *Coordinator {
	return &Coordinator{screens: make(map[string]map[string]Element)}
}

// OnChange sets a callback fired after every show or hide.
func (c *Coordinator) OnChange(fn func(s Spotlight, guiding bool)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// RegisterElement upserts el on screen.
func (c *Coordinator) RegisterElement(screen string, el Element) {
	if el.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.screens[screen]
	if !ok {
		m = make(map[string]Element)
		c.screens[screen] = m
	}
	m[el.ID] = el
}

func (c *Coordinator) UnregisterElement(screen, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.screens[screen]
	if !ok {
		return
	}
	delete(m, id)
	if len(m) == 0 {
		delete(c.screens, screen)
	}
}

// SetActiveScreen switches lookups to screen. A spotlight from the previous
// screen is cleared.
func (c *Coordinator) SetActiveScreen(screen string) {
	c.mu.Lock()
	if c.active == screen {
		c.mu.Unlock()
		return
	}
	c.active = screen
	c.mu.Unlock()
	c.Hide()
}

func (c *Coordinator) ActiveScreen() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Show highlights a registered element of the active screen. Unknown ids are
// ignored.
func (c *Coordinator) Show(id, instruction string) bool {
	c.mu.Lock()
	el, ok := c.screens[c.active][id]
	if !ok {
		screen := c.active
		c.mu.Unlock()
		slog.Warn("guide element not registered", "screen", screen, "element", id)
		return false
	}
	var bounds Rect
	if el.Measure != nil {
		if r, laidOut := el.Measure(); laidOut {
			bounds = r
		}
	}
	spot := Spotlight{ElementID: id, Instruction: instruction, Bounds: bounds}
	c.current = &spot
	fn := c.onChange
	c.mu.Unlock()

	slog.Debug("guide shown", "element", id)
	if fn != nil {
		fn(spot, true)
	}
	return true
}

// Hide clears the spotlight unconditionally.
func (c *Coordinator) Hide() {
	c.mu.Lock()
	c.current = nil
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(Spotlight{}, false)
	}
}

func (c *Coordinator) Current() (Spotlight, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return Spotlight{}, false
	}
	return *c.current, true
}

func (c *Coordinator) Guiding() bool {
	_, ok := c.Current()
	return ok
}

// Elements lists the ids registered on screen, sorted.
func (c *Coordinator) Elements(screen string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.screens[screen]))
	for id := range c.screens[screen] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Match finds the element of the active screen whose keywords best cover
// query. Ties go to the lexically smaller id.
func (c *Coordinator) Match(query string) (Element, bool) {
	words := tokenize(query)
	if len(words) == 0 {
		return Element{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var (
		best      Element
		bestScore int
	)
	for _, el := range c.screens[c.active] {
		n := score(words, el)
		if n == 0 {
			continue
		}
		if n > bestScore || (n == bestScore && el.ID < best.ID) {
			best, bestScore = el, n
		}
	}
	return best, bestScore > 0
}

func score(words map[string]struct{}, el Element) int {
	total := 0
	terms := append([]string{strings.ReplaceAll(el.ID, "_", " ")}, el.Keywords...)
	for _, term := range terms {
		parts := strings.Fields(strings.ToLower(term))
		if len(parts) == 0 {
			continue
		}
		hit := true
		for _, p := range parts {
			if _, ok := words[p]; !ok {
				hit = false
				break
			}
		}
		if hit {
			total += len(parts)
		}
	}
	return total
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		out[w] = struct{}{}
	}
	return out
}

var locationPrefixes = []string{
	"where is", "where's", "where are", "where do i", "where can i",
	"how do i", "how can i", "show me", "help me find", "find the",
}

// IsLocationQuery reports whether text reads like "where is X" or "how do I X".
func IsLocationQuery(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, p := range locationPrefixes {
		if strings.HasPrefix(lower, p) || strings.Contains(lower, " "+p+" ") {
			return true
		}
	}
	return false
}
