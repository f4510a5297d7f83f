// Package picker is the interactive package selector used by install -i.
package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/samhoang/tapctl/internal/descriptor"
)

// Item represents a selectable item
type Item struct {
	ID       string
	Label    string
	Hint     string // dimmed text after the label
	Selected bool
}

// FromDescriptors builds one item per descriptor. Packages in installed
// (name -> version) are marked with the installed version.
func FromDescriptors(ds []descriptor.Descriptor, installed map[string]string) []Item {
	items := make([]Item, 0, len(ds))
	for _, d := range ds {
		hint := d.Description
		if v, ok := installed[d.Name]; ok {
			if v == d.Version {
				hint = "installed"
			} else {
				hint = "installed " + v
			}
		}
		items = append(items, Item{
			ID:    d.Name,
			Label: fmt.Sprintf("%s %s", d.Name, d.Version),
			Hint:  hint,
		})
	}
	return items
}

// Model is the Bubble Tea model for multi-select picker
type Model struct {
	title     string
	items     []Item
	cursor    int
	selected  map[string]bool
	filter    textinput.Model
	filtering bool
	done      bool
	quitting  bool
}

// New creates a new picker model
func New(title string, items []Item) Model {
	selected := make(map[string]bool)
	for _, item := range items {
		if item.Selected {
			selected[item.ID] = true
		}
	}

	ti := textinput.New()
	ti.Placeholder = "filter"
	ti.CharLimit = 50
	ti.Width = 30

	return Model{
		title:    title,
		items:    items,
		selected: selected,
		filter:   ti,
	}
}

// Selected returns the IDs of selected items, in item order
func (m Model) Selected() []string {
	var result []string
	for _, item := range m.items {
		if m.selected[item.ID] {
			result = append(result, item.ID)
		}
	}
	return result
}

// IsQuitting returns true if the user quit without confirming
func (m Model) IsQuitting() bool {
	return m.quitting
}

// visible returns the items matching the filter
func (m Model) visible() []Item {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if q == "" {
		return m.items
	}
	var out []Item
	for _, item := range m.items {
		if strings.Contains(strings.ToLower(item.Label), q) || strings.Contains(strings.ToLower(item.Hint), q) {
			out = append(out, item)
		}
	}
	return out
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	msg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.filtering {
		switch {
		case key.Matches(msg, keys.Confirm), key.Matches(msg, keys.Escape):
			m.filtering = false
			m.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.cursor = 0
		return m, cmd
	}

	items := m.visible()

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Filter):
		m.filtering = true
		return m, m.filter.Focus()

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, keys.Down):
		if m.cursor < len(items)-1 {
			m.cursor++
		}

	case key.Matches(msg, keys.Toggle):
		if m.cursor < len(items) {
			id := items[m.cursor].ID
			m.selected[id] = !m.selected[id]
		}

	case key.Matches(msg, keys.All):
		// Toggle every visible item
		allSelected := true
		for _, item := range items {
			if !m.selected[item.ID] {
				allSelected = false
				break
			}
		}
		for _, item := range items {
			m.selected[item.ID] = !allSelected
		}

	case key.Matches(msg, keys.Confirm):
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	if m.done || m.quitting {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cursorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	hintStyle := lipgloss.NewStyle().Faint(true)

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	items := m.visible()
	if len(items) == 0 {
		b.WriteString(hintStyle.Render("  no matches"))
		b.WriteString("\n")
	}
	for i, item := range items {
		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}

		checked := "[ ]"
		if m.selected[item.ID] {
			checked = selectedStyle.Render("[x]")
		}

		line := fmt.Sprintf("%s%s %s", cursor, checked, item.Label)
		if item.Hint != "" {
			line += "  " + hintStyle.Render(item.Hint)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("space: toggle • a: all/none • /: filter • enter: install • q: quit"))

	return b.String()
}

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	All     key.Binding
	Filter  key.Binding
	Confirm key.Binding
	Escape  key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" "),
	),
	All: key.NewBinding(
		key.WithKeys("a"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter"),
	),
	Escape: key.NewBinding(
		key.WithKeys("esc"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
	),
}

// Run runs the picker and returns selected item IDs. It returns nil when
// the user quits.
func Run(title string, items []Item) ([]string, error) {
	m := New(title, items)
	p := tea.NewProgram(m)

	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	fm := finalModel.(Model)
	if fm.IsQuitting() {
		return nil, nil
	}

	return fm.Selected(), nil
}
