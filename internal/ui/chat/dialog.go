package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/comigor/chatgpt-local/internal/config"
	"github.com/comigor/chatgpt-local/internal/logger"
)

type dialogMode int

const (
	dialogList dialogMode = iota
	dialogForm
)

// Form fields in tab order.
const (
	fieldAlias = iota
	fieldKind
	fieldEndpoint
	fieldKey
	fieldCount
)

// providerDialog manages the provider alias map: a list of aliases and a form
// to add or edit one.
type providerDialog struct {
	mode    dialogMode
	aliases []string
	cursor  int

	alias    textinput.Model
	endpoint textinput.Model
	apiKey   textinput.Model
	kind     config.ProviderKind
	field    int
	// editing is the alias being edited, empty when adding.
	editing string
}

func newProviderDialog() *providerDialog {
	alias := textinput.New()
	alias.Placeholder = "alias"
	endpoint := textinput.New()
	endpoint.Placeholder = "https://example.openai.azure.com"
	apiKey := textinput.New()
	apiKey.Placeholder = "API key"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'
	return &providerDialog{alias: alias, endpoint: endpoint, apiKey: apiKey}
}

func (d *providerDialog) selected() (string, bool) {
	if len(d.aliases) == 0 || d.cursor < 0 || d.cursor >= len(d.aliases) {
		return "", false
	}
	return d.aliases[d.cursor], true
}

func (d *providerDialog) setAliases(aliases []string) {
	d.aliases = aliases
	d.cursor = min(d.cursor, max(len(aliases)-1, 0))
}

func (d *providerDialog) openForm(p config.Provider, editing string) tea.Cmd {
	d.mode = dialogForm
	d.editing = editing
	d.kind = p.Kind
	d.alias.SetValue(p.Name)
	d.endpoint.SetValue(p.Endpoint)
	d.apiKey.SetValue(p.Key)
	return d.focusField(fieldAlias)
}

func (d *providerDialog) focusField(field int) tea.Cmd {
	d.field = (field + fieldCount) % fieldCount
	d.alias.Blur()
	d.endpoint.Blur()
	d.apiKey.Blur()
	switch d.field {
	case fieldAlias:
		return d.alias.Focus()
	case fieldEndpoint:
		return d.endpoint.Focus()
	case fieldKey:
		return d.apiKey.Focus()
	}
	return nil
}

func (d *providerDialog) formProvider() config.Provider {
	return config.Provider{
		Name:     strings.TrimSpace(d.alias.Value()),
		Kind:     d.kind,
		Endpoint: strings.TrimSpace(d.endpoint.Value()),
		Key:      strings.TrimSpace(d.apiKey.Value()),
	}
}

func (m *Model) openDialog() tea.Cmd {
	m.dialog = newProviderDialog()
	m.input.Blur()
	return m.refreshDialog()
}

func (m *Model) closeDialog() tea.Cmd {
	m.dialog = nil
	m.focus = focusInput
	return m.input.Focus()
}

func (m *Model) refreshDialog() tea.Cmd {
	aliases, err := m.deps.Providers.Aliases()
	if err != nil {
		logger.L.Error("load providers", "path", m.deps.Config.ProvidersPath, "error", err)
		return m.alert(fmt.Sprintf("cannot read providers: %v", err))
	}
	m.dialog.setAliases(aliases)
	return nil
}

func (m *Model) updateDialog(msg tea.KeyMsg) tea.Cmd {
	if m.dialog.mode == dialogForm {
		return m.updateDialogForm(msg)
	}

	d := m.dialog
	switch {
	case key.Matches(msg, m.keys.Back):
		return m.closeDialog()
	case key.Matches(msg, m.keys.Up):
		d.cursor = max(d.cursor-1, 0)
	case key.Matches(msg, m.keys.Down):
		d.cursor = min(d.cursor+1, max(len(d.aliases)-1, 0))
	case key.Matches(msg, m.keys.Refresh):
		return m.refreshDialog()
	case key.Matches(msg, m.keys.Add):
		return d.openForm(config.Provider{Kind: config.KindAzure}, "")
	case key.Matches(msg, m.keys.View):
		alias, ok := d.selected()
		if !ok {
			return m.alert(noticeSelectItem)
		}
		p, err := m.deps.Providers.Get(alias)
		if err != nil {
			return m.providerError(alias, err)
		}
		return d.openForm(p, alias)
	case key.Matches(msg, m.keys.Delete):
		alias, ok := d.selected()
		if !ok {
			return m.alert(noticeSelectItem)
		}
		m.ask(fmt.Sprintf("Delete provider %q? (y/n)", alias), func() tea.Cmd {
			return m.deleteProvider(alias)
		})
	case key.Matches(msg, m.keys.Open):
		alias, ok := d.selected()
		if !ok {
			return m.alert(noticeSelectItem)
		}
		return m.chooseProvider(alias)
	}
	return nil
}

func (m *Model) updateDialogForm(msg tea.KeyMsg) tea.Cmd {
	d := m.dialog
	switch {
	case key.Matches(msg, m.keys.Back):
		d.mode = dialogList
		return m.refreshDialog()
	case key.Matches(msg, m.keys.Save):
		return m.saveProvider()
	case key.Matches(msg, m.keys.Next):
		return d.focusField(d.field + 1)
	case key.Matches(msg, m.keys.Prev):
		return d.focusField(d.field - 1)
	case d.field == fieldKind && key.Matches(msg, m.keys.Toggle):
		if d.kind == config.KindAzure {
			d.kind = config.KindGeneric
		} else {
			d.kind = config.KindAzure
		}
		return nil
	}

	var cmd tea.Cmd
	switch d.field {
	case fieldAlias:
		d.alias, cmd = d.alias.Update(msg)
	case fieldEndpoint:
		d.endpoint, cmd = d.endpoint.Update(msg)
	case fieldKey:
		d.apiKey, cmd = d.apiKey.Update(msg)
	}
	return cmd
}

func (m *Model) saveProvider() tea.Cmd {
	d := m.dialog
	p := d.formProvider()
	if p.Name == "" || p.Endpoint == "" || p.Key == "" {
		return m.alert(noticeFillAllFields)
	}
	if err := m.deps.Providers.Put(p); err != nil {
		logger.L.Warn("save provider", "alias", p.Name, "error", err)
		return m.alert(fmt.Sprintf("%s: %v", noticeInvalidProvider, err))
	}
	if d.editing != "" && d.editing != p.Name {
		if err := m.deps.Providers.Delete(d.editing); err != nil && !errors.Is(err, config.ErrProviderNotFound) {
			logger.L.Warn("remove renamed provider", "alias", d.editing, "error", err)
		}
		if m.provider == d.editing {
			m.provider = p.Name
		}
	}
	logger.L.Info("provider saved", "alias", p.Name, "kind", p.Kind.String())
	d.mode = dialogList
	return tea.Batch(m.refreshDialog(), m.notify(fmt.Sprintf("saved %s", p.Name)))
}

func (m *Model) deleteProvider(alias string) tea.Cmd {
	if err := m.deps.Providers.Delete(alias); err != nil {
		return m.providerError(alias, err)
	}
	if m.provider == alias {
		m.provider = ""
	}
	logger.L.Info("provider deleted", "alias", alias)
	return tea.Batch(m.refreshDialog(), m.notify(fmt.Sprintf("deleted %s", alias)))
}

// chooseProvider makes alias the active provider. The alias must still exist
// in the file; otherwise nothing changes.
func (m *Model) chooseProvider(alias string) tea.Cmd {
	p, err := m.deps.Providers.Get(alias)
	if err != nil {
		return m.providerError(alias, err)
	}
	m.provider = p.Name
	logger.L.Info("provider chosen", "alias", p.Name, "kind", p.Kind.String())
	return tea.Batch(m.closeDialog(), m.notify(fmt.Sprintf("using %s", p.Name)))
}

func (m *Model) providerError(alias string, err error) tea.Cmd {
	logger.L.Warn("provider lookup failed", "alias", alias, "error", err)
	if errors.Is(err, config.ErrProviderNotFound) {
		return m.alert(noticeProviderMissing)
	}
	return m.alert(fmt.Sprintf("%s: %v", noticeInvalidProvider, err))
}

func (d *providerDialog) view(width int, keys keyMap, active string) string {
	var b strings.Builder
	if d.mode == dialogForm {
		title := "Add provider"
		if d.editing != "" {
			title = "Edit provider " + d.editing
		}
		b.WriteString(dialogTitleStyle.Render(title))
		b.WriteString("\n\n")
		rows := []struct {
			label string
			value string
		}{
			{"Alias", d.alias.View()},
			{"Type", d.kindView()},
			{"Endpoint", d.endpoint.View()},
			{"Key", d.apiKey.View()},
		}
		for i, r := range rows {
			label := dialogLabelStyle
			if i == d.field {
				label = label.Foreground(accentColor)
			}
			b.WriteString(label.Render(r.label) + " " + r.value + "\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(helpLine(keys.Save, keys.Next, keys.Toggle, keys.Back)))
	} else {
		b.WriteString(dialogTitleStyle.Render("Providers"))
		b.WriteString("\n\n")
		if len(d.aliases) == 0 {
			b.WriteString(helpStyle.Render("no providers yet"))
			b.WriteString("\n")
		}
		for i, alias := range d.aliases {
			marker := "  "
			if alias == active {
				marker = "● "
			}
			style := sidebarItemStyle
			if i == d.cursor {
				style = sidebarCursorStyle
			}
			b.WriteString(style.Render(marker+alias) + "\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(helpLine(keys.Open, keys.Add, keys.View, keys.Delete, keys.Refresh, keys.Back)))
	}
	return dialogStyle.Width(min(width-4, 72)).Render(b.String())
}

func (d *providerDialog) kindView() string {
	opts := []config.ProviderKind{config.KindAzure, config.KindGeneric}
	parts := make([]string, len(opts))
	for i, k := range opts {
		if k == d.kind {
			parts[i] = lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("(•) " + k.String())
		} else {
			parts[i] = "( ) " + k.String()
		}
	}
	return strings.Join(parts, "  ")
}
