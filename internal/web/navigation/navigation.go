// Package navigation builds the menu and breadcrumbs shown by the page layout.
package navigation

// Page identifiers of the portal.
const (
	PageOverview = "overview"
	PageProfile  = "profile"
	PageAccounts = "accounts"
)

// Item is one menu entry. Privileged entries are shown to members of the
// privileged groups only.
type Item struct {
	Page       string
	Title      string
	URL        string
	Active     bool
	Privileged bool
}

// BreadcrumbItem represents a single breadcrumb link.
type BreadcrumbItem struct {
	Title  string
	URL    string
	Active bool
}

// Context represents the navigation context for a page.
type Context struct {
	ActivePage  string
	PageTitle   string
	Menu        []Item
	Breadcrumbs []BreadcrumbItem
}

var menu = []Item{ //nolint:gochecknoglobals
	{Page: PageOverview, Title: "Overview", URL: "/"},
	{Page: PageProfile, Title: "Profile", URL: "/profile"},
	{Page: PageAccounts, Title: "Accounts", URL: "/admin/accounts", Privileged: true},
}

// NewContext creates the navigation context of activePage. The overview is
// always the first breadcrumb.
func NewContext(pageTitle, activePage string) *Context {
	c := &Context{
		PageTitle:   pageTitle,
		ActivePage:  activePage,
		Menu:        make([]Item, len(menu)),
		Breadcrumbs: make([]BreadcrumbItem, 0, 2), //nolint:mnd
	}

	copy(c.Menu, menu)

	for i := range c.Menu {
		c.Menu[i].Active = c.Menu[i].Page == activePage
	}

	c.AddBreadcrumb(menu[0].Title, menu[0].URL, activePage == PageOverview)

	if activePage != PageOverview {
		c.AddBreadcrumb(pageTitle, "", true)
	}

	return c
}

// AddBreadcrumb adds a breadcrumb item to the context.
func (c *Context) AddBreadcrumb(title, url string, active bool) *Context {
	c.Breadcrumbs = append(c.Breadcrumbs, BreadcrumbItem{
		Title:  title,
		URL:    url,
		Active: active,
	})

	return c
}

// IsActive checks if page is the current page.
func (c *Context) IsActive(page string) bool {
	return c.ActivePage == page
}
