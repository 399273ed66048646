// Package compose turns snapshots into notification emails.
package compose

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"gardenalert/internal/game"
	"gardenalert/internal/mailer"
)

const stockTemplate = `<h2>Your watched items are in stock</h2>
<table>
{{range .Items}}<tr data-item="{{.ID}}"><td><img src="{{.Icon}}" alt="{{.Name}}" width="32" height="32"></td><td>{{.Name}}</td><td>x{{.Quantity}}</td></tr>
{{end}}</table>
<p>Sent to {{.Email}}. <a href="{{.UnsubscribeURL}}">Unsubscribe</a></p>
`

const weatherTemplate = `<h2>{{.Name}} is happening now</h2>
<p>Duration: {{.Minutes}} minutes</p>
{{if .InviteURL}}<p><a href="{{.InviteURL}}">Join the community</a></p>
{{end}}<p>Sent to {{.Email}}. <a href="{{.UnsubscribeURL}}">Unsubscribe</a></p>
`

const verificationTemplate = `<h2>Confirm your email</h2>
<p>Click the link below to start receiving stock alerts. It expires in 24 hours.</p>
<p><a href="{{.VerifyURL}}">Verify {{.Email}}</a></p>
<p>If you did not ask for this, ignore this email.</p>
`

var templates = template.Must(template.New("stock").Parse(stockTemplate))

func init() {
	template.Must(templates.New("weather").Parse(weatherTemplate))
	template.Must(templates.New("verification").Parse(verificationTemplate))
}

// Line is one rendered stock entry.
type Line struct {
	ID       string
	Name     string
	Icon     string
	Quantity int
}

type Composer struct {
	baseURL string
	catalog *game.Catalog
}

func New(baseURL string, catalog *game.Catalog) *Composer {
	if catalog == nil {
		catalog = game.NewCatalog("")
	}
	return &Composer{baseURL: strings.TrimRight(baseURL, "/"), catalog: catalog}
}

func (c *Composer) UnsubscribeURL(email string) string {
	return c.baseURL + "/unsub?email=" + url.QueryEscape(email)
}

func (c *Composer) VerifyURL(email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return c.baseURL + "/verify?" + q.Encode()
}

// Matches returns the items that are both watched and in stock, flattened
// across categories. An item listed in several categories appears once.
func Matches(watch []string, snap game.StockSnapshot) []game.StockItem {
	want := make(map[string]struct{}, len(watch))
	for _, id := range watch {
		want[id] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []game.StockItem
	for _, it := range snap.Flatten() {
		if it.Quantity <= 0 {
			continue
		}
		if _, ok := want[it.ItemID]; !ok {
			continue
		}
		if _, dup := seen[it.ItemID]; dup {
			continue
		}
		seen[it.ItemID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Stock builds the personalized stock email. ok is false when none of the
// watched items is in stock.
func (c *Composer) Stock(email string, watch []string, snap game.StockSnapshot) (msg mailer.Message, ok bool, err error) {
	matched := Matches(watch, snap)
	if len(matched) == 0 {
		return mailer.Message{}, false, nil
	}
	lines := make([]Line, 0, len(matched))
	names := make([]string, 0, len(matched))
	for _, it := range matched {
		meta := c.catalog.Lookup(it.ItemID)
		l := Line{ID: it.ItemID, Name: it.DisplayName, Icon: it.Icon, Quantity: it.Quantity}
		if strings.TrimSpace(l.Name) == "" {
			l.Name = meta.DisplayName
		}
		if strings.TrimSpace(l.Icon) == "" {
			l.Icon = meta.Icon
		}
		lines = append(lines, l)
		names = append(names, l.Name)
	}

	body, err := render("stock", struct {
		Items          []Line
		Email          string
		UnsubscribeURL string
	}{lines, email, c.UnsubscribeURL(email)})
	if err != nil {
		return mailer.Message{}, false, err
	}
	return mailer.Message{
		To:      email,
		Subject: stockSubject(names),
		HTML:    body,
		Kind:    mailer.KindStock,
	}, true, nil
}

func stockSubject(names []string) string {
	if len(names) <= 3 {
		return "In stock now: " + strings.Join(names, ", ")
	}
	return fmt.Sprintf("In stock now: %s and %d more", strings.Join(names[:3], ", "), len(names)-3)
}

// Weather builds the broadcast weather email. Watch sets play no part.
func (c *Composer) Weather(email string, ev game.WeatherEvent) (mailer.Message, error) {
	name := strings.TrimSpace(ev.WeatherName)
	if name == "" {
		name = game.FallbackName(ev.WeatherID)
	}
	body, err := render("weather", struct {
		Name           string
		Minutes        int
		InviteURL      string
		Email          string
		UnsubscribeURL string
	}{name, ev.Minutes(), ev.DiscordInvite, email, c.UnsubscribeURL(email)})
	if err != nil {
		return mailer.Message{}, err
	}
	return mailer.Message{
		To:      email,
		Subject: fmt.Sprintf("Weather alert: %s (%d min)", name, ev.Minutes()),
		HTML:    body,
		Kind:    mailer.KindWeather,
	}, nil
}

// Verification builds the email carrying the verification link.
func (c *Composer) Verification(email, token string) (mailer.Message, error) {
	body, err := render("verification", struct {
		Email     string
		VerifyURL string
	}{email, c.VerifyURL(email, token)})
	if err != nil {
		return mailer.Message{}, err
	}
	return mailer.Message{
		To:      email,
		Subject: "Verify your email for stock alerts",
		HTML:    body,
		Kind:    mailer.KindVerification,
	}, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return buf.String(), nil
}
