package templates

import (
	"net/url"
	"strings"
	"time"
)

// Option pattern
type Option func(*EmailData)

func WithIP(ip string) Option        { return func(d *EmailData) { d.IP = ip } }
func WithUserAgent(ua string) Option { return func(d *EmailData) { d.UserAgent = ua } }
func WithTime(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.TimeAt = utc
		d.Time = utc.Format("02 January 2006, 15:04")
	}
}
func WithPortalURL(u string) Option {
	return func(d *EmailData) { d.PortalURL = strings.TrimRight(u, "/") }
}
func WithSupportURL(u string) Option { return func(d *EmailData) { d.SupportURL = u } }

// NewWelcomeData builds the data for the welcome_account template.
func NewWelcomeData(portalName, name, email string, opts ...Option) EmailData {
	d := EmailData{
		Name:       name,
		Email:      email,
		Type:       WelcomeAccount,
		PortalName: portalName,
	}
	for _, o := range opts {
		o(&d)
	}
	if d.PortalURL != "" {
		d.AccountURL = d.PortalURL + "/accounts/" + url.PathEscape(name)
	}
	return d
}
