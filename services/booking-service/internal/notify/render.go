package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodsign/monday"
)

type localeFormat struct {
	layout   string
	template string
}

// hourToken stands for the unpadded 24-hour clock hour, which time layouts cannot express.
const hourToken = "{H}"

var formats = map[monday.Locale]localeFormat{
	monday.LocalePtBR: {layout: "Dia 02 de January, às " + hourToken + ":04h", template: "Novo Agendamento de %s para %s"},
	monday.LocaleEnUS: {layout: "January 02 at 15:04", template: "New appointment from %s on %s"},
}

// Renderer builds the provider notification text in one locale.
type Renderer struct {
	locale monday.Locale
	format localeFormat
	loc    *time.Location
}

// NewRenderer returns a renderer for locale, rendering slot times in loc (UTC when nil).
// Unknown locales are an error so misconfiguration fails at startup.
func NewRenderer(locale string, loc *time.Location) (*Renderer, error) {
	l := monday.Locale(locale)
	f, ok := formats[l]
	if !ok {
		return nil, fmt.Errorf("unsupported notification locale %q", locale)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{locale: l, format: f, loc: loc}, nil
}

func (r *Renderer) Render(customerName string, slot time.Time) string {
	local := slot.In(r.loc)
	when := monday.Format(local, r.format.layout, r.locale)
	when = strings.ReplaceAll(when, hourToken, strconv.Itoa(local.Hour()))
	return fmt.Sprintf(r.format.template, customerName, when)
}
