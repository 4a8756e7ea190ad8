package digest

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/marchespei/marchespei-api/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	descriptionLimit = 200
	urgentDays       = 7
	soonDays         = 14
)

var frenchPrinter = message.NewPrinter(language.French)

var frenchDays = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// DeadlineView is the rendered deadline bucket for one record.
type DeadlineView struct {
	Label string
	Tone  string // expired, urgent, soon, normal
}

type RecordView struct {
	Title       string
	URL         string
	Buyer       string
	Location    string
	Amount      string
	Deadline    *DeadlineView
	Description string
	Category    string
}

type GroupView struct {
	Name       string
	CountLabel string
	Records    []RecordView
}

// View is the full digest view model. Building it is a pure function of the
// payload and "now", so rendering stays byte-stable on repeated calls.
type View struct {
	Subject        string
	KindLabel      string
	DateLine       string
	SummaryLine    string
	Empty          bool
	Groups         []GroupView
	ManageURL      string
	PreferencesURL string
	ComplianceLine string
	TotalRecords   int
	GroupCount     int
}

// BuildView assembles the view model for a digest of the given kind.
func BuildView(kind models.DigestKind, groups []models.AlertGroup, now time.Time, baseURL string) View {
	total := models.TotalRecords(groups)

	view := View{
		Subject:        subjectLine(kind, total),
		KindLabel:      kindLabel(kind),
		DateLine:       longFrenchDate(now),
		SummaryLine:    summaryLine(total, len(groups)),
		Empty:          total == 0,
		ManageURL:      baseURL + "/alertes",
		PreferencesURL: baseURL + "/preferences",
		ComplianceLine: "Vous recevez cet email car vous avez activé des alertes de marchés publics sur Marchés Péi.",
		TotalRecords:   total,
		GroupCount:     len(groups),
	}

	for _, g := range groups {
		if len(g.Records) == 0 {
			continue
		}
		gv := GroupView{
			Name:       g.AlertName,
			CountLabel: fmt.Sprintf("%d %s", len(g.Records), frenchPlural(len(g.Records), "marché", "marchés")),
		}
		for _, rec := range g.Records {
			gv.Records = append(gv.Records, buildRecordView(rec, now, baseURL))
		}
		view.Groups = append(view.Groups, gv)
	}

	return view
}

func buildRecordView(rec models.MatchedRecord, now time.Time, baseURL string) RecordView {
	rv := RecordView{
		Title:       rec.Title,
		URL:         recordURL(rec, baseURL),
		Buyer:       rec.Buyer,
		Amount:      formatAmount(rec.EstimatedAmount),
		Description: truncateDescription(rec.Description),
	}
	if rec.Location != nil {
		rv.Location = *rec.Location
	}
	if rec.Category != nil {
		rv.Category = *rec.Category
	}
	if rec.Deadline != nil {
		dv := deadlineView(*rec.Deadline, now)
		rv.Deadline = &dv
	}
	return rv
}

func recordURL(rec models.MatchedRecord, baseURL string) string {
	if rec.SourceURL != nil && strings.TrimSpace(*rec.SourceURL) != "" {
		return strings.TrimSpace(*rec.SourceURL)
	}
	return baseURL + "/marches/" + url.PathEscape(rec.Reference)
}

// deadlineView buckets a submission deadline relative to now: expired, urgent
// within 7 days, soon within 14, otherwise a plain date with day count.
func deadlineView(deadline, now time.Time) DeadlineView {
	until := deadline.Sub(now)
	if until <= 0 {
		return DeadlineView{Label: "Expiré", Tone: "expired"}
	}

	days := int(math.Ceil(until.Hours() / 24))
	remaining := fmt.Sprintf("%d%s", days, frenchPlural(days, "j restant", "j restants"))

	switch {
	case days <= urgentDays:
		return DeadlineView{Label: "Urgent : " + remaining, Tone: "urgent"}
	case days <= soonDays:
		return DeadlineView{Label: "Bientôt : " + remaining, Tone: "soon"}
	default:
		return DeadlineView{
			Label: fmt.Sprintf("%s (%s)", shortFrenchDate(deadline), remaining),
			Tone:  "normal",
		}
	}
}

func formatAmount(amount *float64) string {
	if amount == nil {
		return "Montant non communiqué"
	}
	return frenchPrinter.Sprintf("%.0f €", *amount)
}

// truncateDescription counts runes, not bytes, and appends an ellipsis only
// when something was actually cut.
func truncateDescription(desc string) string {
	runes := []rune(desc)
	if len(runes) <= descriptionLimit {
		return desc
	}
	return string(runes[:descriptionLimit]) + "…"
}

func subjectLine(kind models.DigestKind, total int) string {
	subject := fmt.Sprintf("%d %s", total,
		frenchPlural(total, "nouveau marché public détecté", "nouveaux marchés publics détectés"))
	if kind == models.DigestKindTest {
		return "[Test] " + subject
	}
	return subject
}

func summaryLine(total, groupCount int) string {
	return fmt.Sprintf("%d %s sur %d %s",
		total, frenchPlural(total, "marché détecté", "marchés détectés"),
		groupCount, frenchPlural(groupCount, "alerte", "alertes"))
}

func kindLabel(kind models.DigestKind) string {
	switch kind {
	case models.DigestKindMorning:
		return "Veille du matin"
	case models.DigestKindEvening:
		return "Veille du soir"
	case models.DigestKindTest:
		return "Envoi de test"
	default:
		return "Veille des marchés publics"
	}
}

// frenchPlural picks the singular form only when n is exactly 1.
func frenchPlural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

func longFrenchDate(t time.Time) string {
	return fmt.Sprintf("%s %d %s %d", frenchDays[t.Weekday()], t.Day(), frenchMonths[t.Month()-1], t.Year())
}

func shortFrenchDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), frenchMonths[t.Month()-1], t.Year())
}
