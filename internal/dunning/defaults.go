package dunning

import "github.com/shopspring/decimal"

// DefaultSettings is the policy applied when an organization has not
// configured its own: reminder 5 days after the due date, first warning
// 3 days later with a 5% fee, second and final warnings 4 days apart
// adding 3% each.
func DefaultSettings(organizationID int64) Settings {
	return Settings{
		OrganizationID:    organizationID,
		Enabled:           true,
		ReminderDays:      5,
		Warning1Days:      3,
		Warning2Days:      4,
		FinalDays:         4,
		Warning1Surcharge: decimal.NewFromInt(5),
		Warning2Surcharge: decimal.NewFromInt(3),
		FinalSurcharge:    decimal.NewFromInt(3),
	}
}

var defaultSubjects = map[Level]string{
	LevelReminder: "Zahlungserinnerung: Rechnung {{ invoice_number }}",
	LevelWarning1: "1. Mahnung: Rechnung {{ invoice_number }}",
	LevelWarning2: "2. Mahnung: Rechnung {{ invoice_number }}",
	LevelFinal:    "LETZTE MAHNUNG: Rechnung {{ invoice_number }}",
}

var defaultBodies = map[Level]string{
	LevelReminder: "Hallo {{ customer_name }},\n\n" +
		"leider konnten wir noch keinen Zahlungseingang für die Rechnung {{ invoice_number }} feststellen.\n" +
		"Bitte überweisen Sie den offenen Betrag von {{ total_open_amount }} bis zum {{ due_date }}.\n\n" +
		"Viele Grüße",
	LevelWarning1: "Hallo {{ customer_name }},\n\n" +
		"trotz Erinnerung ist die Rechnung {{ invoice_number }} noch offen.\n" +
		"Wir haben eine Mahngebühr von {{ surcharge_amount }} erhoben.\n" +
		"Neuer Gesamtbetrag: {{ total_open_amount }}.\n\n" +
		"Bitte zahlen Sie sofort.",
	LevelWarning2: "Hallo {{ customer_name }},\n\n" +
		"Sie haben auf unsere erste Mahnung nicht reagiert.\n" +
		"Es fallen weitere Gebühren an.\n" +
		"Offener Betrag: {{ total_open_amount }}.",
	LevelFinal: "LETZTE MAHNUNG\n\n" +
		"Hallo {{ customer_name }},\n\n" +
		"das ist die letzte Aufforderung zur Zahlung der Rechnung {{ invoice_number }}.\n" +
		"Gesamtbetrag: {{ total_open_amount }}.\n\n" +
		"Sollte keine Zahlung erfolgen, übergeben wir den Fall an ein Inkassobüro.",
}

// DefaultTemplate returns the built-in German notification text for a
// level. Unknown levels yield a generic subject and an empty body.
func DefaultTemplate(level Level) Template {
	subject, ok := defaultSubjects[level]
	if !ok {
		subject = "Info zu Rechnung {{ invoice_number }}"
	}
	return Template{Level: level, Subject: subject, Content: defaultBodies[level]}
}
