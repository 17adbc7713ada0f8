package recovery

// DefaultSettings is the policy used for organizations without a
// configured row: first reminder after 3 business days, final reminder
// after 10, cancellation after 14. Vorkasse and Rechnung share the same
// defaults; merchants override per method when they need to differ.
func DefaultSettings(organizationID int64, kind MethodKind) Settings {
	return Settings{
		OrganizationID:   organizationID,
		Kind:             kind,
		Enabled:          true,
		Reminder1Days:    3,
		Reminder2Days:    10,
		CancellationDays: 14,
		Reminder1Subject: "Zahlungserinnerung für Ihre Bestellung",
		Reminder1Text: "Hallo, wir haben festgestellt, dass Ihre Bestellung (Nr. {{ order_number }}) noch nicht bezahlt wurde.\n" +
			"Bitte überweisen Sie den offenen Betrag von {{ total_open_amount }}.\n" +
			"Vielen Dank!",
		Reminder2Subject: "Letzte Zahlungserinnerung",
		Reminder2Text: "Dies ist eine letzte Zahlungserinnerung für Ihre Bestellung (Nr. {{ order_number }}).\n" +
			"Bitte begleichen Sie den Betrag von {{ total_open_amount }}, um eine automatische Stornierung zu vermeiden.",
		CancellationSubject: "Stornierung Ihrer Bestellung {{ order_number }}",
		CancellationText: "Wenn wir Ihre Zahlung innerhalb von 4 Tagen nicht erhalten, wird die Bestellung automatisch storniert.",
	}
}

// cancellationWarning is appended to every second reminder so the
// customer is warned before the automatic cancellation fires.
const cancellationWarning = "Wenn wir Ihre Zahlung innerhalb von 4 Tagen nicht erhalten, wird die Bestellung automatisch storniert."
