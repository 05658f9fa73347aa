package config

import (
	"reflect"
	"testing"
)

func TestEmailConfigIncomplete(t *testing.T) {
	complete := EmailConfig{
		SMTPServer: "smtp.example.com",
		Username:   "u",
		Password:   "p",
		Sender:     "digest@example.com",
		Recipients: []string{"team@example.com"},
	}
	if missing := complete.Incomplete(); len(missing) != 0 {
		t.Errorf("complete config reported missing fields: %v", missing)
	}

	partial := EmailConfig{SMTPServer: "smtp.example.com", Sender: "digest@example.com"}
	want := []string{"username", "password", "recipients"}
	if got := partial.Incomplete(); !reflect.DeepEqual(got, want) {
		t.Errorf("Incomplete() = %v, want %v", got, want)
	}

	if got := (EmailConfig{}).Incomplete(); len(got) != 5 {
		t.Errorf("empty config missing %d fields, want 5", len(got))
	}
}
