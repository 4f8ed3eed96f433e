package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStandardizePhone(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   string
	}{
		{"national number gets default country code", "0891234567", "+49-891234567"},
		{"double zero prefix", "0043 1 234567", "+43-1234567"},
		{"already international", "+49 (89) 123-4567", "+49-891234567"},
		{"bare digits", "4989123", "+49-89123"},
		{"empty", "", ""},
		{"no digits", "n/a", ""},
		{"short", "12", "+12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StandardizePhone(tt.number, "49"))
		})
	}
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hello World", StripHTML("<p>Hello <b>World</b>&nbsp;</p>"))
	assert.Equal(t, "", StripHTML(""))
	assert.Equal(t, "plain", StripHTML("plain"))
}

func TestSalutation(t *testing.T) {
	assert.Equal(t, "Dr.", Salutation("MR", "Dr."))
	assert.Equal(t, "Mr", Salutation("MR", ""))
	assert.Equal(t, "Ms", Salutation("MRS", ""))
	assert.Equal(t, "", Salutation("COMPANY", ""))
}

func TestPrepareEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jürgen.Mäßig@Example.DE", "juergen.maessig@example.de"},
		{"jürgen@example.de", "juergen@example.de"},
		{"not-an-email", ""},
		{"a b@example.de", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, PrepareEmail(tt.in))
		})
	}
}

func TestTimestamps(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 2023-12-31T23:30:00Z is already new year in Berlin.
	ms := time.Date(2023, 12, 31, 23, 30, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "2024-01-01", DateFromTimestamp(ms, berlin))
	assert.Equal(t, "2024-01-01 00:30:00", DateTimeFromTimestamp(ms, berlin))
	assert.Equal(t, "2023-12-31", DateFromTimestamp(ms, time.UTC))
	assert.Equal(t, "", DateFromTimestamp(0, berlin))
}

func TestMergeTags(t *testing.T) {
	got := MergeTags([]string{"VIP", " Trade ", ""}, []string{"Trade", "Fair"}, nil)
	assert.Equal(t, []string{"VIP", "Trade", "Fair"}, got)
	assert.Nil(t, MergeTags())
}

func TestSplitName(t *testing.T) {
	first, last := SplitName("Jane Doe")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)

	first, last = SplitName("Jan van Dyke")
	assert.Equal(t, "Jan", first)
	assert.Equal(t, "van Dyke", last)

	first, last = SplitName("Doe")
	assert.Equal(t, "", first)
	assert.Equal(t, "Doe", last)
}

func TestOptional(t *testing.T) {
	assert.Nil(t, Optional(""))
	assert.Equal(t, "x", Optional("x"))
}
