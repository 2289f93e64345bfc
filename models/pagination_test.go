package models_test

import (
	"encoding/base64"
	"testing"

	"bitbucket.org/mmdatafocus/expenses_backend/models"
)

func TestCompositeCursorRoundTrip(t *testing.T) {
	cursor := models.EncodeCompositeCursor("2026-08-23 10:00:00 +0000 UTC", 42)
	value, id := models.DecodeCompositeCursor(&cursor)
	if value != "2026-08-23 10:00:00 +0000 UTC" || id != 42 {
		t.Fatalf("round trip expected the original value and id, got %q/%d", value, id)
	}
}

func TestDecodeCompositeCursor_InvalidInputsReadAsFirstPage(t *testing.T) {
	empty := ""
	notBase64 := "%%%"
	noSeparator := base64.StdEncoding.EncodeToString([]byte("2026-08-23"))
	badId := base64.StdEncoding.EncodeToString([]byte("2026-08-23|abc"))

	cases := []*string{nil, &empty, &notBase64, &noSeparator, &badId}
	for i, cursor := range cases {
		value, id := models.DecodeCompositeCursor(cursor)
		if value != "" || id != 0 {
			t.Fatalf("case %d: expected an empty cursor, got %q/%d", i, value, id)
		}
	}
}
