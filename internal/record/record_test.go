package record

import (
	"encoding/json"
	"testing"
)

func mustParse(t *testing.T, raw string) Record {
	t.Helper()
	rec, err := DefaultSchema.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return rec
}

func TestClassifyShapes(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want Kind
	}{
		"collection":         {raw: `[{"id":1,"thumb":"data:image/png;base64,AAAA"}]`, want: KindCollection},
		"collection no img":  {raw: `[{"id":1,"name":"x"}]`, want: KindOpaque},
		"empty list":         {raw: `[]`, want: KindOpaque},
		"wrapped":            {raw: `{"record":{"id":2,"thumb":null}}`, want: KindWrapped},
		"login":              {raw: `{"logindata":{"userid":3,"thumb":"x"}}`, want: KindWrapped},
		"wrapped no img":     {raw: `{"record":{"id":2}}`, want: KindOpaque},
		"opaque object":      {raw: `{"msg":"ok"}`, want: KindOpaque},
		"opaque scalar":      {raw: `42`, want: KindOpaque},
		"list of primitives": {raw: `[1,2,3]`, want: KindOpaque},
	}
	for name, tc := range cases {
		if got := mustParse(t, tc.raw).Kind(); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", name, tc.want, got)
		}
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := DefaultSchema.Parse([]byte("  ")); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, err := DefaultSchema.Parse([]byte("{")); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	rec := mustParse(t, `[{"id":1,"thumb":"x","tags":["a"]}]`)
	clone, err := rec.Clone()
	if err != nil {
		t.Fatalf("clone error: %v", err)
	}
	item := clone.Items()[0]
	delete(item, "thumb")
	item["tags"].([]any)[0] = "b"

	orig := rec.Items()[0]
	if _, ok := orig["thumb"]; !ok {
		t.Fatalf("clone mutation leaked into original")
	}
	if orig["tags"].([]any)[0] != "a" {
		t.Fatalf("nested slice shared between clone and original")
	}
	if clone.Kind() != KindCollection {
		t.Fatalf("clone should keep kind, got %s", clone.Kind())
	}
}

func TestNormalizeLogin(t *testing.T) {
	rec := mustParse(t, `{"logindata":{"userid":7,"token":"t","thumb":"x"},"msg":"ok"}`)
	if !rec.NormalizeLogin() {
		t.Fatalf("expected normalization")
	}
	obj := rec.Value().(map[string]any)
	if _, ok := obj[LoginField]; ok {
		t.Fatalf("logindata should be renamed")
	}
	items := rec.Items()
	if len(items) != 1 {
		t.Fatalf("expected nested record item, got %d", len(items))
	}
	id, ok := ItemID(items[0])
	if !ok || id != "7" {
		t.Fatalf("expected id 7, got %q (%v)", id, ok)
	}
	if _, ok := items[0][LoginIDField]; ok {
		t.Fatalf("userid should be removed")
	}

	plain := mustParse(t, `{"record":{"id":1}}`)
	if plain.NormalizeLogin() {
		t.Fatalf("records without logindata must not be rewritten")
	}
}

func TestRestoreUsesStoredKindOrMarker(t *testing.T) {
	payload := []byte(`[{"id":1,"discount":0}]`)
	rec, err := DefaultSchema.Restore(payload, "")
	if err != nil {
		t.Fatalf("restore error: %v", err)
	}
	if rec.Kind() != KindCollection {
		t.Fatalf("marker field should mark a collection, got %s", rec.Kind())
	}

	rec, err = DefaultSchema.Restore([]byte(`[{"id":1}]`), KindCollection)
	if err != nil {
		t.Fatalf("restore error: %v", err)
	}
	if rec.Kind() != KindCollection {
		t.Fatalf("stored kind should win, got %s", rec.Kind())
	}

	rec, err = DefaultSchema.Restore([]byte(`{"record":{"id":1}}`), "")
	if err != nil {
		t.Fatalf("restore error: %v", err)
	}
	if rec.Kind() != KindWrapped {
		t.Fatalf("record wrapper should restore as wrapped, got %s", rec.Kind())
	}
}

func TestItemID(t *testing.T) {
	cases := []struct {
		item Item
		want string
		ok   bool
	}{
		{Item{"id": json.Number("39")}, "39", true},
		{Item{"id": "abc"}, "abc", true},
		{Item{"id": float64(12)}, "12", true},
		{Item{"id": 5}, "5", true},
		{Item{"id": nil}, "", false},
		{Item{}, "", false},
		{Item{"id": ""}, "", false},
	}
	for _, tc := range cases {
		got, ok := ItemID(tc.item)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ItemID(%v): expected (%q,%v), got (%q,%v)", tc.item, tc.want, tc.ok, got, ok)
		}
	}
}

func TestAppend(t *testing.T) {
	var rec Record
	if err := rec.Append(Item{"id": 1}); err != nil {
		t.Fatalf("append error: %v", err)
	}
	if rec.Kind() != KindCollection || len(rec.Items()) != 1 {
		t.Fatalf("append should produce a one-item collection")
	}
	obj := mustParse(t, `{"a":1}`)
	if err := obj.Append(Item{"id": 2}); err == nil {
		t.Fatalf("appending to an object must fail")
	}
}

func TestFromValueNormalizesNumbers(t *testing.T) {
	rec, err := DefaultSchema.FromValue([]map[string]any{{"id": 39, "thumb": "x", "discount": 0}})
	if err != nil {
		t.Fatalf("from value error: %v", err)
	}
	item := rec.Items()[0]
	if _, ok := item["discount"].(json.Number); !ok {
		t.Fatalf("numbers should decode as json.Number, got %T", item["discount"])
	}
}
