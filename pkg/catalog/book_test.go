package catalog

import (
	"encoding/json"
	"testing"
)

func TestAuthor_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantID   string
		display  string
	}{
		{"plain string", `"Ursula K. Le Guin"`, "Ursula K. Le Guin", "", "Ursula K. Le Guin"},
		{"object", `{"_id":"9","name":"Alan Donovan"}`, "Alan Donovan", "9", "Alan Donovan"},
		{"object without name", `{"_id":"9"}`, "", "9", UnknownAuthor},
		{"null", `null`, "", "", UnknownAuthor},
		{"empty string", `""`, "", "", UnknownAuthor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Author
			if err := json.Unmarshal([]byte(tt.input), &a); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if a.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", a.Name, tt.wantName)
			}
			if a.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", a.ID, tt.wantID)
			}
			if a.String() != tt.display {
				t.Errorf("String() = %q, want %q", a.String(), tt.display)
			}
		})
	}
}

func TestAuthor_UnmarshalJSON_Invalid(t *testing.T) {
	var a Author
	if err := json.Unmarshal([]byte(`42`), &a); err == nil {
		t.Error("Unmarshal(42) error = nil, want error")
	}
}

func TestBook_Unmarshal(t *testing.T) {
	data := `{"_id":"42","title":"T","description":"D","author":{"name":"A"},"coverImage":"c.png","file":"f.pdf"}`

	var b Book
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if b.ID != "42" || b.Title != "T" || b.Author.String() != "A" || b.File != "f.pdf" || b.CoverImage != "c.png" {
		t.Errorf("Book = %+v", b)
	}

	// Missing author renders as unknown.
	var noAuthor Book
	if err := json.Unmarshal([]byte(`{"_id":"1","title":"T"}`), &noAuthor); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if noAuthor.Author.String() != UnknownAuthor {
		t.Errorf("Author = %q, want %q", noAuthor.Author.String(), UnknownAuthor)
	}
}
